package protocol

import "github.com/fansqz/go-windbg/constants"

// TraceRequest 单步执行直到下一条call指令
type TraceRequest struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号
	Sequence uint `json:"sequence"`
	// StepType 单步方式，stepIn或者stepOver
	StepType constants.StepType `json:"stepType"`
	// Count 步数预算，0表示不限制
	Count uint64 `json:"count"`
}

// RegistersRequest 输出寄存器内容
type RegistersRequest struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号
	Sequence uint `json:"sequence"`
	// Registers 逗号分隔的寄存器列表，为空时输出全部通用寄存器
	Registers string `json:"registers"`
	// PerLine 每行输出的寄存器个数，0表示使用架构默认值
	PerLine int `json:"perLine"`
}

// SetRegisterRequest 写入单个寄存器
type SetRegisterRequest struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号
	Sequence uint `json:"sequence"`
	// Assignment NAME=HEXVALUE 形式的赋值表达式
	Assignment string `json:"assignment"`
}

// WatchLibraryRequest 监视动态库加载
type WatchLibraryRequest struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号
	Sequence uint `json:"sequence"`
	// Library 模块名，按后缀匹配
	Library string `json:"library"`
}

// UnwatchLibraryRequest 取消动态库加载监视
type UnwatchLibraryRequest struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号
	Sequence uint `json:"sequence"`
	// Library 监视时使用的模块名，需要完全一致
	Library string `json:"library"`
}

// ContinueRequest continue
type ContinueRequest struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号
	Sequence uint `json:"sequence"`
}

// SendToConsoleRequest 输入到控制台
type SendToConsoleRequest struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号
	Sequence uint   `json:"sequence"`
	Content  string `json:"content"`
}

// TerminateRequest 关闭调试
type TerminateRequest struct {
	Type constants.RequestType `json:"type"`
	// 请求序列号
	Sequence uint `json:"sequence"`
}
