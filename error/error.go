package error

import "errors"

var (
	// ErrNotRunning 被调试进程不存在或者已经退出
	ErrNotRunning = errors.New("no debuggee is being run")
	// ErrUnknownRegister 寄存器名称不在当前架构的寄存器列表中
	ErrUnknownRegister = errors.New("unknown register")
	// ErrUnsupportedArchitecture 不支持的目标架构
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")
	// ErrInvalidAddress 地址为空或者未映射
	ErrInvalidAddress = errors.New("invalid address")
	// ErrMalformedAssignment 寄存器赋值表达式格式错误
	ErrMalformedAssignment = errors.New("malformed register assignment")
	// ErrInvalidHexValue 赋值表达式右侧不是合法的十六进制数
	ErrInvalidHexValue = errors.New("invalid hex value")
	// ErrSymbolNotFound 符号解析失败
	ErrSymbolNotFound = errors.New("symbol not found")
)
