package debugger

import (
	"context"

	"github.com/google/go-dap"
)

// NotificationCallback 事件产生时的异步回调
type NotificationCallback func(event dap.EventMessage)

// StartOption 调试器启动参数
type StartOption struct {
	// ExecFile 被调试的可执行文件
	ExecFile string
	// Args 程序启动参数
	Args []string
	// Callback 事件产生时，触发该回调
	Callback NotificationCallback
}

// Debugger
// 进程访问适配器，对被调试进程的薄封装。
// 所有操作都是同步的，调用会阻塞到被调试进程到达下一个停止状态。
// 同一个调试会话只允许一个控制协程驱动，不支持并发下发操作。
type Debugger interface {
	// Start 启动被调试进程，进程停在入口处等待控制命令
	Start(ctx context.Context, option *StartOption) error
	// ReadRegister 读取单个寄存器的值
	// 寄存器不属于当前架构返回ErrUnknownRegister，进程不存在返回ErrNotRunning
	ReadRegister(ctx context.Context, name string) (uint64, error)
	// WriteRegister 写入单个寄存器
	WriteRegister(ctx context.Context, name string, value uint64) error
	// ReadMemory 从目标内存读取size个字节
	ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error)
	// ReadCString 从addr开始读取以NUL结尾的字符串
	// maxLength为0表示不限制长度，地址为空或者未映射返回ErrInvalidAddress
	ReadCString(ctx context.Context, addr uint64, maxLength int) (string, error)
	// PC 当前程序计数器
	PC(ctx context.Context) (uint64, error)
	// StepInstruction 执行一条机器指令，会进入call内部
	StepInstruction(ctx context.Context) error
	// StepOverInstruction 执行一条机器指令，不会进入call内部
	StepOverInstruction(ctx context.Context) error
	// Continue 继续执行，直到命中断点或者程序退出
	Continue(ctx context.Context) error
	// IsAlive 被调试进程是否存活
	IsAlive() bool
	// LookupSymbol 解析符号地址，会在主程序和已加载的动态库中查找
	LookupSymbol(ctx context.Context, name string) (uint64, error)
	// CreateConditionalBreakpoint 在addr处设置条件断点，返回断点句柄
	// 断点命中时由调试引擎调用condition.Evaluate决定是否停下
	CreateConditionalBreakpoint(ctx context.Context, addr uint64, condition ConditionalStop) (string, error)
	// RemoveBreakpoint 根据句柄移除断点
	RemoveBreakpoint(ctx context.Context, id string) error
	// Send 输入数据到被调试进程的控制台
	Send(ctx context.Context, input string) error
	// Terminate 终止调试
	Terminate(ctx context.Context) error
}

// ConditionalStop 条件断点的停止条件
// 断点地址每次被命中都会调用Evaluate，返回true才真正停下，
// 返回false则静默放行，被调试进程自动继续执行。
type ConditionalStop interface {
	Evaluate(ctx context.Context, d Debugger) bool
}
