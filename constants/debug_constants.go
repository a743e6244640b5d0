package constants

// RequestType 调试请求操作类型
type RequestType string

const (
	// Continue 继续执行程序，直到命中断点或者程序结束，返回可能出现的错误。
	Continue RequestType = "continue"
	// Trace 单步执行直到越过下一条call指令，附带步进类型和可选的步数预算。
	Trace RequestType = "trace"
	// Registers 按照固定版式输出寄存器内容，可以附带寄存器列表和每行个数。
	Registers RequestType = "registers"
	// SetRegister 写入单个寄存器，内容为 NAME=HEXVALUE 形式的赋值表达式。
	SetRegister RequestType = "setRegister"
	// WatchLibrary 监视动态库加载，库加载时暂停程序。
	WatchLibrary RequestType = "watchLibrary"
	// UnwatchLibrary 取消某个库的加载监视。
	UnwatchLibrary RequestType = "unwatchLibrary"
	// SendToConsole 输入数据到控制台，返回可能出现的错误。
	SendToConsole RequestType = "sendToConsole"
	// Terminate 终止当前的调试会话。
	Terminate RequestType = "terminate"
)

type DebugEventType string

const (
	OutputEvent     DebugEventType = "output"
	StoppedEvent    DebugEventType = "stopped"
	ContinuedEvent  DebugEventType = "continued"
	ExitedEvent     DebugEventType = "exited"
	TerminatedEvent DebugEventType = "terminated"
	LaunchEvent     DebugEventType = "launch"
)

// StoppedReasonType 程序停止类型
type StoppedReasonType string

const (
	BreakpointStopped StoppedReasonType = "breakpoint"
	StepStopped       StoppedReasonType = "step"
	ExitedNormally    StoppedReasonType = "exited-normally"
)

// StepType 单步调试类型
type StepType string

const (
	// StepIn 单步步进，会进入函数内部
	StepIn StepType = "stepIn"
	// StepOver 单步步过，不会进入函数内部
	StepOver StepType = "stepOver"
)
