package debugger

import "github.com/google/go-dap"

func newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

// NewProcessEvent 进程启动事件
func NewProcessEvent(name string, pid int) *dap.ProcessEvent {
	return &dap.ProcessEvent{
		Event: newEvent("process"),
		Body: dap.ProcessEventBody{
			Name:            name,
			SystemProcessId: pid,
			IsLocalProcess:  true,
			StartMethod:     "launch",
		},
	}
}

// NewStoppedEvent 程序停止事件
func NewStoppedEvent(reason string) *dap.StoppedEvent {
	return &dap.StoppedEvent{
		Event: newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			AllThreadsStopped: true,
		},
	}
}

// NewContinuedEvent 程序继续执行事件
func NewContinuedEvent() *dap.ContinuedEvent {
	return &dap.ContinuedEvent{
		Event: newEvent("continued"),
		Body: dap.ContinuedEventBody{
			AllThreadsContinued: true,
		},
	}
}

// NewOutputEvent 目标程序产生输出或者调试器需要展示内容的事件
func NewOutputEvent(output string) *dap.OutputEvent {
	return &dap.OutputEvent{
		Event: newEvent("output"),
		Body: dap.OutputEventBody{
			Category: "stdout",
			Output:   output,
		},
	}
}

// NewExitedEvent 被调试进程退出事件
func NewExitedEvent(exitCode int) *dap.ExitedEvent {
	return &dap.ExitedEvent{
		Event: newEvent("exited"),
		Body: dap.ExitedEventBody{
			ExitCode: exitCode,
		},
	}
}

// NewTerminatedEvent 调试结束事件
func NewTerminatedEvent() *dap.TerminatedEvent {
	return &dap.TerminatedEvent{
		Event: newEvent("terminated"),
	}
}
