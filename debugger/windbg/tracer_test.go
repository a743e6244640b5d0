package windbg

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"

	"github.com/fansqz/go-windbg/constants"
	"github.com/fansqz/go-windbg/debugger/arch"
	e "github.com/fansqz/go-windbg/error"
)

const traceBase = uint64(0x401000)

// setupTraceFake 构造一段直线指令流：callIndex之前都是nop，callIndex处是call
// 每步的pc间隔0x10，初始pc停在traceBase
func setupTraceFake(steps int, callIndex int) *fakeDebugger {
	fake := newFakeDebugger()
	fake.pc = traceBase
	fake.setMemory(traceBase, []byte{0x90})
	for i := 1; i <= steps; i++ {
		pc := traceBase + uint64(i)*0x10
		if i == callIndex {
			fake.setMemory(pc, []byte{0xE8, 0x00, 0x00, 0x00, 0x00})
		} else {
			fake.setMemory(pc, []byte{0x90})
		}
		fake.pcSchedule = append(fake.pcSchedule, pc)
	}
	return fake
}

func TestTraceUntilCallStopsAtCall(t *testing.T) {
	ctx := context.Background()
	// 5条非call指令之后是一条call
	fake := setupTraceFake(6, 6)
	session := newTestSession(arch.NewAMD64(), fake)

	err := session.TraceUntilCall(ctx, constants.StepIn, 0)
	assert.Nil(t, err)
	// 第6步之后停在call指令上
	assert.Equal(t, 6, fake.stepCount)
	assert.Equal(t, traceBase+6*0x10, fake.pc)
	assert.True(t, session.Config().VerboseContext())
}

func TestTraceUntilCallBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	fake := setupTraceFake(6, 6)
	session := newTestSession(arch.NewAMD64(), fake)

	// 预算3步，没找到call就停
	err := session.TraceUntilCall(ctx, constants.StepIn, 3)
	assert.Nil(t, err)
	assert.Equal(t, 3, fake.stepCount)
	assert.Equal(t, traceBase+3*0x10, fake.pc)
	assert.True(t, session.Config().VerboseContext())
}

func TestTraceUntilCallStepOverVariant(t *testing.T) {
	ctx := context.Background()
	fake := setupTraceFake(4, 4)
	session := newTestSession(arch.NewAMD64(), fake)

	err := session.TraceUntilCall(ctx, constants.StepOver, 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, fake.stepCount)
	assert.Equal(t, 4, fake.stepOverCount)
}

func TestTraceUntilCallNotRunning(t *testing.T) {
	ctx := context.Background()
	fake := setupTraceFake(3, 3)
	fake.alive = false
	session := newTestSession(arch.NewAMD64(), fake)
	session.Config().SetVerboseContext(true)

	err := session.TraceUntilCall(ctx, constants.StepIn, 0)
	assert.True(t, errors.Is(err, e.ErrNotRunning))
	assert.Equal(t, 0, fake.stepCount)
	// 进程不在运行时开关不能被动过
	assert.True(t, session.Config().VerboseContext())
}

func TestTraceUntilCallDebuggeeDiesMidLoop(t *testing.T) {
	ctx := context.Background()
	fake := setupTraceFake(10, 10)
	fake.dieAfterSteps = 2
	session := newTestSession(arch.NewAMD64(), fake)

	// 进程中途退出按提前结束处理，不是错误，开关照常恢复
	err := session.TraceUntilCall(ctx, constants.StepIn, 0)
	assert.Nil(t, err)
	assert.Equal(t, 2, fake.stepCount)
	assert.True(t, session.Config().VerboseContext())
}

func TestTraceUntilCallRestoresPreviousVerbose(t *testing.T) {
	ctx := context.Background()
	fake := setupTraceFake(3, 3)
	session := newTestSession(arch.NewAMD64(), fake)
	session.Config().SetVerboseContext(false)

	err := session.TraceUntilCall(ctx, constants.StepIn, 0)
	assert.Nil(t, err)
	// 恢复的是之前的状态，而不是无条件打开
	assert.False(t, session.Config().VerboseContext())
}

func TestTraceUntilCallPCReadError(t *testing.T) {
	ctx := context.Background()
	fake := setupTraceFake(3, 3)
	fake.pcErr = errors.New("read pc: input/output error")
	session := newTestSession(arch.NewAMD64(), fake)

	// 进程还在但pc读不出来，错误要上报而不是当作提前结束吞掉
	err := session.TraceUntilCall(ctx, constants.StepIn, 0)
	assert.True(t, errors.Is(err, fake.pcErr))
	assert.Equal(t, 1, fake.stepCount)
	assert.True(t, session.Config().VerboseContext())
}

func TestTraceUntilCallCancelled(t *testing.T) {
	fake := setupTraceFake(3, 3)
	session := newTestSession(arch.NewAMD64(), fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := session.TraceUntilCall(ctx, constants.StepIn, 0)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, fake.stepCount)
	assert.True(t, session.Config().VerboseContext())
}

func TestTraceUntilCallReportsContext(t *testing.T) {
	ctx := context.Background()
	fake := setupTraceFake(3, 3)
	var events []dap.EventMessage
	session := NewSession(arch.NewAMD64(), fake, NewConfig(), func(event dap.EventMessage) {
		events = append(events, event)
	})

	err := session.TraceUntilCall(ctx, constants.StepIn, 0)
	assert.Nil(t, err)
	// 追踪结束后输出一次上下文：寄存器dump加stopped事件
	assert.Equal(t, 2, len(events))
	output, ok := events[0].(*dap.OutputEvent)
	assert.True(t, ok)
	assert.Contains(t, output.Body.Output, "rax=")
	stopped, ok := events[1].(*dap.StoppedEvent)
	assert.True(t, ok)
	assert.Equal(t, "step", stopped.Body.Reason)
}

func TestTraceUntilCallNoReportWhenVerboseDisabled(t *testing.T) {
	ctx := context.Background()
	fake := setupTraceFake(3, 3)
	var events []dap.EventMessage
	session := NewSession(arch.NewAMD64(), fake, NewConfig(), func(event dap.EventMessage) {
		events = append(events, event)
	})
	session.Config().SetVerboseContext(false)

	err := session.TraceUntilCall(ctx, constants.StepIn, 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(events))
}
