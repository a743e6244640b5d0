package windbg

import (
	"context"
	"fmt"

	"github.com/fansqz/go-windbg/debugger"
	e "github.com/fansqz/go-windbg/error"
)

// fakeDebugger 脚本化的进程访问适配器，测试专用
// 单步按照pcSchedule依次推进pc，内存按字节粒度存储
type fakeDebugger struct {
	alive     bool
	registers map[string]uint64
	memory    map[uint64]byte
	symbols   map[string]uint64

	pc         uint64
	pcSchedule []uint64
	// pcErr 不为nil时读取pc固定失败
	pcErr error

	stepCount     int
	stepOverCount int
	// dieAfterSteps 大于0时，第N次单步之后进程退出
	dieAfterSteps int

	breakpoints map[string]*fakeBreakpoint
	removedIDs  []string
}

type fakeBreakpoint struct {
	addr      uint64
	condition debugger.ConditionalStop
}

func newFakeDebugger() *fakeDebugger {
	return &fakeDebugger{
		alive:       true,
		registers:   make(map[string]uint64),
		memory:      make(map[uint64]byte),
		symbols:     make(map[string]uint64),
		breakpoints: make(map[string]*fakeBreakpoint),
	}
}

func (f *fakeDebugger) setMemory(addr uint64, data []byte) {
	for i, b := range data {
		f.memory[addr+uint64(i)] = b
	}
}

func (f *fakeDebugger) Start(ctx context.Context, option *debugger.StartOption) error {
	return nil
}

func (f *fakeDebugger) ReadRegister(ctx context.Context, name string) (uint64, error) {
	if !f.alive {
		return 0, e.ErrNotRunning
	}
	return f.registers[name], nil
}

func (f *fakeDebugger) WriteRegister(ctx context.Context, name string, value uint64) error {
	if !f.alive {
		return e.ErrNotRunning
	}
	f.registers[name] = value
	return nil
}

func (f *fakeDebugger) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	if !f.alive {
		return nil, e.ErrNotRunning
	}
	var buf []byte
	for i := 0; i < size; i++ {
		b, ok := f.memory[addr+uint64(i)]
		if !ok {
			break
		}
		buf = append(buf, b)
	}
	if len(buf) == 0 {
		return nil, e.ErrInvalidAddress
	}
	return buf, nil
}

func (f *fakeDebugger) ReadCString(ctx context.Context, addr uint64, maxLength int) (string, error) {
	if !f.alive {
		return "", e.ErrNotRunning
	}
	if addr == 0 {
		return "", e.ErrInvalidAddress
	}
	if _, ok := f.memory[addr]; !ok {
		return "", e.ErrInvalidAddress
	}
	var result []byte
	for i := 0; maxLength <= 0 || i < maxLength; i++ {
		b, ok := f.memory[addr+uint64(i)]
		if !ok || b == 0 {
			break
		}
		result = append(result, b)
	}
	return string(result), nil
}

func (f *fakeDebugger) PC(ctx context.Context) (uint64, error) {
	if !f.alive {
		return 0, e.ErrNotRunning
	}
	if f.pcErr != nil {
		return 0, f.pcErr
	}
	return f.pc, nil
}

func (f *fakeDebugger) step() {
	if len(f.pcSchedule) > 0 {
		f.pc = f.pcSchedule[0]
		f.pcSchedule = f.pcSchedule[1:]
	}
	if f.dieAfterSteps > 0 && f.stepCount+f.stepOverCount >= f.dieAfterSteps {
		f.alive = false
	}
}

func (f *fakeDebugger) StepInstruction(ctx context.Context) error {
	if !f.alive {
		return e.ErrNotRunning
	}
	f.stepCount++
	f.step()
	return nil
}

func (f *fakeDebugger) StepOverInstruction(ctx context.Context) error {
	if !f.alive {
		return e.ErrNotRunning
	}
	f.stepOverCount++
	f.step()
	return nil
}

func (f *fakeDebugger) Continue(ctx context.Context) error {
	if !f.alive {
		return e.ErrNotRunning
	}
	return nil
}

func (f *fakeDebugger) IsAlive() bool {
	return f.alive
}

func (f *fakeDebugger) LookupSymbol(ctx context.Context, name string) (uint64, error) {
	addr, ok := f.symbols[name]
	if !ok {
		return 0, e.ErrSymbolNotFound
	}
	return addr, nil
}

func (f *fakeDebugger) CreateConditionalBreakpoint(ctx context.Context, addr uint64, condition debugger.ConditionalStop) (string, error) {
	id := fmt.Sprintf("bp-%d", len(f.breakpoints)+len(f.removedIDs)+1)
	f.breakpoints[id] = &fakeBreakpoint{addr: addr, condition: condition}
	return id, nil
}

func (f *fakeDebugger) RemoveBreakpoint(ctx context.Context, id string) error {
	delete(f.breakpoints, id)
	f.removedIDs = append(f.removedIDs, id)
	return nil
}

func (f *fakeDebugger) Send(ctx context.Context, input string) error {
	if !f.alive {
		return e.ErrNotRunning
	}
	return nil
}

func (f *fakeDebugger) Terminate(ctx context.Context) error {
	f.alive = false
	return nil
}
