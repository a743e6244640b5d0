package ptrace_debugger

import (
	"fmt"

	"golang.org/x/sys/unix"

	e "github.com/fansqz/go-windbg/error"
)

// int3触发后pc停在断点指令的下一个字节
const breakpointPCOffset = 1

func (d *PtraceDebugger) getRegs() (*unix.PtraceRegs, error) {
	var regs unix.PtraceRegs
	var err error
	d.execPtraceFunc(func() { err = unix.PtraceGetRegs(d.pid, &regs) })
	if err != nil {
		return nil, err
	}
	return &regs, nil
}

func (d *PtraceDebugger) setRegs(regs *unix.PtraceRegs) error {
	var err error
	d.execPtraceFunc(func() { err = unix.PtraceSetRegs(d.pid, regs) })
	return err
}

func (d *PtraceDebugger) readRegisterValue(name string) (uint64, error) {
	regs, err := d.getRegs()
	if err != nil {
		return 0, err
	}
	field, ok := registerField(regs, name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", e.ErrUnknownRegister, name)
	}
	return *field, nil
}

func (d *PtraceDebugger) writeRegisterValue(name string, value uint64) error {
	regs, err := d.getRegs()
	if err != nil {
		return err
	}
	field, ok := registerField(regs, name)
	if !ok {
		return fmt.Errorf("%w: %s", e.ErrUnknownRegister, name)
	}
	*field = value
	return d.setRegs(regs)
}

func (d *PtraceDebugger) readPC() (uint64, error) {
	regs, err := d.getRegs()
	if err != nil {
		return 0, err
	}
	return regs.Rip, nil
}

func (d *PtraceDebugger) writePC(value uint64) error {
	regs, err := d.getRegs()
	if err != nil {
		return err
	}
	regs.Rip = value
	return d.setRegs(regs)
}

// registerField 寄存器名到user_regs_struct字段的映射
func registerField(regs *unix.PtraceRegs, name string) (*uint64, bool) {
	switch name {
	case "rax":
		return &regs.Rax, true
	case "rbx":
		return &regs.Rbx, true
	case "rcx":
		return &regs.Rcx, true
	case "rdx":
		return &regs.Rdx, true
	case "rsi":
		return &regs.Rsi, true
	case "rdi":
		return &regs.Rdi, true
	case "rip":
		return &regs.Rip, true
	case "rsp":
		return &regs.Rsp, true
	case "rbp":
		return &regs.Rbp, true
	case "r8":
		return &regs.R8, true
	case "r9":
		return &regs.R9, true
	case "r10":
		return &regs.R10, true
	case "r11":
		return &regs.R11, true
	case "r12":
		return &regs.R12, true
	case "r13":
		return &regs.R13, true
	case "r14":
		return &regs.R14, true
	case "r15":
		return &regs.R15, true
	default:
		return nil, false
	}
}
