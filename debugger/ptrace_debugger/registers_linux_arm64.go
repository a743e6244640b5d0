package ptrace_debugger

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	e "github.com/fansqz/go-windbg/error"
)

// brk触发后pc仍然停在断点指令上
const breakpointPCOffset = 0

func (d *PtraceDebugger) getRegs() (*unix.PtraceRegsArm64, error) {
	var regs unix.PtraceRegsArm64
	var err error
	d.execPtraceFunc(func() { err = unix.PtraceGetRegSetArm64(d.pid, unix.NT_PRSTATUS, &regs) })
	if err != nil {
		return nil, err
	}
	return &regs, nil
}

func (d *PtraceDebugger) setRegs(regs *unix.PtraceRegsArm64) error {
	var err error
	d.execPtraceFunc(func() { err = unix.PtraceSetRegSetArm64(d.pid, unix.NT_PRSTATUS, regs) })
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
	return regs.Pc, nil
}

func (d *PtraceDebugger) writePC(value uint64) error {
	regs, err := d.getRegs()
	if err != nil {
		return err
	}
	regs.Pc = value
	return d.setRegs(regs)
}

// registerField 寄存器名到user_pt_regs字段的映射
func registerField(regs *unix.PtraceRegsArm64, name string) (*uint64, bool) {
	switch name {
	case "fp":
		return &regs.Regs[29], true
	case "lr":
		return &regs.Regs[30], true
	case "sp":
		return &regs.Sp, true
	case "pc":
		return &regs.Pc, true
	}
	if strings.HasPrefix(name, "x") {
		index, err := strconv.Atoi(name[1:])
		if err == nil && index >= 0 && index <= 28 {
			return &regs.Regs[index], true
		}
	}
	return nil, false
}
