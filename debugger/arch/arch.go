package arch

import (
	"fmt"

	"github.com/emirpasic/gods/sets"

	e "github.com/fansqz/go-windbg/error"
	"github.com/fansqz/go-windbg/utils"
)

const (
	AMD64 = "amd64"
	ARM64 = "arm64"
)

// Arch 目标架构描述符
// 会话启动时选择一次，之后只读。寄存器列表是固定顺序的，
// dump输出、ABI参数寄存器等都由该结构提供，避免在各个操作里散落架构判断。
type Arch struct {
	// Name 架构名称，amd64或者arm64
	Name string
	// Registers 通用寄存器的固定展示顺序
	Registers []string
	// PCRegister 程序计数器寄存器名称
	PCRegister string
	// SPRegister 栈指针寄存器名称
	SPRegister string
	// ArgumentRegisters 函数调用约定中的整型参数寄存器，按参数顺序排列
	ArgumentRegisters []string
	// DumpPerLine 寄存器dump默认每行输出的个数
	DumpPerLine int
	// BreakpointInstruction 断点指令
	BreakpointInstruction []byte
	// MinInstructionSize 指令最小长度，用于解码失败时推进pc
	MinInstructionSize int

	registerSet sets.Set
}

// NewAMD64 x86-64架构描述符
func NewAMD64() *Arch {
	a := &Arch{
		Name: AMD64,
		Registers: []string{
			"rax", "rbx", "rcx",
			"rdx", "rsi", "rdi",
			"rip", "rsp", "rbp",
			"r8", "r9", "r10",
			"r11", "r12", "r13",
			"r14", "r15",
		},
		PCRegister:            "rip",
		SPRegister:            "rsp",
		ArgumentRegisters:     []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
		DumpPerLine:           3,
		BreakpointInstruction: []byte{0xCC},
		MinInstructionSize:    1,
	}
	a.registerSet = utils.List2set(a.Registers)
	return a
}

// NewARM64 aarch64架构描述符
func NewARM64() *Arch {
	a := &Arch{
		Name: ARM64,
		Registers: []string{
			"x0", "x1", "x2", "x3",
			"x4", "x5", "x6", "x7",
			"x8", "x9", "x10", "x11",
			"x12", "x13", "x14", "x15",
			"x16", "x17", "x18", "x19",
			"x20", "x21", "x22", "x23",
			"x24", "x25", "x26", "x27",
			"x28", "fp", "lr", "sp",
			"pc",
		},
		PCRegister:        "pc",
		SPRegister:        "sp",
		ArgumentRegisters: []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"},
		DumpPerLine:       4,
		// brk #0
		BreakpointInstruction: []byte{0x00, 0x00, 0x20, 0xD4},
		MinInstructionSize:    4,
	}
	a.registerSet = utils.List2set(a.Registers)
	return a
}

// New 根据架构名称创建描述符
// 不认识的架构直接拒绝，不能猜测一个寄存器布局输出垃圾内容
func New(name string) (*Arch, error) {
	switch name {
	case AMD64, "x86_64", "x86-64":
		return NewAMD64(), nil
	case ARM64, "aarch64":
		return NewARM64(), nil
	default:
		return nil, fmt.Errorf("%w: %s", e.ErrUnsupportedArchitecture, name)
	}
}

// HasRegister 判断寄存器是否属于当前架构
func (a *Arch) HasRegister(name string) bool {
	return a.registerSet.Contains(name)
}

// FirstArgumentRegister 调用约定中第一个参数所在的寄存器
func (a *Arch) FirstArgumentRegister() string {
	return a.ArgumentRegisters[0]
}
