package disasm

import (
	"context"
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"

	"github.com/fansqz/go-windbg/debugger/arch"
)

// amd64指令最长15个字节
const maxInstructionLength = 15

// Instruction 单条指令的解码结果
type Instruction struct {
	// Size 指令长度
	Size int
	// IsCall 是否为调用类指令，包含直接、间接调用以及arm64的branch-and-link
	IsCall bool
}

// Decode 解码mem中的第一条指令
func Decode(a *arch.Arch, mem []byte) (Instruction, error) {
	switch a.Name {
	case arch.AMD64:
		inst, err := x86asm.Decode(mem, 64)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{
			Size:   inst.Len,
			IsCall: inst.Op == x86asm.CALL || inst.Op == x86asm.LCALL,
		}, nil
	case arch.ARM64:
		if len(mem) < 4 {
			return Instruction{}, fmt.Errorf("short instruction buffer: %d bytes", len(mem))
		}
		inst, err := arm64asm.Decode(mem[:4])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{
			Size:   4,
			IsCall: inst.Op == arm64asm.BL || inst.Op == arm64asm.BLR,
		}, nil
	default:
		return Instruction{}, fmt.Errorf("no decoder for architecture %s", a.Name)
	}
}

// MemoryReader 目标内存读取接口
type MemoryReader interface {
	ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error)
}

// Classifier 指令分类器
// 只读取目标内存做解码，不会修改被调试进程的任何状态。
type Classifier struct {
	arch *arch.Arch
	mem  MemoryReader
}

func NewClassifier(a *arch.Arch, mem MemoryReader) *Classifier {
	return &Classifier{arch: a, mem: mem}
}

// IsCallInstruction 判断addr处的指令是否为调用类指令
// 读取失败或者解码失败都归类为非call，保证单步循环总能继续推进
func (c *Classifier) IsCallInstruction(ctx context.Context, addr uint64) bool {
	size := maxInstructionLength
	if c.arch.Name == arch.ARM64 {
		size = 4
	}
	mem, err := c.mem.ReadMemory(ctx, addr, size)
	if err != nil {
		return false
	}
	inst, err := Decode(c.arch, mem)
	if err != nil {
		return false
	}
	return inst.IsCall
}
