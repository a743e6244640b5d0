package disasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fansqz/go-windbg/debugger/arch"
	e "github.com/fansqz/go-windbg/error"
)

func TestDecodeAMD64(t *testing.T) {
	a := arch.NewAMD64()

	// call rel32
	inst, err := Decode(a, []byte{0xE8, 0x00, 0x00, 0x00, 0x00})
	assert.Nil(t, err)
	assert.True(t, inst.IsCall)
	assert.Equal(t, 5, inst.Size)

	// call rax
	inst, err = Decode(a, []byte{0xFF, 0xD0})
	assert.Nil(t, err)
	assert.True(t, inst.IsCall)
	assert.Equal(t, 2, inst.Size)

	// nop
	inst, err = Decode(a, []byte{0x90})
	assert.Nil(t, err)
	assert.False(t, inst.IsCall)
	assert.Equal(t, 1, inst.Size)

	// ret
	inst, err = Decode(a, []byte{0xC3})
	assert.Nil(t, err)
	assert.False(t, inst.IsCall)

	// 64位模式下不合法的指令
	_, err = Decode(a, []byte{0x06})
	assert.NotNil(t, err)
}

func TestDecodeARM64(t *testing.T) {
	a := arch.NewARM64()

	// bl
	inst, err := Decode(a, []byte{0x01, 0x00, 0x00, 0x94})
	assert.Nil(t, err)
	assert.True(t, inst.IsCall)
	assert.Equal(t, 4, inst.Size)

	// blr x8
	inst, err = Decode(a, []byte{0x00, 0x01, 0x3F, 0xD6})
	assert.Nil(t, err)
	assert.True(t, inst.IsCall)

	// nop
	inst, err = Decode(a, []byte{0x1F, 0x20, 0x03, 0xD5})
	assert.Nil(t, err)
	assert.False(t, inst.IsCall)

	// ret
	inst, err = Decode(a, []byte{0xC0, 0x03, 0x5F, 0xD6})
	assert.Nil(t, err)
	assert.False(t, inst.IsCall)

	// 不足一条指令
	_, err = Decode(a, []byte{0x00, 0x00})
	assert.NotNil(t, err)
}

// fakeMemory 按字节粒度记录的目标内存
type fakeMemory struct {
	data map[uint64]byte
}

func (f *fakeMemory) set(addr uint64, data []byte) {
	for i, b := range data {
		f.data[addr+uint64(i)] = b
	}
}

func (f *fakeMemory) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	var buf []byte
	for i := 0; i < size; i++ {
		b, ok := f.data[addr+uint64(i)]
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

func TestClassifier(t *testing.T) {
	ctx := context.Background()
	mem := &fakeMemory{data: map[uint64]byte{}}
	mem.set(0x1000, []byte{0xE8, 0x10, 0x00, 0x00, 0x00})
	mem.set(0x2000, []byte{0x90})
	mem.set(0x3000, []byte{0x06})

	classifier := NewClassifier(arch.NewAMD64(), mem)
	assert.True(t, classifier.IsCallInstruction(ctx, 0x1000))
	assert.False(t, classifier.IsCallInstruction(ctx, 0x2000))
	// 解码失败归类为非call
	assert.False(t, classifier.IsCallInstruction(ctx, 0x3000))
	// 读内存失败归类为非call
	assert.False(t, classifier.IsCallInstruction(ctx, 0x9000))
}
