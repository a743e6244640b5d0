package arch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	e "github.com/fansqz/go-windbg/error"
)

func TestNew(t *testing.T) {
	amd64, err := New("amd64")
	assert.Nil(t, err)
	assert.Equal(t, AMD64, amd64.Name)

	alias, err := New("x86_64")
	assert.Nil(t, err)
	assert.Equal(t, AMD64, alias.Name)

	arm64, err := New("aarch64")
	assert.Nil(t, err)
	assert.Equal(t, ARM64, arm64.Name)

	_, err = New("mips")
	assert.True(t, errors.Is(err, e.ErrUnsupportedArchitecture))
}

func TestAMD64RegisterSet(t *testing.T) {
	a := NewAMD64()
	assert.Equal(t, 17, len(a.Registers))
	// 寄存器名不允许重复
	seen := map[string]bool{}
	for _, name := range a.Registers {
		assert.False(t, seen[name], name)
		seen[name] = true
	}
	assert.True(t, a.HasRegister(a.PCRegister))
	assert.True(t, a.HasRegister(a.SPRegister))
	assert.True(t, a.HasRegister("rax"))
	assert.False(t, a.HasRegister("x0"))
	assert.Equal(t, 3, a.DumpPerLine)
	assert.Equal(t, "rdi", a.FirstArgumentRegister())
}

func TestARM64RegisterSet(t *testing.T) {
	a := NewARM64()
	assert.Equal(t, 33, len(a.Registers))
	assert.True(t, a.HasRegister("pc"))
	assert.True(t, a.HasRegister("x28"))
	assert.True(t, a.HasRegister("fp"))
	assert.False(t, a.HasRegister("rax"))
	assert.Equal(t, 4, a.DumpPerLine)
	assert.Equal(t, "x0", a.FirstArgumentRegister())
}
