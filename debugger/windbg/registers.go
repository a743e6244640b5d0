package windbg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	e "github.com/fansqz/go-windbg/error"
)

// RegisterWriteRequest 从文本赋值表达式解析出来的寄存器写入请求
type RegisterWriteRequest struct {
	Name  string
	Value uint64
}

// ParseAssignment 解析 NAME=HEXVALUE 形式的赋值表达式
// 输入中的空白和@前缀会被去掉，右侧按十六进制解析，不需要0x前缀
func ParseAssignment(text string) (*RegisterWriteRequest, error) {
	combined := stripInput(text)
	parts := strings.Split(combined, "=")
	if len(parts) != 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: %q", e.ErrMalformedAssignment, text)
	}
	value, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", e.ErrInvalidHexValue, parts[1])
	}
	return &RegisterWriteRequest{Name: parts[0], Value: value}, nil
}

// ParseReadList 解析逗号分隔的寄存器名称列表，保持输入顺序
func ParseReadList(text string) []string {
	combined := stripInput(text)
	var names []string
	for _, name := range strings.Split(combined, ",") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func stripInput(text string) string {
	return strings.NewReplacer(" ", "", "\t", "", "@", "").Replace(text)
}

// DumpRegisters 按固定版式输出寄存器内容
// names为空时输出当前架构的全部通用寄存器，perLine不大于0时使用架构默认值。
// 每个寄存器渲染为 NAME=十六进制16位（补零），名称右对齐，每行perLine个。
func (s *Session) DumpRegisters(ctx context.Context, names []string, perLine int) (string, error) {
	if !s.debugger.IsAlive() {
		return "", e.ErrNotRunning
	}
	if len(names) == 0 {
		names = s.arch.Registers
	}
	if perLine <= 0 {
		perLine = s.arch.DumpPerLine
	}
	values := make([]uint64, len(names))
	for i, name := range names {
		if !s.arch.HasRegister(name) {
			return "", fmt.Errorf("%w: %s", e.ErrUnknownRegister, name)
		}
		value, err := s.debugger.ReadRegister(ctx, name)
		if err != nil {
			return "", err
		}
		values[i] = value
	}
	return formatRegisters(names, values, perLine), nil
}

// ReadRegisters 按逗号分隔的文本列表读取寄存器，允许重复，保持输入顺序
func (s *Session) ReadRegisters(ctx context.Context, text string) (string, error) {
	return s.DumpRegisters(ctx, ParseReadList(text), 0)
}

// WriteRegister 解析赋值表达式并写入寄存器
func (s *Session) WriteRegister(ctx context.Context, text string) error {
	if !s.debugger.IsAlive() {
		return e.ErrNotRunning
	}
	request, err := ParseAssignment(text)
	if err != nil {
		return err
	}
	if !s.arch.HasRegister(request.Name) {
		return fmt.Errorf("%w: %s", e.ErrUnknownRegister, request.Name)
	}
	return s.debugger.WriteRegister(ctx, request.Name, request.Value)
}

func formatRegisters(names []string, values []uint64, perLine int) string {
	var lines []string
	for i := 0; i < len(names); i += perLine {
		end := i + perLine
		if end > len(names) {
			end = len(names)
		}
		entries := make([]string, 0, perLine)
		for j := i; j < end; j++ {
			entries = append(entries, fmt.Sprintf("%3s=%016x", names[j], values[j]))
		}
		lines = append(lines, strings.Join(entries, " "))
	}
	return strings.Join(lines, "\n")
}
