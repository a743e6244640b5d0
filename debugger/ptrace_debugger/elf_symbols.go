//go:build linux

package ptrace_debugger

import (
	"debug/elf"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fansqz/go-windbg/debugger/arch"
	e "github.com/fansqz/go-windbg/error"
)

// ArchForExecutable 根据ELF头推断目标架构
func ArchForExecutable(path string) (*arch.Arch, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	switch f.Machine {
	case elf.EM_X86_64:
		return arch.NewAMD64(), nil
	case elf.EM_AARCH64:
		return arch.NewARM64(), nil
	default:
		return nil, fmt.Errorf("%w: %s", e.ErrUnsupportedArchitecture, f.Machine)
	}
}

// memoryRegion /proc/<pid>/maps中的一条映射记录
type memoryRegion struct {
	start  uint64
	end    uint64
	offset uint64
	path   string
}

// parseMapsData 解析/proc/<pid>/maps的内容
func parseMapsData(data []byte) []memoryRegion {
	var regions []memoryRegion
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		addrs := strings.SplitN(fields[0], "-", 2)
		if len(addrs) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrs[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrs[1], 16, 64)
		if err != nil {
			continue
		}
		offset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			continue
		}
		regions = append(regions, memoryRegion{
			start:  start,
			end:    end,
			offset: offset,
			path:   fields[5],
		})
	}
	return regions
}

// imageBases 每个已加载ELF映像的加载基址，按映射出现顺序返回
func imageBases(regions []memoryRegion) ([]string, map[string]uint64) {
	bases := make(map[string]uint64)
	var order []string
	for _, region := range regions {
		if !strings.HasPrefix(region.path, "/") || region.offset != 0 {
			continue
		}
		if _, ok := bases[region.path]; !ok {
			bases[region.path] = region.start
			order = append(order, region.path)
		}
	}
	return order, bases
}

// lookupSymbolAddr 在主程序和已加载的动态库中查找符号
// 动态库按加载顺序查找，返回第一个命中的地址
func (d *PtraceDebugger) lookupSymbolAddr(name string) (uint64, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", d.pid))
	if err != nil {
		return 0, err
	}
	order, bases := imageBases(parseMapsData(data))
	for _, path := range order {
		addr, err := symbolInImage(path, bases[path], name)
		if err == nil {
			return addr, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", e.ErrSymbolNotFound, name)
}

// symbolInImage 在单个ELF映像中查找符号
// 位置无关映像的符号值是相对加载基址的偏移
func symbolInImage(path string, base uint64, name string) (uint64, error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var symbols []elf.Symbol
	if dynamic, err := f.DynamicSymbols(); err == nil {
		symbols = append(symbols, dynamic...)
	}
	if static, err := f.Symbols(); err == nil {
		symbols = append(symbols, static...)
	}
	for _, symbol := range symbols {
		if symbol.Name != name || symbol.Value == 0 {
			continue
		}
		if f.Type == elf.ET_DYN {
			return base + symbol.Value, nil
		}
		return symbol.Value, nil
	}
	return 0, e.ErrSymbolNotFound
}
