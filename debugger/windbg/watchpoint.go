package windbg

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/go-windbg/debugger"
	e "github.com/fansqz/go-windbg/error"
)

// LoaderEntrySymbol 动态加载器的库加载入口函数
// 每次加载动态库都会经过这里，监视断点就设置在这个函数上
const LoaderEntrySymbol = "dlopen"

// LoadWatchpoint 库加载监视断点
// 每次加载器入口被命中都会评估一次：取出调用约定中第一个参数，
// 当作指针读出NUL结尾的路径字符串，路径以被监视的模块名结尾才停下。
type LoadWatchpoint struct {
	// ModuleName 被监视的模块名，按后缀匹配
	ModuleName string

	argRegister  string
	breakpointID string
	enabled      bool
}

// Evaluate 实现debugger.ConditionalStop
// 参数指针为空、不可读，都按条件不成立处理，静默放行，
// 库加载过程中的临时坏指针不能中断调试会话。
func (w *LoadWatchpoint) Evaluate(ctx context.Context, d debugger.Debugger) bool {
	if !w.enabled {
		return false
	}
	value, err := d.ReadRegister(ctx, w.argRegister)
	if err != nil || value == 0 {
		return false
	}
	path, err := d.ReadCString(ctx, value, 0)
	if err != nil {
		return false
	}
	return strings.HasSuffix(path, w.ModuleName)
}

// WatchModuleLoad 监视某个模块的加载
// 在加载器入口设置条件断点，模块路径后缀匹配时暂停程序
func (s *Session) WatchModuleLoad(ctx context.Context, module string) error {
	if !s.debugger.IsAlive() {
		return e.ErrNotRunning
	}
	addr, err := s.debugger.LookupSymbol(ctx, LoaderEntrySymbol)
	if err != nil {
		logrus.Warnf("[WatchModuleLoad] lookup %s fail, err = %v", LoaderEntrySymbol, err)
		return err
	}
	watchpoint := &LoadWatchpoint{
		ModuleName:  module,
		argRegister: s.arch.FirstArgumentRegister(),
		enabled:     true,
	}
	id, err := s.debugger.CreateConditionalBreakpoint(ctx, addr, watchpoint)
	if err != nil {
		return err
	}
	watchpoint.breakpointID = id
	s.mutex.Lock()
	s.watchpoints = append(s.watchpoints, watchpoint)
	s.mutex.Unlock()
	return nil
}

// UnwatchModuleLoad 取消某个模块的加载监视
// 模块名需要和监视时完全一致。取消一个没有监视过的模块不是错误，
// 静默忽略即可，这是有意保留的宽松行为。
func (s *Session) UnwatchModuleLoad(ctx context.Context, module string) error {
	if !s.debugger.IsAlive() {
		return e.ErrNotRunning
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for i, watchpoint := range s.watchpoints {
		if watchpoint.ModuleName == module {
			watchpoint.enabled = false
			s.watchpoints = append(s.watchpoints[:i], s.watchpoints[i+1:]...)
			return s.debugger.RemoveBreakpoint(ctx, watchpoint.breakpointID)
		}
	}
	return nil
}

// WatchedModules 当前被监视的模块名列表
func (s *Session) WatchedModules() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	modules := make([]string, 0, len(s.watchpoints))
	for _, watchpoint := range s.watchpoints {
		modules = append(modules, watchpoint.ModuleName)
	}
	return modules
}
