package windbg

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/go-windbg/debugger"
	"github.com/fansqz/go-windbg/debugger/arch"
	"github.com/fansqz/go-windbg/debugger/disasm"
	e "github.com/fansqz/go-windbg/error"
)

// Config 会话级别的可变开关
// 原版里这类开关是全局变量，这里收敛到会话配置里，方便多个会话独立测试
type Config struct {
	lock sync.RWMutex
	// verboseContext 停止时是否输出上下文信息（寄存器等）
	verboseContext bool
}

func NewConfig() *Config {
	return &Config{verboseContext: true}
}

func (c *Config) VerboseContext() bool {
	defer c.lock.RUnlock()
	c.lock.RLock()
	return c.verboseContext
}

func (c *Config) SetVerboseContext(enable bool) {
	defer c.lock.Unlock()
	c.lock.Lock()
	c.verboseContext = enable
}

// Session windbg风格的调试控制会话
// 持有架构描述符、进程访问适配器和会话配置，对外暴露
// 寄存器读写、库加载监视、call追踪这几类操作。
type Session struct {
	arch       *arch.Arch
	debugger   debugger.Debugger
	config     *Config
	classifier *disasm.Classifier
	callback   debugger.NotificationCallback

	// 断点记录
	mutex       sync.Mutex
	watchpoints []*LoadWatchpoint
}

func NewSession(a *arch.Arch, d debugger.Debugger, config *Config, callback debugger.NotificationCallback) *Session {
	if config == nil {
		config = NewConfig()
	}
	return &Session{
		arch:       a,
		debugger:   d,
		config:     config,
		classifier: disasm.NewClassifier(a, d),
		callback:   callback,
	}
}

func (s *Session) Config() *Config {
	return s.config
}

// Continue 继续执行被调试进程
func (s *Session) Continue(ctx context.Context) error {
	if !s.debugger.IsAlive() {
		return e.ErrNotRunning
	}
	return s.debugger.Continue(ctx)
}

// Send 输入数据到被调试进程的控制台
func (s *Session) Send(ctx context.Context, input string) error {
	if !s.debugger.IsAlive() {
		return e.ErrNotRunning
	}
	return s.debugger.Send(ctx, input)
}

// Terminate 终止调试
func (s *Session) Terminate(ctx context.Context) error {
	return s.debugger.Terminate(ctx)
}

// reportContext 输出当前上下文
// verbose开关关闭或者进程已经退出时不输出
func (s *Session) reportContext(ctx context.Context) {
	if !s.config.VerboseContext() || s.callback == nil || !s.debugger.IsAlive() {
		return
	}
	dump, err := s.DumpRegisters(ctx, nil, 0)
	if err != nil {
		logrus.Warnf("[reportContext] dump registers fail, err = %v", err)
		return
	}
	s.callback(debugger.NewOutputEvent(dump + "\n"))
	s.callback(debugger.NewStoppedEvent("step"))
}
