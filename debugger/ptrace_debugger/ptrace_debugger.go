//go:build linux

package ptrace_debugger

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/fansqz/go-windbg/debugger"
	"github.com/fansqz/go-windbg/debugger/arch"
	"github.com/fansqz/go-windbg/debugger/disasm"
	e "github.com/fansqz/go-windbg/error"
	"github.com/fansqz/go-windbg/utils"
	"github.com/fansqz/go-windbg/utils/gosync"
)

// PtraceDebugger 基于ptrace(2)的进程访问适配器实现
// linux要求一个被跟踪进程的所有ptrace请求都来自同一个系统线程，
// 所以所有ptrace操作都通过一个锁定线程的协程串行执行。
type PtraceDebugger struct {
	startOption *debugger.StartOption

	// 目标架构描述符
	arch *arch.Arch

	// 事件产生时，触发该回调
	callback debugger.NotificationCallback

	// 调试的状态管理
	StatusManager *utils.StatusManager

	cmd *exec.Cmd
	pid int
	tty *os.File

	ptraceChan     chan func()
	ptraceDoneChan chan struct{}

	// 断点记录
	mutex       sync.Mutex
	breakpoints map[uint64]*physicalBreakpoint
	byID        map[string]*Breakpoint
}

// Breakpoint 逻辑断点
// 同一个地址上可以挂多个逻辑断点，各自独立评估停止条件
type Breakpoint struct {
	ID   string
	Addr uint64
	// Condition 停止条件，为nil表示无条件停止
	Condition debugger.ConditionalStop
	temporary bool
}

// physicalBreakpoint 写入目标内存的断点指令，每个地址最多一个
type physicalBreakpoint struct {
	addr         uint64
	originalData []byte
	refs         []*Breakpoint
}

func NewPtraceDebugger(a *arch.Arch) *PtraceDebugger {
	return &PtraceDebugger{
		arch:          a,
		StatusManager: utils.NewStatusManager(),
		breakpoints:   make(map[uint64]*physicalBreakpoint),
		byID:          make(map[string]*Breakpoint),
	}
}

func (d *PtraceDebugger) Start(ctx context.Context, option *debugger.StartOption) error {
	d.startOption = option
	d.callback = option.Callback
	d.ptraceChan = make(chan func())
	d.ptraceDoneChan = make(chan struct{})
	go d.handlePtraceFuncs()

	var err error
	d.execPtraceFunc(func() { err = d.launch(option) })
	if err != nil {
		logrus.Errorf("[Start] launch fail, err = %v", err)
		return err
	}
	d.StatusManager.Set(utils.Stopped)
	// 启动协程读取用户输出
	gosync.Go(ctx, d.processDebuggeeOutput)
	if d.callback != nil {
		d.callback(debugger.NewProcessEvent(option.ExecFile, d.pid))
	}
	return nil
}

// handlePtraceFuncs 串行执行所有ptrace操作
// 线程锁定后不再释放，保证每个ptrace请求都来自launch时的线程
func (d *PtraceDebugger) handlePtraceFuncs() {
	runtime.LockOSThread()
	for fn := range d.ptraceChan {
		fn()
		d.ptraceDoneChan <- struct{}{}
	}
}

func (d *PtraceDebugger) execPtraceFunc(fn func()) {
	d.ptraceChan <- fn
	<-d.ptraceDoneChan
}

// launch 在pty上启动被调试进程，进程exec后停在入口等待控制命令
func (d *PtraceDebugger) launch(option *debugger.StartOption) error {
	cmd := exec.Command(option.ExecFile, option.Args...)
	tty, err := pty.StartWithAttrs(cmd, nil, &syscall.SysProcAttr{
		Ptrace:  true,
		Setsid:  true,
		Setctty: true,
	})
	if err != nil {
		return err
	}
	d.cmd = cmd
	d.tty = tty
	d.pid = cmd.Process.Pid
	// 等待exec产生的初始停止
	var status unix.WaitStatus
	if _, err = unix.Wait4(d.pid, &status, 0, nil); err != nil {
		return err
	}
	if status.Exited() {
		return fmt.Errorf("debuggee exited during launch, code = %d", status.ExitStatus())
	}
	return nil
}

// processDebuggeeOutput 循环处理用户程序输出
func (d *PtraceDebugger) processDebuggeeOutput(ctx context.Context) {
	b := make([]byte, 1024)
	for {
		n, err := d.tty.Read(b)
		if err != nil {
			return
		}
		if n > 0 && d.callback != nil {
			d.callback(debugger.NewOutputEvent(string(b[:n])))
		}
	}
}

func (d *PtraceDebugger) IsAlive() bool {
	return d.StatusManager.Is(utils.Stopped, utils.Running)
}

func (d *PtraceDebugger) Send(ctx context.Context, input string) error {
	if !d.IsAlive() {
		return e.ErrNotRunning
	}
	if len(input) == 0 || input[len(input)-1] != '\n' {
		input += "\n"
	}
	_, err := d.tty.Write([]byte(input))
	return err
}

// ReadRegister 读取单个寄存器
func (d *PtraceDebugger) ReadRegister(ctx context.Context, name string) (uint64, error) {
	if !d.IsAlive() {
		return 0, e.ErrNotRunning
	}
	if !d.arch.HasRegister(name) {
		return 0, fmt.Errorf("%w: %s", e.ErrUnknownRegister, name)
	}
	return d.readRegisterValue(name)
}

// WriteRegister 写入单个寄存器
func (d *PtraceDebugger) WriteRegister(ctx context.Context, name string, value uint64) error {
	if !d.IsAlive() {
		return e.ErrNotRunning
	}
	if !d.arch.HasRegister(name) {
		return fmt.Errorf("%w: %s", e.ErrUnknownRegister, name)
	}
	return d.writeRegisterValue(name, value)
}

func (d *PtraceDebugger) PC(ctx context.Context) (uint64, error) {
	if !d.IsAlive() {
		return 0, e.ErrNotRunning
	}
	return d.readPC()
}

// peekFunc 从目标内存读取数据，返回读到的字节数
// 读取范围越过未映射页时可能同时返回部分数据和错误
type peekFunc func(addr uint64, buf []byte) (int, error)

// peekMemory 从addr读取最多size个字节
// 贴着未映射区域时返回能读到的部分，一个字节都读不到才算地址非法
func peekMemory(peek peekFunc, addr uint64, size int) ([]byte, error) {
	if addr == 0 {
		return nil, e.ErrInvalidAddress
	}
	buf := make([]byte, size)
	n, _ := peek(addr, buf)
	if n <= 0 {
		return nil, fmt.Errorf("%w: %#x", e.ErrInvalidAddress, addr)
	}
	return buf[:n], nil
}

// ReadMemory 从目标内存读取size个字节
func (d *PtraceDebugger) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	if !d.IsAlive() {
		return nil, e.ErrNotRunning
	}
	buf, err := peekMemory(d.ptracePeek, addr, size)
	if err != nil {
		return nil, err
	}
	d.overlayBreakpoints(addr, buf)
	return buf, nil
}

// overlayBreakpoints 还原读取范围内被断点指令覆盖的原始字节
func (d *PtraceDebugger) overlayBreakpoints(addr uint64, buf []byte) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for _, bp := range d.breakpoints {
		for i, b := range bp.originalData {
			pos := bp.addr + uint64(i)
			if pos >= addr && pos < addr+uint64(len(buf)) {
				buf[pos-addr] = b
			}
		}
	}
}

// ReadCString 从addr开始读取NUL结尾的字符串，maxLength为0表示不限制长度
func (d *PtraceDebugger) ReadCString(ctx context.Context, addr uint64, maxLength int) (string, error) {
	if !d.IsAlive() {
		return "", e.ErrNotRunning
	}
	return readCString(d.ptracePeek, addr, maxLength)
}

// readCString 分块读取NUL结尾的字符串
// 读取出错时可能已经拿到部分数据，NUL落在未映射区域之前的
// 最后几个字节里也要能认出来，所以先扫描读到的内容再判断是否到头。
func readCString(peek peekFunc, addr uint64, maxLength int) (string, error) {
	if addr == 0 {
		return "", e.ErrInvalidAddress
	}
	var result []byte
	chunk := make([]byte, 64)
	for {
		size := len(chunk)
		if maxLength > 0 && len(result)+size > maxLength {
			size = maxLength - len(result)
		}
		if size == 0 {
			return string(result), nil
		}
		n, err := peek(addr+uint64(len(result)), chunk[:size])
		for i := 0; i < n; i++ {
			if chunk[i] == 0 {
				return string(append(result, chunk[:i]...)), nil
			}
		}
		if n > 0 {
			result = append(result, chunk[:n]...)
		}
		if err != nil || n < size {
			if len(result) == 0 {
				return "", fmt.Errorf("%w: %#x", e.ErrInvalidAddress, addr)
			}
			// 字符串贴着未映射区域结束，返回已经读到的部分
			return string(result), nil
		}
	}
}

// StepInstruction 执行一条机器指令，会进入call内部
func (d *PtraceDebugger) StepInstruction(ctx context.Context) error {
	if !d.StatusManager.Is(utils.Stopped) {
		return e.ErrNotRunning
	}
	// pc停在断点上时，跨过断点本身就是这一步，不能再多走一条指令
	stepped, exited, err := d.stepOverBreakpointAtPC()
	if err != nil || exited || stepped {
		return err
	}
	_, err = d.singleStepAndWait()
	return err
}

// StepOverInstruction 执行一条机器指令，不会进入call内部
// pc处是call指令时，在call的下一条指令上挂临时断点然后继续执行
func (d *PtraceDebugger) StepOverInstruction(ctx context.Context) error {
	if !d.StatusManager.Is(utils.Stopped) {
		return e.ErrNotRunning
	}
	pc, err := d.readPC()
	if err != nil {
		return err
	}
	inst, err := d.decodeInstructionAt(ctx, pc)
	if err != nil || !inst.IsCall {
		// 解码失败按普通指令处理，保证循环总能推进
		return d.StepInstruction(ctx)
	}
	retAddr := pc + uint64(inst.Size)
	id, err := d.createBreakpoint(retAddr, nil, true)
	if err != nil {
		return err
	}
	err = d.resume(ctx, false)
	if d.IsAlive() {
		if removeErr := d.RemoveBreakpoint(ctx, id); removeErr != nil {
			logrus.Warnf("[StepOverInstruction] remove temp breakpoint fail, err = %v", removeErr)
		}
	}
	return err
}

func (d *PtraceDebugger) decodeInstructionAt(ctx context.Context, pc uint64) (disasm.Instruction, error) {
	size := 16
	if d.arch.MinInstructionSize == 4 {
		size = 4
	}
	mem, err := d.ReadMemory(ctx, pc, size)
	if err != nil {
		return disasm.Instruction{}, err
	}
	return disasm.Decode(d.arch, mem)
}

// Continue 继续执行，直到命中断点或者程序退出
func (d *PtraceDebugger) Continue(ctx context.Context) error {
	if !d.StatusManager.Is(utils.Stopped) {
		return e.ErrNotRunning
	}
	if d.callback != nil {
		d.callback(debugger.NewContinuedEvent())
	}
	return d.resume(ctx, true)
}

// resume 恢复执行直到某个断点的停止条件成立、收到信号或者程序退出
// notify决定停下时是否产生stopped事件
func (d *PtraceDebugger) resume(ctx context.Context, notify bool) error {
	d.StatusManager.Set(utils.Running)
	for {
		// pc落在断点上时先跨过去，避免continue再次触发同一个断点
		_, exited, err := d.stepOverBreakpointAtPC()
		if err != nil {
			return err
		}
		if exited {
			return nil
		}
		if err = d.ptraceCont(0); err != nil {
			return err
		}
		status, err := d.wait()
		if err != nil {
			return err
		}
		if status.Exited() {
			d.handleExit(status)
			return nil
		}
		pc, err := d.readPC()
		if err != nil {
			return err
		}
		// amd64的int3触发后pc已经越过断点指令
		bpAddr := pc - breakpointPCOffset
		bp := d.findPhysicalBreakpoint(bpAddr)
		if bp == nil {
			// 不是断点产生的停止（如信号），停下交给上层
			d.StatusManager.Set(utils.Stopped)
			if notify && d.callback != nil {
				d.callback(debugger.NewStoppedEvent("exception"))
			}
			return nil
		}
		if breakpointPCOffset != 0 {
			if err = d.writePC(bpAddr); err != nil {
				return err
			}
		}
		if !d.shouldStopAt(ctx, bp) {
			// 所有停止条件都不成立，静默放行
			continue
		}
		d.StatusManager.Set(utils.Stopped)
		if notify && d.callback != nil {
			d.callback(debugger.NewStoppedEvent("breakpoint"))
		}
		return nil
	}
}

// shouldStopAt 评估地址上所有逻辑断点的停止条件
func (d *PtraceDebugger) shouldStopAt(ctx context.Context, bp *physicalBreakpoint) bool {
	d.mutex.Lock()
	refs := make([]*Breakpoint, len(bp.refs))
	copy(refs, bp.refs)
	d.mutex.Unlock()
	for _, ref := range refs {
		if ref.Condition == nil || ref.Condition.Evaluate(ctx, d) {
			return true
		}
	}
	return false
}

// stepOverBreakpointAtPC 当前pc处有断点时，还原指令单步跨过去再重新插入
// stepped为true表示已经执行了一条指令
func (d *PtraceDebugger) stepOverBreakpointAtPC() (stepped bool, exited bool, err error) {
	pc, err := d.readPC()
	if err != nil {
		return false, false, err
	}
	bp := d.findPhysicalBreakpoint(pc)
	if bp == nil {
		return false, false, nil
	}
	if err = d.ptracePoke(bp.addr, bp.originalData); err != nil {
		return false, false, err
	}
	exited, err = d.singleStepAndWait()
	if err != nil || exited {
		return true, exited, err
	}
	err = d.ptracePoke(bp.addr, d.arch.BreakpointInstruction)
	return true, false, err
}

func (d *PtraceDebugger) singleStepAndWait() (exited bool, err error) {
	if err = d.ptraceSingleStep(); err != nil {
		return false, err
	}
	status, err := d.wait()
	if err != nil {
		return false, err
	}
	if status.Exited() {
		d.handleExit(status)
		return true, nil
	}
	return false, nil
}

// handleExit 被调试进程退出，调试随之结束
func (d *PtraceDebugger) handleExit(status unix.WaitStatus) {
	d.StatusManager.Set(utils.Finish)
	if d.tty != nil {
		_ = d.tty.Close()
	}
	if d.callback != nil {
		d.callback(debugger.NewExitedEvent(status.ExitStatus()))
		d.callback(debugger.NewTerminatedEvent())
	}
}

// CreateConditionalBreakpoint 在addr处设置条件断点
func (d *PtraceDebugger) CreateConditionalBreakpoint(ctx context.Context, addr uint64, condition debugger.ConditionalStop) (string, error) {
	if !d.IsAlive() {
		return "", e.ErrNotRunning
	}
	return d.createBreakpoint(addr, condition, false)
}

func (d *PtraceDebugger) createBreakpoint(addr uint64, condition debugger.ConditionalStop, temporary bool) (string, error) {
	ref := &Breakpoint{
		ID:        utils.GetUUID(),
		Addr:      addr,
		Condition: condition,
		temporary: temporary,
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	physical, ok := d.breakpoints[addr]
	if !ok {
		instruction := d.arch.BreakpointInstruction
		original := make([]byte, len(instruction))
		if _, err := d.ptracePeek(addr, original); err != nil {
			return "", fmt.Errorf("%w: %#x", e.ErrInvalidAddress, addr)
		}
		if err := d.ptracePoke(addr, instruction); err != nil {
			return "", err
		}
		physical = &physicalBreakpoint{addr: addr, originalData: original}
		d.breakpoints[addr] = physical
	}
	physical.refs = append(physical.refs, ref)
	d.byID[ref.ID] = ref
	return ref.ID, nil
}

// RemoveBreakpoint 根据句柄移除断点
// 同一个地址上的最后一个逻辑断点移除时才还原目标内存
func (d *PtraceDebugger) RemoveBreakpoint(ctx context.Context, id string) error {
	if !d.IsAlive() {
		return e.ErrNotRunning
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	ref, ok := d.byID[id]
	if !ok {
		return nil
	}
	delete(d.byID, id)
	physical, ok := d.breakpoints[ref.Addr]
	if !ok {
		return nil
	}
	for i, r := range physical.refs {
		if r.ID == id {
			physical.refs = append(physical.refs[:i], physical.refs[i+1:]...)
			break
		}
	}
	if len(physical.refs) == 0 {
		delete(d.breakpoints, ref.Addr)
		return d.ptracePoke(physical.addr, physical.originalData)
	}
	return nil
}

func (d *PtraceDebugger) findPhysicalBreakpoint(addr uint64) *physicalBreakpoint {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.breakpoints[addr]
}

// LookupSymbol 解析符号地址，在主程序和已加载的动态库中查找
func (d *PtraceDebugger) LookupSymbol(ctx context.Context, name string) (uint64, error) {
	if !d.IsAlive() {
		return 0, e.ErrNotRunning
	}
	return d.lookupSymbolAddr(name)
}

// Terminate 终止调试
func (d *PtraceDebugger) Terminate(ctx context.Context) error {
	if d.StatusManager.Is(utils.Finish) {
		return nil
	}
	if d.cmd != nil && d.cmd.Process != nil {
		if err := d.cmd.Process.Kill(); err != nil {
			logrus.Warnf("[Terminate] kill fail, err = %v", err)
		}
		// 回收僵尸进程
		_, _ = d.wait()
	}
	if d.tty != nil {
		_ = d.tty.Close()
	}
	d.StatusManager.Set(utils.Finish)
	if d.callback != nil {
		d.callback(debugger.NewTerminatedEvent())
	}
	return nil
}

// 低层ptrace原语，每个调用单独提交到锁定线程执行

func (d *PtraceDebugger) ptraceCont(sig int) error {
	var err error
	d.execPtraceFunc(func() { err = unix.PtraceCont(d.pid, sig) })
	return err
}

func (d *PtraceDebugger) ptraceSingleStep() error {
	var err error
	d.execPtraceFunc(func() { err = unix.PtraceSingleStep(d.pid) })
	return err
}

func (d *PtraceDebugger) ptracePeek(addr uint64, buf []byte) (int, error) {
	var n int
	var err error
	d.execPtraceFunc(func() { n, err = unix.PtracePeekData(d.pid, uintptr(addr), buf) })
	return n, err
}

func (d *PtraceDebugger) ptracePoke(addr uint64, data []byte) error {
	var err error
	d.execPtraceFunc(func() { _, err = unix.PtracePokeData(d.pid, uintptr(addr), data) })
	return err
}

func (d *PtraceDebugger) wait() (unix.WaitStatus, error) {
	var status unix.WaitStatus
	var err error
	d.execPtraceFunc(func() { _, err = unix.Wait4(d.pid, &status, 0, nil) })
	return status, err
}
