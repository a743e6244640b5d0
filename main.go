package main

import (
	"context"
	"flag"
	"fmt"
	"net"

	"github.com/google/go-dap"

	"github.com/fansqz/go-windbg/debugger"
	"github.com/fansqz/go-windbg/debugger/arch"
	"github.com/fansqz/go-windbg/debugger/ptrace_debugger"
	"github.com/fansqz/go-windbg/debugger/windbg"
)

// 定义版本号
const Version = "1.0.0"

func main() {
	// 启动日志
	SetupLogger()
	defer CloseLogger()

	showVersion := flag.Bool("version", false, "Show the version number")
	port := flag.String("port", "8890", "TCP port to listen on")
	execFile := flag.String("file", "", "Exec file")
	archName := flag.String("arch", "", "Target architecture (amd64/arm64), detected from the exec file by default")
	console := flag.Bool("console", false, "Run an interactive console instead of the TCP server")
	flag.Parse()

	// 检查是否需要显示版本信息
	if *showVersion {
		fmt.Printf("Version: %s\n", Version)
		return
	}
	if *execFile == "" {
		fmt.Println("exec file cannot be empty")
		return
	}

	// 选择目标架构，会话启动后不再改变
	targetArch, err := selectArch(*archName, *execFile)
	if err != nil {
		fmt.Printf("select architecture fail, err = %s\n", err)
		return
	}

	if *console {
		runConsole(targetArch, *execFile, flag.Args())
		return
	}

	// 监听端口
	listener, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		fmt.Printf("listen fail, err = %s\n", err)
		return
	}
	defer listener.Close()
	fmt.Printf("started listening at: %s\n", listener.Addr().String())

	server := NewServer(listener)

	// 启动调试器
	session, err := createSession(targetArch, *execFile, flag.Args(), server.Broadcast)
	if err != nil {
		fmt.Printf("start debug fail, err = %s\n", err)
		return
	}
	server.SetHandler(NewDebuggerHandler(session))

	server.Serve()
}

// selectArch 根据命令行参数或者ELF头选择目标架构
func selectArch(archName string, execFile string) (*arch.Arch, error) {
	if archName != "" {
		return arch.New(archName)
	}
	return ptrace_debugger.ArchForExecutable(execFile)
}

// createSession 启动被调试进程并创建windbg会话
func createSession(a *arch.Arch, execFile string, args []string, callback debugger.NotificationCallback) (*windbg.Session, error) {
	d := ptrace_debugger.NewPtraceDebugger(a)
	err := d.Start(context.Background(), &debugger.StartOption{
		ExecFile: execFile,
		Args:     args,
		Callback: func(event dap.EventMessage) {
			if callback != nil {
				callback(event)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	return windbg.NewSession(a, d, windbg.NewConfig(), callback), nil
}
