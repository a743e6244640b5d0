package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/go-dap"
	"golang.org/x/term"

	"github.com/fansqz/go-windbg/constants"
	"github.com/fansqz/go-windbg/debugger/arch"
	"github.com/fansqz/go-windbg/debugger/windbg"
)

// runConsole 交互式控制台
// 命令沿用windbg的叫法：g继续，tc/pc追踪到下一条call，
// r读写寄存器，sxe ld:/ud:监视库加载。
func runConsole(targetArch *arch.Arch, execFile string, args []string) {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	session, err := createSession(targetArch, execFile, args, consoleCallback)
	if err != nil {
		fmt.Printf("start debug fail, err = %s\n", err)
		return
	}
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "q" || line == "quit" {
			_ = session.Terminate(ctx)
			return
		}
		if err := dispatchConsoleCommand(ctx, session, line); err != nil {
			fmt.Println(err)
		}
	}
}

// consoleCallback 事件直接打印到控制台
func consoleCallback(event dap.EventMessage) {
	switch ev := event.(type) {
	case *dap.OutputEvent:
		fmt.Print(ev.Body.Output)
	case *dap.StoppedEvent:
		fmt.Printf("stopped, reason = %s\n", ev.Body.Reason)
	case *dap.ExitedEvent:
		fmt.Printf("debuggee exited, code = %d\n", ev.Body.ExitCode)
	}
}

func dispatchConsoleCommand(ctx context.Context, session *windbg.Session, line string) error {
	fields := strings.Fields(line)
	command, argv := fields[0], fields[1:]
	switch command {
	case "g":
		return session.Continue(ctx)
	case "tc":
		return traceCommand(ctx, session, constants.StepIn, argv)
	case "pc":
		return traceCommand(ctx, session, constants.StepOver, argv)
	case "r":
		return registersCommand(ctx, session, argv)
	case "sxe":
		return watchCommand(ctx, session, argv)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func traceCommand(ctx context.Context, session *windbg.Session, stepType constants.StepType, argv []string) error {
	var count uint64
	if len(argv) > 0 {
		parsed, err := strconv.ParseUint(argv[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid count: %q", argv[0])
		}
		count = parsed
	}
	return session.TraceUntilCall(ctx, stepType, count)
}

func registersCommand(ctx context.Context, session *windbg.Session, argv []string) error {
	if len(argv) == 0 {
		dump, err := session.DumpRegisters(ctx, nil, 0)
		if err != nil {
			return err
		}
		fmt.Println(dump)
		return nil
	}
	combined := strings.Join(argv, "")
	if strings.Contains(combined, "=") {
		return session.WriteRegister(ctx, combined)
	}
	dump, err := session.ReadRegisters(ctx, combined)
	if err != nil {
		return err
	}
	fmt.Println(dump)
	return nil
}

// watchCommand sxe ld:module 监视加载，sxe ud:module 取消监视
func watchCommand(ctx context.Context, session *windbg.Session, argv []string) error {
	if len(argv) < 1 {
		return fmt.Errorf("usage: sxe [ld,ud]:module")
	}
	action, module, found := strings.Cut(argv[0], ":")
	if !found || module == "" {
		return fmt.Errorf("usage: sxe [ld,ud]:module")
	}
	switch action {
	case "ld":
		return session.WatchModuleLoad(ctx, module)
	case "ud":
		return session.UnwatchModuleLoad(ctx, module)
	default:
		return fmt.Errorf("usage: sxe [ld,ud]:module")
	}
}
