package windbg

import (
	"context"
	"errors"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/fansqz/go-windbg/constants"
	e "github.com/fansqz/go-windbg/error"
)

// DefaultTraceBudget 未指定步数时的预算
// 取一个很大的有限值而不是无限循环，配合ctx取消保证循环总会结束
const DefaultTraceBudget uint64 = math.MaxUint64

// TraceUntilCall 单步执行直到停在下一条call指令上，或者步数预算耗尽
// stepType决定单步的方式：StepIn会进入函数内部，StepOver不会。
// count为0表示不限制步数。循环期间会暂时关闭上下文输出，
// 结束后恢复并输出一次当前上下文。
func (s *Session) TraceUntilCall(ctx context.Context, stepType constants.StepType, count uint64) error {
	if !s.debugger.IsAlive() {
		return e.ErrNotRunning
	}
	remaining := count
	if remaining == 0 {
		remaining = DefaultTraceBudget
	}
	previous := s.config.VerboseContext()
	s.config.SetVerboseContext(false)
	// 无论循环怎么退出，开关都要恢复恰好一次，之后再输出上下文
	defer func() {
		s.config.SetVerboseContext(previous)
		s.reportContext(ctx)
	}()

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining--
		var err error
		if stepType == constants.StepOver {
			err = s.debugger.StepOverInstruction(ctx)
		} else {
			err = s.debugger.StepInstruction(ctx)
		}
		if err != nil {
			// 被调试进程中途退出按提前结束处理，不算错误
			if errors.Is(err, e.ErrNotRunning) {
				return nil
			}
			logrus.Warnf("[TraceUntilCall] step fail, err = %v", err)
			return err
		}
		if !s.debugger.IsAlive() {
			return nil
		}
		pc, err := s.debugger.PC(ctx)
		if err != nil {
			if errors.Is(err, e.ErrNotRunning) {
				return nil
			}
			logrus.Warnf("[TraceUntilCall] read pc fail, err = %v", err)
			return err
		}
		if s.classifier.IsCallInstruction(ctx, pc) {
			break
		}
	}
	return nil
}
