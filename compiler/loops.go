package compiler

import (
	"errors"

	"github.com/chazu/nmacro/pkg/bytecode"
)

// MaxLoopDepth bounds the number of break and continue statements pending
// in all enclosing loops together.
const MaxLoopDepth = 256

var (
	errBreakOutsideLoop    = errors.New("break outside loop")
	errContinueOutsideLoop = errors.New("continue outside loop")
	errLoopStackOverflow   = errors.New("loop stack overflow")
)

// loopFrame collects the branch placeholders of one loop.
type loopFrame struct {
	breaks    []int
	continues []int
}

// loopStack tracks break and continue placeholders of the loops enclosing
// the statement being compiled. The innermost loop is last.
type loopStack struct {
	frames  []*loopFrame
	pending int
}

func (s *loopStack) push() {
	s.frames = append(s.frames, &loopFrame{})
}

func (s *loopStack) innermost() *loopFrame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *loopStack) addBreak(at int) error {
	f := s.innermost()
	if f == nil {
		return errBreakOutsideLoop
	}
	if s.pending >= MaxLoopDepth {
		return errLoopStackOverflow
	}
	f.breaks = append(f.breaks, at)
	s.pending++
	return nil
}

func (s *loopStack) addContinue(at int) error {
	f := s.innermost()
	if f == nil {
		return errContinueOutsideLoop
	}
	if s.pending >= MaxLoopDepth {
		return errLoopStackOverflow
	}
	f.continues = append(f.continues, at)
	s.pending++
	return nil
}

// pop closes the innermost loop, pointing its breaks at breakTarget and its
// continues at continueTarget.
func (s *loopStack) pop(code *bytecode.Stream, breakTarget, continueTarget int) {
	f := s.innermost()
	s.frames = s.frames[:len(s.frames)-1]
	for _, at := range f.breaks {
		code.PatchBranch(at, breakTarget)
	}
	for _, at := range f.continues {
		code.PatchBranch(at, continueTarget)
	}
	s.pending -= len(f.breaks) + len(f.continues)
}

// relocate follows placeholders moved by SwapCode.
func (s *loopStack) relocate(r bytecode.Relocation) {
	for _, f := range s.frames {
		for i, at := range f.breaks {
			f.breaks[i] = r.Addr(at)
		}
		for i, at := range f.continues {
			f.continues[i] = r.Addr(at)
		}
	}
}
