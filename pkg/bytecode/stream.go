package bytecode

import (
	"errors"
	"fmt"

	"github.com/chazu/nmacro/pkg/symtab"
)

// MaxCells is the capacity of a single program.
const MaxCells = 8192

// ErrProgramTooLarge is reported when a program outgrows MaxCells.
var ErrProgramTooLarge = errors.New("macro too large")

// Stream is the instruction stream of one compilation. Cells are appended
// at the end; branch placeholders are patched once their target is known.
type Stream struct {
	code []Cell
	err  error
}

// NewStream creates an empty stream.
func NewStream() *Stream {
	return &Stream{code: make([]Cell, 0, 64)}
}

// Here returns the address the next cell will be written to.
func (s *Stream) Here() int {
	return len(s.code)
}

// Err returns ErrProgramTooLarge once the stream has overflowed. Appends
// after an overflow are dropped.
func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) append(c Cell) int {
	at := len(s.code)
	if at >= MaxCells {
		s.err = ErrProgramTooLarge
		return at
	}
	s.code = append(s.code, c)
	return at
}

// Emit appends an opcode cell.
func (s *Stream) Emit(op Opcode) int {
	return s.append(Cell{Kind: CellOp, Op: op})
}

// EmitSym appends a symbol operand.
func (s *Stream) EmitSym(sym *symtab.Symbol) int {
	return s.append(Cell{Kind: CellSym, Sym: sym})
}

// EmitImm appends an integer operand.
func (s *Stream) EmitImm(n int) int {
	return s.append(Cell{Kind: CellImm, Value: n})
}

// EmitBranchTo appends a branch operand for a known target.
func (s *Stream) EmitBranchTo(target int) int {
	at := len(s.code)
	return s.append(Cell{Kind: CellBranch, Value: target - at})
}

// EmitPlaceholder appends a branch operand whose target is patched later.
// Returns the address of the placeholder.
func (s *Stream) EmitPlaceholder() int {
	return s.append(Cell{Kind: CellBranch, Pending: true})
}

// PatchBranch points the branch cell at address at to target.
func (s *Stream) PatchBranch(at, target int) {
	if at >= len(s.code) {
		// Dropped by an overflow; Err already reports it.
		return
	}
	c := &s.code[at]
	if c.Kind != CellBranch {
		panic(fmt.Sprintf("bytecode: patch of non-branch cell %d (%v)", at, c.Kind))
	}
	c.Value = target - at
	c.Pending = false
}

// Cell returns the cell at address at.
func (s *Stream) Cell(at int) Cell {
	return s.code[at]
}

// Relocation describes the address mapping performed by SwapCode: the
// segment [From,Mid) moved behind the segment [Mid,To).
type Relocation struct {
	From, Mid, To int
}

// Addr returns the new address of the cell that lived at a.
func (r Relocation) Addr(a int) int {
	switch {
	case a >= r.From && a < r.Mid:
		return a + (r.To - r.Mid)
	case a >= r.Mid && a < r.To:
		return a - (r.Mid - r.From)
	default:
		return a
	}
}

// target maps the target t of a branch cell that lived at at. A target
// inside the branch's own segment, including the address just past the
// segment, moves with the segment.
func (r Relocation) target(at, t int) int {
	if at < r.Mid {
		if t >= r.From && t <= r.Mid {
			return t + (r.To - r.Mid)
		}
	} else if t >= r.Mid && t <= r.To {
		return t - (r.Mid - r.From)
	}
	return r.Addr(t)
}

// SwapCode exchanges the adjacent segments [from,mid) and [mid,to) so the
// second now starts at from. Patched branch cells inside the range get new
// displacements so they still reach the code they referred to. Pending
// placeholders move untouched; callers holding their addresses remap them
// with the returned Relocation.
func (s *Stream) SwapCode(from, mid, to int) Relocation {
	r := Relocation{From: from, Mid: mid, To: to}
	if from >= mid || mid >= to || to > len(s.code) {
		return r
	}
	old := make([]Cell, to-from)
	copy(old, s.code[from:to])
	for i, c := range old {
		at := from + i
		moved := r.Addr(at)
		if c.Kind == CellBranch && !c.Pending {
			c.Value = r.target(at, c.Target(at)) - moved
		}
		s.code[moved] = c
	}
	return r
}

// Finish assembles the program. Every placeholder must have been patched.
func (s *Stream) Finish(scope *symtab.Scope, end int) (*Program, error) {
	if s.err != nil {
		return nil, s.err
	}
	for at, c := range s.code {
		if c.Kind == CellBranch && c.Pending {
			return nil, fmt.Errorf("bytecode: unpatched branch at %d", at)
		}
	}
	p := &Program{
		Code:      append([]Cell(nil), s.code...),
		Constants: scope.Constants(),
		Locals:    scope.Locals(),
		End:       end,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: %w", err)
	}
	return p, nil
}
