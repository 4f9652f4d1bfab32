package bytecode

import (
	"fmt"

	"github.com/chazu/nmacro/pkg/symtab"
)

// CellKind says how a Cell is interpreted.
type CellKind uint8

const (
	CellOp     CellKind = iota // Op holds an opcode
	CellSym                    // Sym holds a symbol reference
	CellImm                    // Value holds an integer immediate
	CellBranch                 // Value holds a displacement from this cell
)

// Cell is one slot of a compiled program.
type Cell struct {
	Kind  CellKind
	Op    Opcode
	Sym   *symtab.Symbol
	Value int

	// Pending marks a branch cell whose target is not known yet.
	Pending bool
}

// Target returns the absolute address a branch cell at address at jumps to.
func (c Cell) Target(at int) int {
	return at + c.Value
}

// Program is the result of a successful compilation: the code and the
// compilation-private symbols it references.
type Program struct {
	Code      []Cell
	Constants []*symtab.Symbol
	Locals    []*symtab.Symbol

	// End is the source offset where compilation stopped. It is the length
	// of the source unless a define keyword or the closing brace of a
	// braced unit ended it early.
	End int
}

// Len returns the number of cells.
func (p *Program) Len() int {
	return len(p.Code)
}

// Symbols returns every distinct symbol referenced from the code in order of
// first reference.
func (p *Program) Symbols() []*symtab.Symbol {
	seen := make(map[*symtab.Symbol]bool)
	var syms []*symtab.Symbol
	for _, c := range p.Code {
		if c.Kind == CellSym && !seen[c.Sym] {
			seen[c.Sym] = true
			syms = append(syms, c.Sym)
		}
	}
	return syms
}

// Validate checks the structure of the code: every opcode is followed by
// operand cells of the kinds it expects, and every branch lands inside the
// program.
func (p *Program) Validate() error {
	for pc := 0; pc < len(p.Code); {
		c := p.Code[pc]
		if c.Kind != CellOp {
			return fmt.Errorf("cell %d: expected opcode, found %v", pc, c.Kind)
		}
		if !c.Op.Valid() {
			return fmt.Errorf("cell %d: unknown opcode 0x%02X", pc, uint8(c.Op))
		}
		at := pc + 1
		for _, operand := range c.Op.Operands() {
			if at >= len(p.Code) {
				return fmt.Errorf("cell %d: %v is missing operands", pc, c.Op)
			}
			oc := p.Code[at]
			switch operand {
			case OperandSym:
				if oc.Kind != CellSym || oc.Sym == nil {
					return fmt.Errorf("cell %d: %v expects a symbol", at, c.Op)
				}
			case OperandImm:
				if oc.Kind != CellImm {
					return fmt.Errorf("cell %d: %v expects an immediate", at, c.Op)
				}
			case OperandBranch:
				if oc.Kind != CellBranch {
					return fmt.Errorf("cell %d: %v expects a branch offset", at, c.Op)
				}
				if oc.Pending {
					return fmt.Errorf("cell %d: unpatched branch", at)
				}
				if t := oc.Target(at); t < 0 || t > len(p.Code) {
					return fmt.Errorf("cell %d: branch target %d out of range", at, t)
				}
			}
			at++
		}
		pc = at
	}
	return nil
}

// String returns a short name for the cell kind.
func (k CellKind) String() string {
	switch k {
	case CellOp:
		return "op"
	case CellSym:
		return "sym"
	case CellImm:
		return "imm"
	case CellBranch:
		return "branch"
	default:
		return fmt.Sprintf("CellKind(%d)", k)
	}
}
