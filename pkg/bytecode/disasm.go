package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header.
func (p *Program) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; %d cells\n", len(p.Code)))

	if len(p.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for _, c := range p.Constants {
			display := c.Value.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   %-12s %s\n", c.Name, display))
		}
	}
	if len(p.Locals) > 0 {
		names := make([]string, len(p.Locals))
		for i, l := range p.Locals {
			names[i] = l.Name
		}
		sb.WriteString(fmt.Sprintf("; Locals: %s\n", strings.Join(names, ", ")))
	}
	sb.WriteString("\n")

	for pc := 0; pc < len(p.Code); {
		line, next := p.DisassembleInstruction(pc)
		sb.WriteString(line)
		sb.WriteString("\n")
		pc = next
	}
	return sb.String()
}

// DisassembleInstruction formats the instruction at pc and returns the
// address of the next one. Stray operand cells are printed on their own.
func (p *Program) DisassembleInstruction(pc int) (string, int) {
	c := p.Code[pc]
	if c.Kind != CellOp {
		return fmt.Sprintf("%04d  ?? %s", pc, formatOperand(c, pc)), pc + 1
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%04d  %s", pc, c.Op))
	at := pc + 1
	for range c.Op.Operands() {
		if at >= len(p.Code) {
			sb.WriteString(" <truncated>")
			break
		}
		sb.WriteString(" ")
		sb.WriteString(formatOperand(p.Code[at], at))
		at++
	}
	return sb.String(), at
}

func formatOperand(c Cell, at int) string {
	switch c.Kind {
	case CellSym:
		return c.Sym.String()
	case CellImm:
		return fmt.Sprintf("%d", c.Value)
	case CellBranch:
		if c.Pending {
			return "-> ????"
		}
		return fmt.Sprintf("-> %04d", c.Target(at))
	default:
		return c.Op.String()
	}
}
