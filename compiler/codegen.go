package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/nmacro/pkg/bytecode"
	"github.com/chazu/nmacro/pkg/symtab"
)

// ---------------------------------------------------------------------------
// Codegen: emission helpers used while parsing
// ---------------------------------------------------------------------------

// Error is a compile error. Offset is where scanning stopped: just past
// the token the parser gave up on.
type Error struct {
	Msg    string
	Offset int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (offset %d)", e.Msg, e.Offset)
}

// maxExpected is the longest list of alternatives named in a syntax error.
// Longer lists are left out of the message.
const maxExpected = 4

// MaxNesting bounds how deeply expressions and statement bodies may nest.
const MaxNesting = 10000

// enter records one more level of nesting and fails once the input nests
// past MaxNesting. Every call is paired with a deferred leave.
func (p *Parser) enter() {
	p.nesting++
	if p.nesting > MaxNesting {
		p.fail("memory exhausted")
	}
}

func (p *Parser) leave() {
	p.nesting--
}

// fail abandons the compilation. Compile recovers the *Error.
func (p *Parser) fail(msg string) {
	panic(&Error{Msg: msg, Offset: p.lexer.Offset()})
}

// syntaxError fails on the current token, naming what would have been
// accepted instead.
func (p *Parser) syntaxError(expected ...TokenType) {
	var sb strings.Builder
	sb.WriteString("syntax error, unexpected ")
	sb.WriteString(describeToken(p.curToken))
	if len(expected) > 0 && len(expected) <= maxExpected {
		sb.WriteString(", expecting ")
		for i, t := range expected {
			if i > 0 {
				sb.WriteString(" or ")
			}
			sb.WriteString(t.String())
		}
	}
	p.fail(sb.String())
}

func describeToken(tok Token) string {
	if tok.Type == TokenChar {
		return "'" + tok.Literal + "'"
	}
	return tok.Type.String()
}

func (p *Parser) checkSize() {
	if err := p.code.Err(); err != nil {
		p.fail(err.Error())
	}
}

func (p *Parser) emit(op bytecode.Opcode) {
	p.code.Emit(op)
	p.checkSize()
}

func (p *Parser) emitSym(sym *symtab.Symbol) {
	p.code.EmitSym(sym)
	p.checkSize()
}

func (p *Parser) emitImm(n int) {
	p.code.EmitImm(n)
	p.checkSize()
}

// emitOpSym emits an instruction with one symbol operand.
func (p *Parser) emitOpSym(op bytecode.Opcode, sym *symtab.Symbol) {
	p.emit(op)
	p.emitSym(sym)
}

// emitOpImm emits an instruction with one immediate operand.
func (p *Parser) emitOpImm(op bytecode.Opcode, n int) {
	p.emit(op)
	p.emitImm(n)
}

// emitBranch emits op with a placeholder and returns the placeholder's
// address.
func (p *Parser) emitBranch(op bytecode.Opcode) int {
	p.emit(op)
	at := p.code.EmitPlaceholder()
	p.checkSize()
	return at
}

// emitBranchTo emits op jumping to a known address.
func (p *Parser) emitBranchTo(op bytecode.Opcode, target int) {
	p.emit(op)
	p.code.EmitBranchTo(target)
	p.checkSize()
}

// patchHere points the placeholder at to the next cell to be emitted.
func (p *Parser) patchHere(at int) {
	p.code.PatchBranch(at, p.code.Here())
}

// emitCall emits a routine call. A name used as a routine is global from
// then on.
func (p *Parser) emitCall(sym *symtab.Symbol, nArgs int) {
	p.emitOpSym(bytecode.OpSubrCall, p.scope.PromoteToGlobal(sym))
	p.emitImm(nArgs)
}

// emitArrayUpdate emits the read-modify-write of one array element. The
// array and its keys are already on the stack, topped by the right-hand
// value when hasOperand is set.
func (p *Parser) emitArrayUpdate(op bytecode.Opcode, hasOperand bool, nDim int) {
	p.emit(bytecode.OpArrayRefAssignSetup)
	if hasOperand {
		p.emitImm(1)
	} else {
		p.emitImm(0)
	}
	p.emitImm(nDim)
	p.emit(op)
	p.emitOpImm(bytecode.OpArrayAssign, nDim)
}
