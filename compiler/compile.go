package compiler

import (
	"errors"
	"fmt"

	"github.com/chazu/nmacro/pkg/bytecode"
	"github.com/chazu/nmacro/pkg/symtab"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nmacro.compiler")

// Compiler turns macro source into programs. Compilations are independent
// of each other and may run concurrently; they share only the global
// symbol table.
type Compiler struct {
	globals *symtab.Table
}

// New creates a compiler resolving globals in the given table. A nil table
// gets a fresh one.
func New(globals *symtab.Table) *Compiler {
	if globals == nil {
		globals = symtab.NewTable()
	}
	return &Compiler{globals: globals}
}

// Globals returns the shared global table.
func (c *Compiler) Globals() *symtab.Table {
	return c.globals
}

// Compile compiles one unit of src. On failure the error is an *Error
// carrying the message and the offset where scanning stopped. On success
// Program.End is the offset where the unit ended.
func (c *Compiler) Compile(src string) (*bytecode.Program, error) {
	scope := symtab.NewScope(c.globals)
	prog, err := NewParser(src, scope).ParseProgram()
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			log.Debugf("compile failed at %d: %s", cerr.Offset, cerr.Msg)
			return nil, err
		}
		return nil, fmt.Errorf("compiler: %w", err)
	}
	log.Debugf("compiled %d bytes into %d cells", prog.End, prog.Len())
	return prog, nil
}

// Compile compiles src against a fresh global table.
func Compile(src string) (*bytecode.Program, error) {
	return New(nil).Compile(src)
}

// Position converts a byte offset in src into a 1-based line and column.
func Position(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line, col = 1, 1
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// Position returns where in src the error should be reported. An error
// found on a newline token is reported at the end of the line it ends
// rather than at the start of the next.
func (e *Error) Position(src string) (line, col int) {
	at := e.Offset
	if at > len(src) {
		at = len(src)
	}
	if at > 0 && src[at-1] == '\n' {
		at--
	}
	return Position(src, at)
}
