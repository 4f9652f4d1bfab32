package compiler

import (
	"strings"

	"github.com/chazu/nmacro/pkg/bytecode"
)

// Unit is one piece of a macro file: a routine definition, or a run of
// statements to be executed immediately.
type Unit struct {
	// Name is the routine name; empty for immediate statements.
	Name string

	// Offset is where the unit's code starts in the file. Program.End is
	// relative to it.
	Offset int

	Program *bytecode.Program
}

// IsRoutine reports whether the unit defines a routine.
func (u Unit) IsRoutine() bool {
	return u.Name != ""
}

// CompileFile splits a macro file into units and compiles each one.
//
//	define name {
//	    statements
//	}
//
// compiles a routine and declares name in the global table, so later units
// can call it. Anything else is compiled up to the next define. Error
// offsets are relative to the start of src.
func (c *Compiler) CompileFile(src string) ([]Unit, error) {
	var units []Unit
	pos := 0
	for {
		pos = skipFileBlanks(src, pos)
		if pos >= len(src) || src[pos] == 0 {
			return units, nil
		}

		name := ""
		if isDefine(src, pos) {
			var err error
			name, pos, err = readDefineHeader(src, pos)
			if err != nil {
				return nil, err
			}
		}

		prog, err := c.Compile(src[pos:])
		if err != nil {
			if cerr, ok := err.(*Error); ok {
				return nil, &Error{Msg: cerr.Msg, Offset: pos + cerr.Offset}
			}
			return nil, err
		}
		if name != "" {
			c.globals.Declare(name)
			log.Debugf("defined routine %s (%d cells)", name, prog.Len())
		}
		units = append(units, Unit{Name: name, Offset: pos, Program: prog})
		pos += prog.End
	}
}

// skipFileBlanks skips white space, newlines and comments between units.
func skipFileBlanks(src string, pos int) int {
	for pos < len(src) {
		switch src[pos] {
		case ' ', '\t', '\n':
			pos++
		case '#':
			for pos < len(src) && src[pos] != '\n' {
				pos++
			}
		default:
			return pos
		}
	}
	return pos
}

func isDefine(src string, pos int) bool {
	if !strings.HasPrefix(src[pos:], "define") || pos+6 >= len(src) {
		return false
	}
	c := src[pos+6]
	return c == ' ' || c == '\t'
}

// readDefineHeader reads "define name" up to the opening brace of the body
// and returns the name and the offset of the brace.
func readDefineHeader(src string, pos int) (string, int, error) {
	pos = skipSpace(src, pos+6)
	start := pos
	for pos < len(src) && (isAlnum(src[pos]) || src[pos] == '_') {
		pos++
	}
	name := src[start:pos]
	switch {
	case name == "":
		return "", 0, &Error{Msg: "expected subroutine name", Offset: pos}
	case len(name) >= MaxSymbolLen:
		return "", 0, &Error{Msg: "subroutine name too long", Offset: start + MaxSymbolLen - 1}
	}
	pos = skipSpace(src, pos)
	if pos >= len(src) || src[pos] != '{' {
		return "", 0, &Error{Msg: "expected '{'", Offset: pos}
	}
	return name, pos, nil
}

func skipSpace(src string, pos int) int {
	for pos < len(src) && (src[pos] == ' ' || src[pos] == '\t' || src[pos] == '\n') {
		pos++
	}
	return pos
}
