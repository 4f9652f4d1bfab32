// Package symtab holds the symbols referenced by compiled macro programs.
//
// Global symbols live in a Table that is shared by every compilation in the
// process. Everything else (locals, positional arguments, constants and the
// hidden iterator variables) lives in a Scope that belongs to exactly one
// compilation. Compiled code refers to symbols by pointer, so a Symbol keeps
// its identity for as long as any program holds it.
package symtab

import (
	"fmt"
	"strconv"
)

// Class says where a symbol's value lives at execution time.
type Class uint8

const (
	// Constant symbols carry an immutable literal.
	Constant Class = iota

	// Global symbols are shared by every program, e.g. $sub_sep or a
	// routine name.
	Global

	// Argument symbols are the positional parameters $1 .. $9.
	Argument

	// Local symbols are private to one program invocation.
	Local
)

var classNames = [...]string{
	Constant: "const",
	Global:   "global",
	Argument: "arg",
	Local:    "local",
}

// String returns a short name for the class.
func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("Class(%d)", c)
}

// LiteralKind tags the value held by a Literal.
type LiteralKind uint8

const (
	NoValue LiteralKind = iota
	IntValue
	StringValue
)

// Literal is the value of a constant symbol. Non-constant symbols carry the
// zero Literal.
type Literal struct {
	Kind LiteralKind
	Int  int
	Str  string
}

// Int returns an integer literal.
func Int(n int) Literal { return Literal{Kind: IntValue, Int: n} }

// Str returns a string literal.
func Str(s string) Literal { return Literal{Kind: StringValue, Str: s} }

// String renders the literal the way the disassembler shows it.
func (l Literal) String() string {
	switch l.Kind {
	case IntValue:
		return strconv.Itoa(l.Int)
	case StringValue:
		return strconv.Quote(l.Str)
	default:
		return "<none>"
	}
}

// Symbol is a named entity referenced from compiled code.
type Symbol struct {
	Name  string
	Class Class
	Value Literal
}

// String returns "class:name", or the literal for constants.
func (s *Symbol) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.Class == Constant {
		return s.Value.String()
	}
	return s.Class.String() + ":" + s.Name
}

// IsArgumentName reports whether name is one of the positional argument
// names $1 through $9.
func IsArgumentName(name string) bool {
	return len(name) == 2 && name[0] == '$' && name[1] >= '1' && name[1] <= '9'
}

// ClassForName returns the class given to a previously unknown identifier:
// $1..$9 are arguments, other $-names are globals, the rest are locals.
func ClassForName(name string) Class {
	switch {
	case IsArgumentName(name):
		return Argument
	case len(name) > 0 && name[0] == '$':
		return Global
	default:
		return Local
	}
}
