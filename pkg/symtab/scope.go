package symtab

import "fmt"

// Scope is the symbol table of a single compilation. Lookups fall back to
// the shared global Table.
type Scope struct {
	globals *Table

	names   map[string]*Symbol // locals, arguments and numeric constants
	strings map[string]*Symbol // string constants by content

	locals    []*Symbol // locals and arguments, installation order
	constants []*Symbol // installation order

	nextString int
	nextIter   int
}

// NewScope creates a scope for one compilation against globals.
func NewScope(globals *Table) *Scope {
	if globals == nil {
		globals = NewTable()
	}
	return &Scope{
		globals: globals,
		names:   make(map[string]*Symbol),
		strings: make(map[string]*Symbol),
	}
}

// Globals returns the shared table this scope falls back to.
func (s *Scope) Globals() *Table { return s.globals }

// Lookup finds name among this compilation's symbols, then among the
// globals. It returns nil when the name is unknown.
func (s *Scope) Lookup(name string) *Symbol {
	if sym, ok := s.names[name]; ok {
		return sym
	}
	return s.globals.Lookup(name)
}

// Install adds a new symbol. Globals go to the shared table (an existing
// global of the same name is returned instead); everything else is private
// to this scope.
func (s *Scope) Install(name string, class Class, value Literal) *Symbol {
	sym := &Symbol{Name: name, Class: class, Value: value}
	switch class {
	case Global:
		return s.globals.intern(sym)
	case Constant:
		s.constants = append(s.constants, sym)
	default:
		s.locals = append(s.locals, sym)
	}
	s.names[name] = sym
	return sym
}

// InstallIntConst returns the constant for n, installing it on first use.
func (s *Scope) InstallIntConst(n int) *Symbol {
	name := fmt.Sprintf("const %d", n)
	if sym := s.Lookup(name); sym != nil {
		return sym
	}
	return s.Install(name, Constant, Int(n))
}

// InstallStringConst returns the string constant with the given content,
// installing it on first use. Equal contents share one symbol.
func (s *Scope) InstallStringConst(text string) *Symbol {
	if sym, ok := s.strings[text]; ok {
		return sym
	}
	sym := &Symbol{
		Name:  fmt.Sprintf("string #%d", s.nextString),
		Class: Constant,
		Value: Str(text),
	}
	s.nextString++
	s.strings[text] = sym
	s.constants = append(s.constants, sym)
	return sym
}

// InstallIterator creates the hidden local that holds the state of one
// for-in loop.
func (s *Scope) InstallIterator() *Symbol {
	name := fmt.Sprintf("aryiter #%d", s.nextIter)
	s.nextIter++
	return s.Install(name, Local, Literal{})
}

// PromoteToGlobal turns a local that is used as a routine name into a
// global. Non-local symbols are returned unchanged. If a global with the
// same name already exists it is returned and the local is dropped;
// otherwise the local itself is reclassed, so cells already pointing at it
// see the new class.
func (s *Scope) PromoteToGlobal(sym *Symbol) *Symbol {
	if sym.Class != Local {
		return sym
	}
	if s.names[sym.Name] == sym {
		delete(s.names, sym.Name)
		s.removeLocal(sym)
	}
	if existing := s.globals.Lookup(sym.Name); existing != nil {
		return existing
	}
	sym.Class = Global
	return s.globals.intern(sym)
}

func (s *Scope) removeLocal(sym *Symbol) {
	for i, l := range s.locals {
		if l == sym {
			s.locals = append(s.locals[:i], s.locals[i+1:]...)
			return
		}
	}
}

// Constants returns the constants of this compilation in installation
// order.
func (s *Scope) Constants() []*Symbol {
	return append([]*Symbol(nil), s.constants...)
}

// Locals returns the locals and arguments of this compilation in
// installation order.
func (s *Scope) Locals() []*Symbol {
	return append([]*Symbol(nil), s.locals...)
}
