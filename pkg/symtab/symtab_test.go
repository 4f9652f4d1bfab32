package symtab

import (
	"fmt"
	"sync"
	"testing"
)

func TestClassForName(t *testing.T) {
	tests := []struct {
		name string
		want Class
	}{
		{"$1", Argument},
		{"$9", Argument},
		{"$0", Global},
		{"$10", Global},
		{"$sub_sep", Global},
		{"count", Local},
		{"x", Local},
	}
	for _, tt := range tests {
		if got := ClassForName(tt.name); got != tt.want {
			t.Errorf("ClassForName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScopeLookupFallsBackToGlobals(t *testing.T) {
	globals := NewTable()
	globals.Declare("length")

	s := NewScope(globals)
	if sym := s.Lookup("length"); sym == nil || sym.Class != Global {
		t.Fatalf("Lookup(length) = %v, want global", sym)
	}
	if sym := s.Lookup("missing"); sym != nil {
		t.Errorf("Lookup(missing) = %v, want nil", sym)
	}

	local := s.Install("x", Local, Literal{})
	if got := s.Lookup("x"); got != local {
		t.Errorf("Lookup(x) = %v, want installed local", got)
	}
	if globals.Lookup("x") != nil {
		t.Error("local leaked into global table")
	}
}

func TestScopeInstallGlobalIsShared(t *testing.T) {
	globals := NewTable()
	a := NewScope(globals).Install("$g", Global, Literal{})
	b := NewScope(globals).Install("$g", Global, Literal{})
	if a != b {
		t.Error("two compilations got different symbols for the same global")
	}
}

func TestStringConstantsAreDeduplicated(t *testing.T) {
	s := NewScope(nil)
	a := s.InstallStringConst("hello")
	b := s.InstallStringConst("world")
	c := s.InstallStringConst("hello")

	if a != c {
		t.Error("equal strings produced distinct constants")
	}
	if a == b {
		t.Error("different strings share a constant")
	}
	if a.Value.Str != "hello" || a.Class != Constant {
		t.Errorf("constant = %+v", a)
	}
	if n := len(s.Constants()); n != 2 {
		t.Errorf("len(Constants()) = %d, want 2", n)
	}
}

func TestIntConstants(t *testing.T) {
	s := NewScope(nil)
	a := s.InstallIntConst(42)
	b := s.InstallIntConst(42)
	if a != b {
		t.Error("same number produced two constants")
	}
	if a.Name != "const 42" || a.Value.Int != 42 {
		t.Errorf("constant = %+v", a)
	}
}

func TestIteratorsAreDistinctLocals(t *testing.T) {
	s := NewScope(nil)
	a := s.InstallIterator()
	b := s.InstallIterator()
	if a == b || a.Name == b.Name {
		t.Errorf("iterators not distinct: %q %q", a.Name, b.Name)
	}
	if a.Class != Local {
		t.Errorf("iterator class = %v, want local", a.Class)
	}
	if len(s.Locals()) != 2 {
		t.Errorf("len(Locals()) = %d, want 2", len(s.Locals()))
	}
}

func TestPromoteToGlobal(t *testing.T) {
	t.Run("local becomes global in place", func(t *testing.T) {
		globals := NewTable()
		s := NewScope(globals)
		f := s.Install("f", Local, Literal{})

		got := s.PromoteToGlobal(f)
		if got != f {
			t.Fatal("promotion changed symbol identity")
		}
		if f.Class != Global {
			t.Errorf("class = %v, want global", f.Class)
		}
		if globals.Lookup("f") != f {
			t.Error("promoted symbol missing from global table")
		}
		if len(s.Locals()) != 0 {
			t.Error("promoted symbol still listed as local")
		}
	})

	t.Run("existing global wins", func(t *testing.T) {
		globals := NewTable()
		globals.Declare("f")
		s := NewScope(globals)
		local := &Symbol{Name: "f", Class: Local}

		got := s.PromoteToGlobal(local)
		if got != globals.Lookup("f") {
			t.Error("did not return the existing global")
		}
		if local.Class != Local {
			t.Error("dropped local was reclassed")
		}
	})

	t.Run("non-locals unchanged", func(t *testing.T) {
		s := NewScope(nil)
		arg := s.Install("$1", Argument, Literal{})
		if got := s.PromoteToGlobal(arg); got != arg || arg.Class != Argument {
			t.Errorf("argument promoted: %v", got)
		}
	})
}

func TestTableConcurrentUse(t *testing.T) {
	globals := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := NewScope(globals)
			for j := 0; j < 50; j++ {
				s.Install(fmt.Sprintf("$g%d", j), Global, Literal{})
				s.PromoteToGlobal(s.Install(fmt.Sprintf("f%d_%d", i, j), Local, Literal{}))
			}
		}(i)
	}
	wg.Wait()

	if got, want := globals.Len(), 50+8*50; got != want {
		t.Errorf("globals.Len() = %d, want %d", got, want)
	}
}
