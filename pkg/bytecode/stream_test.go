package bytecode

import (
	"errors"
	"testing"

	"github.com/chazu/nmacro/pkg/symtab"
)

func TestStreamEmitAddresses(t *testing.T) {
	s := NewStream()
	x := &symtab.Symbol{Name: "x", Class: symtab.Local}

	if at := s.Emit(OpPushSym); at != 0 {
		t.Errorf("first Emit = %d, want 0", at)
	}
	if at := s.EmitSym(x); at != 1 {
		t.Errorf("EmitSym = %d, want 1", at)
	}
	if at := s.EmitImm(7); at != 2 {
		t.Errorf("EmitImm = %d, want 2", at)
	}
	if s.Here() != 3 {
		t.Errorf("Here() = %d, want 3", s.Here())
	}
	if c := s.Cell(1); c.Kind != CellSym || c.Sym != x {
		t.Errorf("Cell(1) = %+v", c)
	}
}

func TestPatchBranch(t *testing.T) {
	s := NewStream()
	s.Emit(OpBranch)
	at := s.EmitPlaceholder()
	s.Emit(OpDup)
	s.Emit(OpDup)

	if !s.Cell(at).Pending {
		t.Fatal("placeholder not pending")
	}
	s.PatchBranch(at, s.Here())

	c := s.Cell(at)
	if c.Pending {
		t.Error("patched cell still pending")
	}
	if c.Value != 3 {
		t.Errorf("displacement = %d, want 3", c.Value)
	}
	if c.Target(at) != 4 {
		t.Errorf("target = %d, want 4", c.Target(at))
	}
}

func TestBackwardBranch(t *testing.T) {
	s := NewStream()
	head := s.Here()
	s.Emit(OpDup)
	s.Emit(OpBranch)
	at := s.EmitBranchTo(head)
	if v := s.Cell(at).Value; v != -2 {
		t.Errorf("displacement = %d, want -2", v)
	}
}

func TestPatchNonBranchPanics(t *testing.T) {
	s := NewStream()
	s.Emit(OpDup)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	s.PatchBranch(0, 0)
}

func TestFinishRejectsPendingPlaceholder(t *testing.T) {
	s := NewStream()
	s.Emit(OpBranch)
	s.EmitPlaceholder()
	s.Emit(OpReturnNoVal)

	if _, err := s.Finish(symtab.NewScope(nil), 0); err == nil {
		t.Error("Finish accepted an unpatched branch")
	}
}

func TestStreamOverflow(t *testing.T) {
	s := NewStream()
	for i := 0; i < MaxCells; i++ {
		s.Emit(OpDup)
	}
	if s.Err() != nil {
		t.Fatalf("Err() = %v before overflow", s.Err())
	}
	s.Emit(OpDup)
	if !errors.Is(s.Err(), ErrProgramTooLarge) {
		t.Errorf("Err() = %v, want ErrProgramTooLarge", s.Err())
	}
	if s.Here() != MaxCells {
		t.Errorf("Here() = %d, want %d", s.Here(), MaxCells)
	}
	if _, err := s.Finish(symtab.NewScope(nil), 0); !errors.Is(err, ErrProgramTooLarge) {
		t.Errorf("Finish error = %v", err)
	}
}

func TestRelocationAddr(t *testing.T) {
	r := Relocation{From: 10, Mid: 13, To: 20}
	tests := []struct{ in, want int }{
		{9, 9},
		{10, 17},
		{12, 19},
		{13, 10},
		{19, 16},
		{20, 20},
	}
	for _, tt := range tests {
		if got := r.Addr(tt.in); got != tt.want {
			t.Errorf("Addr(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// buildSwapFixture lays out
//
//	0: DUP
//	1: BRANCH -> 4       segment A starts at 1
//	3: DUP
//	4: BRANCH -> 0       segment B starts at 4
//	6: BRANCH -> 8
//	8: (end)
func buildSwapFixture() *Stream {
	s := NewStream()
	s.Emit(OpDup)
	s.Emit(OpBranch)
	s.EmitBranchTo(4)
	s.Emit(OpDup)
	s.Emit(OpBranch)
	s.EmitBranchTo(0)
	s.Emit(OpBranch)
	s.EmitBranchTo(8)
	return s
}

func TestSwapCodeMovesSegments(t *testing.T) {
	s := buildSwapFixture()
	r := s.SwapCode(1, 4, 8)

	// B (4 cells) now occupies 1..4, A (3 cells) 5..7.
	wantOps := map[int]Opcode{0: OpDup, 1: OpBranch, 3: OpBranch, 5: OpBranch, 7: OpDup}
	for at, op := range wantOps {
		if c := s.Cell(at); c.Kind != CellOp || c.Op != op {
			t.Errorf("cell %d = %+v, want %v", at, c, op)
		}
	}

	// A's branch pointed at its own end (4): it now points at the end of A (8).
	if got := s.Cell(6).Target(6); got != 8 {
		t.Errorf("A branch target = %d, want 8", got)
	}
	// B's first branch pointed outside the range, to 0.
	if got := s.Cell(2).Target(2); got != 0 {
		t.Errorf("B backward branch target = %d, want 0", got)
	}
	// B's second branch pointed at its own end (8): now the end of B (5).
	if got := s.Cell(4).Target(4); got != 5 {
		t.Errorf("B end branch target = %d, want 5", got)
	}
	if r.Addr(2) != 6 || r.Addr(4) != 1 {
		t.Errorf("relocation = %+v", r)
	}
}

func TestSwapCodeLeavesPendingForCaller(t *testing.T) {
	s := NewStream()
	s.Emit(OpDup)            // 0
	s.Emit(OpDup)            // 1  A
	s.Emit(OpBranch)         // 2  B
	p := s.EmitPlaceholder() // 3
	r := s.SwapCode(1, 2, 4)

	moved := r.Addr(p)
	if moved != 2 {
		t.Fatalf("placeholder moved to %d, want 2", moved)
	}
	if !s.Cell(moved).Pending {
		t.Error("placeholder lost its pending flag")
	}
	s.PatchBranch(moved, 4)
	if got := s.Cell(moved).Target(moved); got != 4 {
		t.Errorf("target = %d, want 4", got)
	}
}

func TestSwapCodeEmptySegment(t *testing.T) {
	s := buildSwapFixture()
	before := append([]Cell(nil), s.code...)
	s.SwapCode(4, 4, 8)
	for i := range before {
		if before[i] != s.code[i] {
			t.Fatalf("cell %d changed on empty swap", i)
		}
	}
}
