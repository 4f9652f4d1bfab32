package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", uint8(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if got := OpcodeCount(); got != 43 {
		t.Errorf("OpcodeCount() = %d, want 43", got)
	}
}

func TestOpcodeNamesUnique(t *testing.T) {
	seen := make(map[string]Opcode)
	for _, op := range AllOpcodes() {
		name := op.String()
		if other, ok := seen[name]; ok {
			t.Errorf("%s used by 0x%02X and 0x%02X", name, uint8(op), uint8(other))
		}
		seen[name] = op
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpReturnNoVal, "RETURN_NO_VAL"},
		{OpPushSym, "PUSH_SYM"},
		{OpArrayRefAssignSetup, "ARRAY_REF_ASSIGN_SETUP"},
		{OpBranchNever, "BRANCH_NEVER"},
		{OpPushArgArray, "PUSH_ARG_ARRAY"},
		{Opcode(0xFF), "UNKNOWN(0xFF)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestInstructionLen(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpAdd, 1},
		{OpPushSym, 2},
		{OpBranch, 2},
		{OpSubrCall, 3},
		{OpArrayIter, 4},
	}
	for _, tt := range tests {
		if got := tt.op.InstructionLen(); got != tt.want {
			t.Errorf("%v.InstructionLen() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestIsBranch(t *testing.T) {
	for _, op := range AllOpcodes() {
		hasBranchOperand := false
		for _, o := range op.Operands() {
			if o == OperandBranch {
				hasBranchOperand = true
			}
		}
		if op.IsBranch() && !hasBranchOperand {
			t.Errorf("%v is a branch without a branch operand", op)
		}
	}
	if OpArrayIter.IsBranch() {
		t.Error("ARRAY_ITER should not count as a plain branch")
	}
}
