package bytecode

import "fmt"

// Opcode is an instruction of the macro stack machine.
// Opcodes are organized into ranges by category for easy identification.
type Opcode uint8

const (
	// ========================================================================
	// Control (0x00-0x0F)
	// ========================================================================

	OpReturnNoVal Opcode = 0x00 // End the program or routine without a value
	OpReturn      Opcode = 0x01 // Pop a value and return it to the caller

	// ========================================================================
	// Stack and variables (0x10-0x1F)
	// ========================================================================

	OpPushSym Opcode = 0x10 // Push value of symbol: OpPushSym <sym>
	OpDup     Opcode = 0x11 // Duplicate top of stack
	OpAssign  Opcode = 0x12 // Pop into symbol: OpAssign <sym>

	// ========================================================================
	// Arithmetic (0x20-0x2F)
	// ========================================================================

	OpAdd    Opcode = 0x20
	OpSub    Opcode = 0x21
	OpMul    Opcode = 0x22
	OpDiv    Opcode = 0x23
	OpMod    Opcode = 0x24
	OpNegate Opcode = 0x25
	OpIncr   Opcode = 0x26 // Add one to top of stack
	OpDecr   Opcode = 0x27 // Subtract one from top of stack
	OpPower  Opcode = 0x28

	// ========================================================================
	// Comparison and logic (0x30-0x3F)
	// ========================================================================

	OpGT     Opcode = 0x30
	OpLT     Opcode = 0x31
	OpGE     Opcode = 0x32
	OpLE     Opcode = 0x33
	OpEQ     Opcode = 0x34
	OpNE     Opcode = 0x35
	OpBitAnd Opcode = 0x36
	OpBitOr  Opcode = 0x37
	OpAnd    Opcode = 0x38 // Logical and of the top two values
	OpOr     Opcode = 0x39 // Logical or of the top two values
	OpNot    Opcode = 0x3A

	// ========================================================================
	// Strings (0x40-0x4F)
	// ========================================================================

	OpConcat Opcode = 0x40 // Pop b, a; push a followed by b as a string

	// ========================================================================
	// Routines (0x50-0x5F)
	// ========================================================================

	OpSubrCall    Opcode = 0x50 // Call routine: OpSubrCall <sym> <nArgs>
	OpFetchRetVal Opcode = 0x51 // Push the value returned by the last call

	// ========================================================================
	// Branches (0x60-0x6F); operand is relative to the operand cell
	// ========================================================================

	OpBranch      Opcode = 0x60 // Unconditional: OpBranch <off>
	OpBranchTrue  Opcode = 0x61 // Pop; branch if true
	OpBranchFalse Opcode = 0x62 // Pop; branch if false
	OpBranchNever Opcode = 0x63 // Never branches; empty loop conditions

	// ========================================================================
	// Arrays (0x70-0x7F)
	// ========================================================================

	OpArrayRef            Opcode = 0x70 // Pop n keys and an array; push element: <n>
	OpArrayAssign         Opcode = 0x71 // Pop value, n keys, array; store: <n>
	OpBeginArrayIter      Opcode = 0x72 // Pop array into iterator: <iter>
	OpArrayIter           Opcode = 0x73 // Next key into sym or branch: <sym> <iter> <off>
	OpInArray             Opcode = 0x74 // Pop array and key; push membership
	OpArrayDelete         Opcode = 0x75 // Pop n keys and array; delete (all when n is 0): <n>
	OpPushArraySym        Opcode = 0x76 // Push array held by sym: <sym> <createIfUnset>
	OpArrayRefAssignSetup Opcode = 0x77 // Read-modify-write setup: <hasOperand> <n>

	// ========================================================================
	// Positional arguments (0x80-0x8F)
	// ========================================================================

	OpPushArg      Opcode = 0x80 // Pop index; push that argument
	OpPushArgCount Opcode = 0x81 // Push number of arguments
	OpPushArgArray Opcode = 0x82 // Push all arguments as an array
)

// Operand describes the kind of one operand cell following an opcode.
type Operand uint8

const (
	OperandSym Operand = iota
	OperandImm
	OperandBranch
)

// OpcodeInfo provides metadata about each opcode for disassembly, execution
// and validation of decoded programs.
type OpcodeInfo struct {
	Name     string
	Operands []Operand
}

var (
	noOperands = []Operand(nil)
	symOperand = []Operand{OperandSym}
	immOperand = []Operand{OperandImm}
	brOperand  = []Operand{OperandBranch}
)

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpReturnNoVal: {"RETURN_NO_VAL", noOperands},
	OpReturn:      {"RETURN", noOperands},

	OpPushSym: {"PUSH_SYM", symOperand},
	OpDup:     {"DUP", noOperands},
	OpAssign:  {"ASSIGN", symOperand},

	OpAdd:    {"ADD", noOperands},
	OpSub:    {"SUB", noOperands},
	OpMul:    {"MUL", noOperands},
	OpDiv:    {"DIV", noOperands},
	OpMod:    {"MOD", noOperands},
	OpNegate: {"NEGATE", noOperands},
	OpIncr:   {"INCR", noOperands},
	OpDecr:   {"DECR", noOperands},
	OpPower:  {"POWER", noOperands},

	OpGT:     {"GT", noOperands},
	OpLT:     {"LT", noOperands},
	OpGE:     {"GE", noOperands},
	OpLE:     {"LE", noOperands},
	OpEQ:     {"EQ", noOperands},
	OpNE:     {"NE", noOperands},
	OpBitAnd: {"BIT_AND", noOperands},
	OpBitOr:  {"BIT_OR", noOperands},
	OpAnd:    {"AND", noOperands},
	OpOr:     {"OR", noOperands},
	OpNot:    {"NOT", noOperands},

	OpConcat: {"CONCAT", noOperands},

	OpSubrCall:    {"SUBR_CALL", []Operand{OperandSym, OperandImm}},
	OpFetchRetVal: {"FETCH_RET_VAL", noOperands},

	OpBranch:      {"BRANCH", brOperand},
	OpBranchTrue:  {"BRANCH_TRUE", brOperand},
	OpBranchFalse: {"BRANCH_FALSE", brOperand},
	OpBranchNever: {"BRANCH_NEVER", brOperand},

	OpArrayRef:            {"ARRAY_REF", immOperand},
	OpArrayAssign:         {"ARRAY_ASSIGN", immOperand},
	OpBeginArrayIter:      {"BEGIN_ARRAY_ITER", symOperand},
	OpArrayIter:           {"ARRAY_ITER", []Operand{OperandSym, OperandSym, OperandBranch}},
	OpInArray:             {"IN_ARRAY", noOperands},
	OpArrayDelete:         {"ARRAY_DELETE", immOperand},
	OpPushArraySym:        {"PUSH_ARRAY_SYM", []Operand{OperandSym, OperandImm}},
	OpArrayRefAssignSetup: {"ARRAY_REF_ASSIGN_SETUP", []Operand{OperandImm, OperandImm}},

	OpPushArg:      {"PUSH_ARG", noOperands},
	OpPushArgCount: {"PUSH_ARG_COUNT", noOperands},
	OpPushArgArray: {"PUSH_ARG_ARRAY", noOperands},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", uint8(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// Operands returns the operand layout that follows op in the code.
func (op Opcode) Operands() []Operand {
	return GetOpcodeInfo(op).Operands
}

// InstructionLen returns the number of cells used by op and its operands.
func (op Opcode) InstructionLen() int {
	return 1 + len(op.Operands())
}

// IsBranch returns true for the conditional and unconditional branches.
func (op Opcode) IsBranch() bool {
	return op >= OpBranch && op <= OpBranchNever
}

// IsReturn returns true if this opcode terminates execution.
func (op Opcode) IsReturn() bool {
	return op == OpReturn || op == OpReturnNoVal
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
