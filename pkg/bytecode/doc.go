// Package bytecode defines the compiled form of a macro: a flat sequence of
// cells for a stack machine.
//
// A cell holds one of four things: an opcode, a symbol reference, an integer
// immediate or a branch displacement. Operands follow their opcode directly,
// so an instruction such as
//
//	SUBR_CALL <sym> <nArgs>
//
// occupies three consecutive cells. The operand layout of every opcode is
// recorded in its OpcodeInfo and shared by the disassembler, the execution
// engine and the wire decoder.
//
// # Branches
//
// A branch displacement is relative to the cell that stores it: the target
// of the branch cell at address a is a+Value. Forward branches are emitted
// as placeholders with EmitPlaceholder and patched with PatchBranch once the
// target address is known. Finish refuses to build a Program while any
// placeholder is still pending.
//
// # Relocation
//
// The compiler emits a for loop's increment clause before its body and then
// exchanges the two with SwapCode. SwapCode recomputes the displacement of
// every patched branch in the moved range; the returned Relocation tells the
// caller where pending placeholders went.
//
// # Wire format
//
// MarshalProgram and UnmarshalProgram encode a Program as canonical CBOR.
// Symbols are written by value, and globals are resolved by name against the
// receiving host's table when decoding.
package bytecode
