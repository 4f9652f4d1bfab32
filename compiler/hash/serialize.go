package hash

import (
	"encoding/binary"

	"github.com/chazu/nmacro/pkg/bytecode"
	"github.com/chazu/nmacro/pkg/symtab"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of compiled programs.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian int64 (8B)
//   - Strings: uint32 big-endian length + bytes
//   - Cells: tag byte followed by the payload, in code order
//
// Locals are written as their order of first use, so renaming a local
// does not change the hash. Globals and arguments are written by name and
// constants by value.
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of a program's
// code. The returned bytes are suitable for hashing with SHA-256.
func Serialize(p *bytecode.Program) []byte {
	s := &serializer{
		buf:    make([]byte, 0, 16*len(p.Code)+1),
		locals: make(map[*symtab.Symbol]int),
	}
	s.writeByte(HashVersion)
	for _, c := range p.Code {
		s.serializeCell(c)
	}
	return s.buf
}

type serializer struct {
	buf    []byte
	locals map[*symtab.Symbol]int
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeInt(v int) {
	s.writeInt64(int64(v))
}

func (s *serializer) serializeCell(c bytecode.Cell) {
	switch c.Kind {
	case bytecode.CellOp:
		s.writeByte(TagOp)
		s.writeByte(byte(c.Op))
	case bytecode.CellImm:
		s.writeByte(TagImm)
		s.writeInt(c.Value)
	case bytecode.CellBranch:
		// Displacements are position independent already.
		s.writeByte(TagBranch)
		s.writeInt(c.Value)
	case bytecode.CellSym:
		s.serializeSymbol(c.Sym)
	}
}

func (s *serializer) serializeSymbol(sym *symtab.Symbol) {
	switch sym.Class {
	case symtab.Constant:
		if sym.Value.Kind == symtab.StringValue {
			s.writeByte(TagStringConst)
			s.writeString(sym.Value.Str)
		} else {
			s.writeByte(TagIntConst)
			s.writeInt(sym.Value.Int)
		}
	case symtab.Global:
		s.writeByte(TagGlobalRef)
		s.writeString(sym.Name)
	case symtab.Argument:
		s.writeByte(TagArgumentRef)
		s.writeString(sym.Name)
	default:
		idx, ok := s.locals[sym]
		if !ok {
			idx = len(s.locals)
			s.locals[sym] = idx
		}
		s.writeByte(TagLocalRef)
		s.writeInt(idx)
	}
}
