package bytecode

import (
	"fmt"

	"github.com/chazu/nmacro/pkg/symtab"
	"github.com/fxamacker/cbor/v2"
)

// WireVersion is the current encoding version. Increment when making
// incompatible changes to the format.
const WireVersion uint16 = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireSymbol struct {
	Name  string             `cbor:"1,keyasint"`
	Class symtab.Class       `cbor:"2,keyasint"`
	Kind  symtab.LiteralKind `cbor:"3,keyasint,omitempty"`
	Int   int                `cbor:"4,keyasint,omitempty"`
	Str   string             `cbor:"5,keyasint,omitempty"`
}

type wireCell struct {
	Kind  CellKind `cbor:"1,keyasint"`
	Op    Opcode   `cbor:"2,keyasint,omitempty"`
	Sym   int      `cbor:"3,keyasint,omitempty"`
	Value int      `cbor:"4,keyasint,omitempty"`
}

type wireProgram struct {
	Version   uint16       `cbor:"1,keyasint"`
	Symbols   []wireSymbol `cbor:"2,keyasint"`
	Constants []int        `cbor:"3,keyasint"`
	Locals    []int        `cbor:"4,keyasint"`
	Code      []wireCell   `cbor:"5,keyasint"`
	End       int          `cbor:"6,keyasint"`
}

// MarshalProgram serializes a program to canonical CBOR. Symbols are
// written by value; identical programs produce identical bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	w, err := toWire(p)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalProgram deserializes a program. Global symbols are resolved by
// name against globals so the program shares them with the host.
func UnmarshalProgram(data []byte, globals *symtab.Table) (*Program, error) {
	var w wireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	p, err := fromWire(&w, globals)
	if err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	return p, nil
}

// Marshal serializes any value with the canonical encoder used for
// programs.
func Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

func toWire(p *Program) (*wireProgram, error) {
	w := &wireProgram{Version: WireVersion, End: p.End}
	index := make(map[*symtab.Symbol]int)
	add := func(sym *symtab.Symbol) int {
		if i, ok := index[sym]; ok {
			return i
		}
		i := len(w.Symbols)
		index[sym] = i
		w.Symbols = append(w.Symbols, wireSymbol{
			Name:  sym.Name,
			Class: sym.Class,
			Kind:  sym.Value.Kind,
			Int:   sym.Value.Int,
			Str:   sym.Value.Str,
		})
		return i
	}
	for _, c := range p.Constants {
		w.Constants = append(w.Constants, add(c))
	}
	for _, l := range p.Locals {
		w.Locals = append(w.Locals, add(l))
	}
	w.Code = make([]wireCell, len(p.Code))
	for i, c := range p.Code {
		if c.Kind == CellBranch && c.Pending {
			return nil, fmt.Errorf("bytecode: cannot encode unpatched branch at %d", i)
		}
		wc := wireCell{Kind: c.Kind, Op: c.Op, Value: c.Value}
		if c.Kind == CellSym {
			wc.Sym = add(c.Sym)
		}
		w.Code[i] = wc
	}
	return w, nil
}

func fromWire(w *wireProgram, globals *symtab.Table) (*Program, error) {
	if w.Version != WireVersion {
		return nil, fmt.Errorf("unsupported version %d", w.Version)
	}
	if globals == nil {
		globals = symtab.NewTable()
	}
	syms := make([]*symtab.Symbol, len(w.Symbols))
	for i, ws := range w.Symbols {
		if ws.Class == symtab.Global {
			syms[i] = globals.Resolve(ws.Name)
			continue
		}
		syms[i] = &symtab.Symbol{
			Name:  ws.Name,
			Class: ws.Class,
			Value: symtab.Literal{Kind: ws.Kind, Int: ws.Int, Str: ws.Str},
		}
	}
	lookup := func(i int) (*symtab.Symbol, error) {
		if i < 0 || i >= len(syms) {
			return nil, fmt.Errorf("symbol index %d out of range", i)
		}
		return syms[i], nil
	}

	p := &Program{End: w.End, Code: make([]Cell, len(w.Code))}
	for _, i := range w.Constants {
		sym, err := lookup(i)
		if err != nil {
			return nil, err
		}
		p.Constants = append(p.Constants, sym)
	}
	for _, i := range w.Locals {
		sym, err := lookup(i)
		if err != nil {
			return nil, err
		}
		p.Locals = append(p.Locals, sym)
	}
	for i, wc := range w.Code {
		c := Cell{Kind: wc.Kind, Op: wc.Op, Value: wc.Value}
		if wc.Kind == CellSym {
			sym, err := lookup(wc.Sym)
			if err != nil {
				return nil, fmt.Errorf("cell %d: %w", i, err)
			}
			c.Sym = sym
		}
		p.Code[i] = c
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Unmarshal decodes data written by Marshal.
func Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
