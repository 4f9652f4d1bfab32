package vm

import (
	"sort"
	"strconv"
	"strings"
)

// Kind tags the contents of a Value.
type Kind uint8

const (
	NoValue Kind = iota
	IntKind
	StringKind
	ArrayKind
)

func (k Kind) String() string {
	switch k {
	case IntKind:
		return "integer"
	case StringKind:
		return "string"
	case ArrayKind:
		return "array"
	default:
		return "no value"
	}
}

// Value is a macro value: an integer, a string or an array. The zero Value
// holds nothing; reading a variable in that state is an error.
type Value struct {
	kind Kind
	i    int
	s    string
	a    *Array
}

// Int returns an integer value.
func Int(n int) Value { return Value{kind: IntKind, i: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: StringKind, s: s} }

// ArrayValue wraps an array.
func ArrayValue(a *Array) Value { return Value{kind: ArrayKind, a: a} }

// Bool returns 1 or 0.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsSet() bool    { return v.kind != NoValue }
func (v Value) IsArray() bool  { return v.kind == ArrayKind }
func (v Value) IsString() bool { return v.kind == StringKind }
func (v Value) IsInt() bool    { return v.kind == IntKind }

// Array returns the array held by v, or nil.
func (v Value) Array() *Array { return v.a }

// ToInt converts v to an integer. Strings convert when they hold a decimal
// number, optionally signed and surrounded by blanks.
func (v Value) ToInt() (int, bool) {
	switch v.kind {
	case IntKind:
		return v.i, true
	case StringKind:
		n, err := strconv.Atoi(strings.Trim(v.s, " \t"))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ToString converts v to a string. Arrays have no string form.
func (v Value) ToString() (string, bool) {
	switch v.kind {
	case StringKind:
		return v.s, true
	case IntKind:
		return strconv.Itoa(v.i), true
	}
	return "", false
}

// String renders v for listings and test failures.
func (v Value) String() string {
	switch v.kind {
	case IntKind:
		return strconv.Itoa(v.i)
	case StringKind:
		return strconv.Quote(v.s)
	case ArrayKind:
		return v.a.String()
	default:
		return "<unset>"
	}
}

// Equal compares by content.
func (v Value) Equal(w Value) bool {
	if v.kind == ArrayKind || w.kind == ArrayKind {
		return v.kind == w.kind && v.a.Equal(w.a)
	}
	if a, ok := v.ToInt(); ok {
		if b, ok := w.ToInt(); ok {
			return a == b
		}
	}
	if !v.IsSet() || !w.IsSet() {
		return v.kind == w.kind
	}
	s, _ := v.ToString()
	t, _ := w.ToString()
	return s == t
}

// compare orders two scalars: numerically when both are numbers, by bytes
// otherwise.
func compare(v, w Value) int {
	if a, ok := v.ToInt(); ok {
		if b, ok := w.ToInt(); ok {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			}
			return 0
		}
	}
	s, _ := v.ToString()
	t, _ := w.ToString()
	return strings.Compare(s, t)
}

// copied returns v with any array duplicated, so that assignment never
// shares an array between two variables.
func (v Value) copied() Value {
	if v.kind == ArrayKind {
		return ArrayValue(v.a.Clone())
	}
	return v
}

// ---------------------------------------------------------------------------
// Array: string-keyed associative array
// ---------------------------------------------------------------------------

// SubSep joins the keys of a multi-dimensional element into one key.
const SubSep = "\034"

// Array maps string keys to values. Iteration is in key order.
type Array struct {
	elems map[string]Value
}

// NewArray returns an empty array.
func NewArray() *Array {
	return &Array{elems: make(map[string]Value)}
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.elems) }

// Get returns the element stored under key.
func (a *Array) Get(key string) (Value, bool) {
	v, ok := a.elems[key]
	return v, ok
}

// Set stores val under key.
func (a *Array) Set(key string, val Value) { a.elems[key] = val }

// Delete removes key.
func (a *Array) Delete(key string) { delete(a.elems, key) }

// Clear removes every element.
func (a *Array) Clear() { a.elems = make(map[string]Value) }

// Keys returns the keys in ascending byte order.
func (a *Array) Keys() []string {
	keys := make([]string, 0, len(a.elems))
	for k := range a.elems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone copies the array and every array nested in it.
func (a *Array) Clone() *Array {
	c := NewArray()
	for k, v := range a.elems {
		c.elems[k] = v.copied()
	}
	return c
}

// Equal compares keys and values.
func (a *Array) Equal(b *Array) bool {
	if a.Len() != b.Len() {
		return false
	}
	for k, v := range a.elems {
		w, ok := b.elems[k]
		if !ok || !v.Equal(w) {
			return false
		}
	}
	return true
}

func (a *Array) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range a.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Quote(k))
		sb.WriteString(": ")
		sb.WriteString(a.elems[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}
