package vm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/nmacro/pkg/bytecode"
	"github.com/chazu/nmacro/pkg/symtab"
)

// checkInterval is how many instructions run between cancellation checks.
const checkInterval = 1024

// ---------------------------------------------------------------------------
// frame: Execution state for one program invocation
// ---------------------------------------------------------------------------

type frame struct {
	name   string
	prog   *bytecode.Program
	args   []Value
	locals map[*symtab.Symbol]Value
	iters  map[*symtab.Symbol]*iterator
	stack  []Value
	pc     int

	// Result of the last routine call, for FETCH_RET_VAL.
	ret     Value
	retFrom string
}

// iterator walks a snapshot of an array's keys. Keys deleted during the
// walk are skipped.
type iterator struct {
	arr  *Array
	keys []string
	next int
}

func newFrame(name string, p *bytecode.Program, args []Value) *frame {
	copies := make([]Value, len(args))
	for i, a := range args {
		copies[i] = a.copied()
	}
	return &frame{
		name:   name,
		prog:   p,
		args:   copies,
		locals: make(map[*symtab.Symbol]Value),
		iters:  make(map[*symtab.Symbol]*iterator),
		stack:  make([]Value, 0, 16),
	}
}

// runtimeError aborts the running frame; exec recovers it.
type runtimeError struct {
	msg string
}

func (f *frame) fail(format string, args ...any) {
	panic(runtimeError{msg: fmt.Sprintf(format, args...)})
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (f *frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() Value {
	if len(f.stack) == 0 {
		f.fail("stack underflow")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) top() Value {
	if len(f.stack) == 0 {
		f.fail("stack underflow")
	}
	return f.stack[len(f.stack)-1]
}

func (f *frame) popN(n int) []Value {
	if len(f.stack) < n {
		f.fail("stack underflow")
	}
	vals := make([]Value, n)
	copy(vals, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vals
}

func (f *frame) popInt() int {
	return f.toInt(f.pop())
}

func (f *frame) toInt(v Value) int {
	n, ok := v.ToInt()
	if !ok {
		switch v.Kind() {
		case ArrayKind:
			f.fail("can't use an array as a number")
		case NoValue:
			f.fail("value is unset")
		}
		f.fail("%s is not an integer", strconv.Quote(v.s))
	}
	return n
}

func (f *frame) toString(v Value) string {
	s, ok := v.ToString()
	if !ok {
		f.fail("can't use an %s as a string", v.Kind())
	}
	return s
}

func (f *frame) toArray(v Value) *Array {
	if !v.IsArray() {
		f.fail("%s is not an array", v)
	}
	return v.Array()
}

// makeKey joins the keys of a multi-dimensional element.
func (f *frame) makeKey(keys []Value) string {
	if len(keys) == 0 {
		f.fail("missing array key")
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		if k.IsArray() {
			f.fail("can't use an array as an array key")
		}
		parts[i] = f.toString(k)
	}
	return strings.Join(parts, SubSep)
}

// operand returns the cell at pc and advances past it.
func (f *frame) operand() bytecode.Cell {
	c := f.prog.Code[f.pc]
	f.pc++
	return c
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (e *Engine) load(f *frame, sym *symtab.Symbol) Value {
	var v Value
	switch sym.Class {
	case symtab.Constant:
		if sym.Value.Kind == symtab.StringValue {
			return String(sym.Value.Str)
		}
		return Int(sym.Value.Int)
	case symtab.Argument:
		n := int(sym.Name[1] - '0')
		if n > len(f.args) {
			f.fail("undefined argument %s", sym.Name)
		}
		return f.args[n-1]
	case symtab.Global:
		v = e.globals[sym.Name]
	default:
		v = f.locals[sym]
	}
	if !v.IsSet() {
		f.fail("undefined variable %s", sym.Name)
	}
	return v
}

func (e *Engine) store(f *frame, sym *symtab.Symbol, v Value) {
	switch sym.Class {
	case symtab.Constant:
		f.fail("can't assign to a constant")
	case symtab.Argument:
		f.fail("can't assign to argument %s", sym.Name)
	case symtab.Global:
		e.globals[sym.Name] = v
	default:
		f.locals[sym] = v
	}
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

func (e *Engine) exec(ctx context.Context, f *frame) (result Value, err error) {
	start := 0
	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(runtimeError)
			if !ok {
				panic(r)
			}
			result, err = Value{}, &Error{Msg: re.msg, Routine: f.name, PC: start}
		}
	}()

	code := f.prog.Code
	for steps := 1; ; steps++ {
		if steps%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Value{}, err
			}
		}
		if f.pc >= len(code) {
			return Value{}, nil
		}
		start = f.pc
		op := f.operand().Op

		switch op {
		case bytecode.OpReturnNoVal:
			return Value{}, nil
		case bytecode.OpReturn:
			return f.pop(), nil

		case bytecode.OpPushSym:
			f.push(e.load(f, f.operand().Sym))
		case bytecode.OpDup:
			f.push(f.top())
		case bytecode.OpAssign:
			sym := f.operand().Sym
			e.store(f, sym, f.pop().copied())

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
			bytecode.OpMod, bytecode.OpPower, bytecode.OpBitAnd, bytecode.OpBitOr,
			bytecode.OpAnd, bytecode.OpOr:
			b := f.popInt()
			a := f.popInt()
			f.push(Int(f.arith(op, a, b)))

		case bytecode.OpNegate:
			f.push(Int(-f.popInt()))
		case bytecode.OpIncr:
			f.push(Int(f.popInt() + 1))
		case bytecode.OpDecr:
			f.push(Int(f.popInt() - 1))
		case bytecode.OpNot:
			f.push(Bool(f.popInt() == 0))

		case bytecode.OpGT, bytecode.OpLT, bytecode.OpGE, bytecode.OpLE,
			bytecode.OpEQ, bytecode.OpNE:
			b := f.pop()
			a := f.pop()
			f.push(Bool(f.relation(op, a, b)))

		case bytecode.OpConcat:
			b := f.toString(f.pop())
			a := f.toString(f.pop())
			f.push(String(a + b))

		case bytecode.OpSubrCall:
			sym := f.operand().Sym
			n := f.operand().Value
			args := f.popN(n)
			v, err := e.call(ctx, sym.Name, args)
			if err != nil {
				var rerr *Error
				if errors.As(err, &rerr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return Value{}, err
				}
				f.fail("%v", err)
			}
			f.ret, f.retFrom = v, sym.Name
		case bytecode.OpFetchRetVal:
			if !f.ret.IsSet() {
				f.fail("%s does not return a value", f.retFrom)
			}
			f.push(f.ret)
			f.ret = Value{}

		case bytecode.OpBranch:
			at := f.pc
			f.pc = f.operand().Target(at)
		case bytecode.OpBranchTrue, bytecode.OpBranchFalse:
			at := f.pc
			target := f.operand().Target(at)
			if (f.popInt() != 0) == (op == bytecode.OpBranchTrue) {
				f.pc = target
			}
		case bytecode.OpBranchNever:
			f.pc++

		case bytecode.OpArrayRef:
			n := f.operand().Value
			key := f.makeKey(f.popN(n))
			arr := f.toArray(f.pop())
			v, ok := arr.Get(key)
			if !ok {
				f.fail("element %s not in array", strconv.Quote(key))
			}
			f.push(v)
		case bytecode.OpArrayAssign:
			n := f.operand().Value
			rhs := f.pop()
			key := f.makeKey(f.popN(n))
			arr := f.toArray(f.pop())
			arr.Set(key, rhs.copied())
		case bytecode.OpArrayRefAssignSetup:
			hasOperand := f.operand().Value != 0
			n := f.operand().Value
			var rhs Value
			if hasOperand {
				rhs = f.pop()
			}
			if len(f.stack) < n+1 {
				f.fail("stack underflow")
			}
			key := f.makeKey(f.stack[len(f.stack)-n:])
			arr := f.toArray(f.stack[len(f.stack)-n-1])
			v, ok := arr.Get(key)
			if !ok {
				f.fail("element %s not in array", strconv.Quote(key))
			}
			f.push(v)
			if hasOperand {
				f.push(rhs)
			}
		case bytecode.OpArrayDelete:
			n := f.operand().Value
			if n == 0 {
				f.toArray(f.pop()).Clear()
				break
			}
			key := f.makeKey(f.popN(n))
			f.toArray(f.pop()).Delete(key)
		case bytecode.OpPushArraySym:
			sym := f.operand().Sym
			create := f.operand().Value != 0
			f.push(e.arrayVar(f, sym, create))
		case bytecode.OpInArray:
			arr := f.toArray(f.pop())
			f.push(Bool(f.contains(arr, f.pop())))

		case bytecode.OpBeginArrayIter:
			sym := f.operand().Sym
			arr := f.toArray(f.pop())
			f.iters[sym] = &iterator{arr: arr, keys: arr.Keys()}
		case bytecode.OpArrayIter:
			keySym := f.operand().Sym
			iterSym := f.operand().Sym
			at := f.pc
			exit := f.operand().Target(at)
			it := f.iters[iterSym]
			if it == nil {
				f.fail("array iteration not started")
			}
			key, ok := it.advance()
			if !ok {
				f.pc = exit
				break
			}
			e.store(f, keySym, String(key))

		case bytecode.OpPushArg:
			i := f.popInt()
			if i < 1 || i > len(f.args) {
				f.fail("undefined argument $args[%d]", i)
			}
			f.push(f.args[i-1])
		case bytecode.OpPushArgCount:
			f.push(Int(len(f.args)))
		case bytecode.OpPushArgArray:
			arr := NewArray()
			for i, a := range f.args {
				arr.Set(strconv.Itoa(i+1), a.copied())
			}
			f.push(ArrayValue(arr))

		default:
			f.fail("bad opcode %s", op)
		}
	}
}

func (it *iterator) advance() (string, bool) {
	for it.next < len(it.keys) {
		k := it.keys[it.next]
		it.next++
		if _, ok := it.arr.Get(k); ok {
			return k, true
		}
	}
	return "", false
}

// arrayVar returns the array held by sym. With create, a variable that
// does not hold an array is given a new empty one first.
func (e *Engine) arrayVar(f *frame, sym *symtab.Symbol, create bool) Value {
	if create {
		var cur Value
		switch sym.Class {
		case symtab.Global:
			cur = e.globals[sym.Name]
		case symtab.Local:
			cur = f.locals[sym]
		default:
			cur = e.load(f, sym)
		}
		if cur.IsArray() {
			return cur
		}
		v := ArrayValue(NewArray())
		e.store(f, sym, v)
		return v
	}
	return e.load(f, sym)
}

// contains implements "key in array". An array on the left asks for all of
// its keys.
func (f *frame) contains(arr *Array, key Value) bool {
	if key.IsArray() {
		for _, k := range key.Array().Keys() {
			if _, ok := arr.Get(k); !ok {
				return false
			}
		}
		return true
	}
	_, ok := arr.Get(f.toString(key))
	return ok
}

func (f *frame) arith(op bytecode.Opcode, a, b int) int {
	switch op {
	case bytecode.OpAdd:
		return a + b
	case bytecode.OpSub:
		return a - b
	case bytecode.OpMul:
		return a * b
	case bytecode.OpDiv:
		if b == 0 {
			f.fail("division by zero")
		}
		return a / b
	case bytecode.OpMod:
		if b == 0 {
			f.fail("division by zero")
		}
		return a % b
	case bytecode.OpPower:
		return f.power(a, b)
	case bytecode.OpBitAnd:
		return a & b
	case bytecode.OpBitOr:
		return a | b
	case bytecode.OpAnd:
		return boolInt(a != 0 && b != 0)
	default:
		return boolInt(a != 0 || b != 0)
	}
}

func (f *frame) power(base, exp int) int {
	if exp < 0 {
		switch base {
		case 0:
			f.fail("division by zero")
		case 1:
			return 1
		case -1:
			if exp%2 == 0 {
				return 1
			}
			return -1
		}
		return 0
	}
	r := 1
	for exp > 0 {
		if exp&1 == 1 {
			r *= base
		}
		base *= base
		exp >>= 1
	}
	return r
}

func (f *frame) relation(op bytecode.Opcode, a, b Value) bool {
	switch op {
	case bytecode.OpEQ:
		return a.Equal(b)
	case bytecode.OpNE:
		return !a.Equal(b)
	}
	if a.IsArray() || b.IsArray() {
		f.fail("can't compare arrays with %s", op)
	}
	c := compare(a, b)
	switch op {
	case bytecode.OpGT:
		return c > 0
	case bytecode.OpLT:
		return c < 0
	case bytecode.OpGE:
		return c >= 0
	default:
		return c <= 0
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
