package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/chazu/nmacro/compiler"
	"github.com/chazu/nmacro/pkg/bytecode"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nmacro.vm")

// DefaultMaxDepth bounds nested routine calls.
const DefaultMaxDepth = 100

// Error is a run-time error.
type Error struct {
	Msg string

	// Routine is the routine that failed; empty for top-level code.
	Routine string

	// PC is the address of the failing instruction.
	PC int
}

func (e *Error) Error() string {
	if e.Routine != "" {
		return fmt.Sprintf("%s: %s (pc %d)", e.Routine, e.Msg, e.PC)
	}
	return fmt.Sprintf("%s (pc %d)", e.Msg, e.PC)
}

// Builtin is a routine implemented in Go. It returns the zero Value when it
// produces no result.
type Builtin func(e *Engine, args []Value) (Value, error)

// Engine runs compiled programs. It holds the global variables and the
// routines programs may call. An Engine is not safe for concurrent use.
type Engine struct {
	globals  map[string]Value
	builtins map[string]Builtin
	macros   map[string]*bytecode.Program
	out      io.Writer
	maxDepth int
	depth    int
}

// Option configures an Engine.
type Option func(*Engine)

// WithOutput directs the print routine to w.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithMaxDepth sets the limit on nested routine calls.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// New creates an engine with the standard routines installed.
func New(opts ...Option) *Engine {
	e := &Engine{
		globals:  make(map[string]Value),
		builtins: make(map[string]Builtin),
		macros:   make(map[string]*bytecode.Program),
		out:      os.Stdout,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	installBuiltins(e)
	e.globals["$sub_sep"] = String(SubSep)
	e.globals["$empty_array"] = ArrayValue(NewArray())
	return e
}

// Define installs a Go routine under name.
func (e *Engine) Define(name string, fn Builtin) {
	e.builtins[name] = fn
}

// DefineMacro installs a compiled routine under name. It shadows a Go
// routine of the same name.
func (e *Engine) DefineMacro(name string, p *bytecode.Program) {
	e.macros[name] = p
	log.Debugf("routine %s installed (%d cells)", name, p.Len())
}

// Routines returns the sorted names the engine can call.
func (e *Engine) Routines() []string {
	names := make([]string, 0, len(e.builtins)+len(e.macros))
	for n := range e.builtins {
		names = append(names, n)
	}
	for n := range e.macros {
		if _, ok := e.builtins[n]; !ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Global returns the value of a global variable.
func (e *Engine) Global(name string) (Value, bool) {
	v, ok := e.globals[name]
	return v, ok && v.IsSet()
}

// SetGlobal assigns a global variable.
func (e *Engine) SetGlobal(name string, v Value) {
	e.globals[name] = v.copied()
}

// Output returns where print writes.
func (e *Engine) Output() io.Writer {
	return e.out
}

// Run executes a program with the given arguments and returns the value of
// its return statement, or the zero Value if it returned none.
func (e *Engine) Run(ctx context.Context, p *bytecode.Program, args ...Value) (Value, error) {
	log.Debugf("running %d cells with %d arguments", p.Len(), len(args))
	return e.invoke(ctx, "", p, args)
}

// Call runs the routine name.
func (e *Engine) Call(ctx context.Context, name string, args ...Value) (Value, error) {
	return e.call(ctx, name, args)
}

// Load installs the routines of a compiled file and runs its immediate
// statements, in file order.
func (e *Engine) Load(ctx context.Context, units []compiler.Unit) error {
	for _, u := range units {
		if u.IsRoutine() {
			e.DefineMacro(u.Name, u.Program)
			continue
		}
		if _, err := e.Run(ctx, u.Program); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) call(ctx context.Context, name string, args []Value) (Value, error) {
	log.Debugf("call %s(%s)", name, formatArgs(args))
	if p, ok := e.macros[name]; ok {
		return e.invoke(ctx, name, p, args)
	}
	if fn, ok := e.builtins[name]; ok {
		return fn(e, args)
	}
	return Value{}, fmt.Errorf("undefined routine: %s", name)
}

func (e *Engine) invoke(ctx context.Context, name string, p *bytecode.Program, args []Value) (Value, error) {
	if e.depth >= e.maxDepth {
		return Value{}, fmt.Errorf("routine calls nested too deeply")
	}
	e.depth++
	defer func() { e.depth-- }()

	f := newFrame(name, p, args)
	return e.exec(ctx, f)
}
