package vm

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var errArgCount = errors.New("wrong number of arguments")

func installBuiltins(e *Engine) {
	e.Define("length", builtinLength)
	e.Define("print", builtinPrint)
	e.Define("max", builtinMax)
	e.Define("min", builtinMin)
	e.Define("substring", builtinSubstring)
}

func intArg(name string, v Value) (int, error) {
	n, ok := v.ToInt()
	if !ok {
		return 0, fmt.Errorf("%s: %s is not an integer", name, v)
	}
	return n, nil
}

func stringArg(name string, v Value) (string, error) {
	s, ok := v.ToString()
	if !ok {
		return "", fmt.Errorf("%s: expected a string, got an %s", name, v.Kind())
	}
	return s, nil
}

// length(string) is the length in bytes; length(array) the element count.
func builtinLength(e *Engine, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, fmt.Errorf("length: %w", errArgCount)
	}
	if args[0].IsArray() {
		return Int(args[0].Array().Len()), nil
	}
	s, err := stringArg("length", args[0])
	if err != nil {
		return Value{}, err
	}
	return Int(len(s)), nil
}

// print writes its arguments without separators.
func builtinPrint(e *Engine, args []Value) (Value, error) {
	for _, a := range args {
		s, err := stringArg("print", a)
		if err != nil {
			return Value{}, err
		}
		if _, err := io.WriteString(e.out, s); err != nil {
			return Value{}, fmt.Errorf("print: %w", err)
		}
	}
	return Value{}, nil
}

func builtinMax(e *Engine, args []Value) (Value, error) {
	return extremum("max", args, func(a, b int) bool { return a > b })
}

func builtinMin(e *Engine, args []Value) (Value, error) {
	return extremum("min", args, func(a, b int) bool { return a < b })
}

func extremum(name string, args []Value, better func(a, b int) bool) (Value, error) {
	if len(args) == 0 {
		return Value{}, fmt.Errorf("%s: %w", name, errArgCount)
	}
	best, err := intArg(name, args[0])
	if err != nil {
		return Value{}, err
	}
	for _, a := range args[1:] {
		n, err := intArg(name, a)
		if err != nil {
			return Value{}, err
		}
		if better(n, best) {
			best = n
		}
	}
	return Int(best), nil
}

// substring(string, start [, end]) takes bytes [start,end). Negative
// positions count from the end; positions are clamped to the string.
func builtinSubstring(e *Engine, args []Value) (Value, error) {
	if len(args) != 2 && len(args) != 3 {
		return Value{}, fmt.Errorf("substring: %w", errArgCount)
	}
	s, err := stringArg("substring", args[0])
	if err != nil {
		return Value{}, err
	}
	start, err := intArg("substring", args[1])
	if err != nil {
		return Value{}, err
	}
	end := len(s)
	if len(args) == 3 {
		if end, err = intArg("substring", args[2]); err != nil {
			return Value{}, err
		}
	}
	start = clampPos(start, len(s))
	end = clampPos(end, len(s))
	if end < start {
		return String(""), nil
	}
	return String(s[start:end]), nil
}

func clampPos(p, n int) int {
	if p < 0 {
		p += n
	}
	switch {
	case p < 0:
		return 0
	case p > n:
		return n
	}
	return p
}

// formatArgs renders arguments for log lines.
func formatArgs(args []Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
