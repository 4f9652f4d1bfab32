package compiler

import (
	"testing"
)

var fuzzSeeds = []string{
	// Operators
	`> >= < <= == = != ! + ++ += - -- -= | || |= & && &= * ** *= / /= % %= ^`,
	// Numbers and strings
	`42`, `0`, `99999999999999999999999999`, `"hello"`, `""`, `"\x41\0101\q\n"`,
	`"unterminated`, "\"line\nbreak\"", `"\x00\0"`,
	// Names
	`foo`, `$1`, `$args`, `$args[]`, `$sub_sep`, `forward-character`, `delete`, `define`,
	// Statements
	"x = 1\n", "a[1, 2] += 3\n", "delete a[1]\n", "f(1, \"s\")\n", "x = f() g()\n",
	"if (a) x = 1\nelse x = 2\n",
	"while (n > 0) n--\n",
	"for (i = 0; i < 3; i++) { if (i) continue; x += i }\n",
	"for (k in a) { if (k) break }\n",
	"return a && b || !c\n",
	"{\n  x = 1\n}\ntrailing",
	"define f {\n return $1\n}\nf(1)\n",
	// Edge cases
	``, `(`, `)`, `[`, `]`, `{`, `}`, `;`, `,`, "\\\n", "#", "\x00",
	`for (;;)`, `if (`, `while ()`, `a[`, `x = = 1`, `break`,
}

// ---------------------------------------------------------------------------
// FuzzLexer: ensure the lexer never panics and always makes progress.
// ---------------------------------------------------------------------------

func FuzzLexer(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("lexer panicked on input %q: %v", data, r)
			}
		}()

		l := NewLexer(data, nil)
		for i := 0; i < len(data)+100; i++ {
			before := l.Offset()
			tok := l.NextToken()
			if tok.Type == TokenEOF {
				return
			}
			if l.Offset() <= before {
				t.Fatalf("lexer stuck at %d on input %q", before, data)
			}
		}
		t.Fatalf("lexer did not reach EOF on input %q", data)
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: compile errors are fine, panics and malformed programs are
// not.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("compiler panicked on input %q: %v", data, r)
			}
		}()

		prog, err := Compile(data)
		if err != nil {
			cerr, ok := err.(*Error)
			if !ok {
				t.Fatalf("error %v is not an *Error", err)
			}
			if cerr.Offset < 0 || cerr.Offset > len(data) {
				t.Fatalf("error offset %d outside input of %d bytes", cerr.Offset, len(data))
			}
			return
		}
		if err := prog.Validate(); err != nil {
			t.Fatalf("invalid program for %q: %v", data, err)
		}
		if prog.End < 0 || prog.End > len(data) {
			t.Fatalf("End %d outside input of %d bytes", prog.End, len(data))
		}

		_, _ = New(nil).CompileFile(data)
	})
}
