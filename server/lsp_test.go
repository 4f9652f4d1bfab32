package server

import (
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/nmacro/pkg/symtab"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple word", "x = leng", protocol.Position{Line: 0, Character: 8}, "leng"},
		{"at start", "pri", protocol.Position{Line: 0, Character: 3}, "pri"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "first line\nsecond line\nsubs", protocol.Position{Line: 2, Character: 4}, "subs"},
		{"global", "x = $sub", protocol.Position{Line: 0, Character: 8}, "$sub"},
		{"hyphenated", "forward-ch", protocol.Position{Line: 0, Character: 10}, "forward-ch"},
		{"after operator", "x = a+b", protocol.Position{Line: 0, Character: 7}, "b"},
		{"cursor at beginning", "hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"line beyond document", "single line", protocol.Position{Line: 5, Character: 0}, ""},
		{"column beyond line", "abc", protocol.Position{Line: 0, Character: 40}, "abc"},
	}
	for _, tt := range tests {
		if got := extractPrefix(tt.text, tt.pos); got != tt.want {
			t.Errorf("%s: extractPrefix = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		pos     protocol.Position
		hyphens bool
		want    string
	}{
		{"simple word", "hello world", protocol.Position{Line: 0, Character: 3}, false, "hello"},
		{"at end", "hello world", protocol.Position{Line: 0, Character: 5}, false, "hello"},
		{"second word", "hello world", protocol.Position{Line: 0, Character: 8}, false, "world"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, false, ""},
		{"multi line", "first\nlength(x)", protocol.Position{Line: 1, Character: 3}, false, "length"},
		{"underscore", "my_var", protocol.Position{Line: 0, Character: 3}, false, "my_var"},
		{"global", "x = $sub_sep", protocol.Position{Line: 0, Character: 6}, false, "$sub_sep"},
		{"hyphen split", "forward-character()", protocol.Position{Line: 0, Character: 2}, false, "forward"},
		{"hyphen joined", "forward-character()", protocol.Position{Line: 0, Character: 2}, true, "forward-character"},
		{"trailing hyphen", "a- b", protocol.Position{Line: 0, Character: 1}, true, "a"},
		{"line beyond document", "single line", protocol.Position{Line: 5, Character: 0}, false, ""},
	}
	for _, tt := range tests {
		if got := extractWord(tt.text, tt.pos, tt.hyphens); got != tt.want {
			t.Errorf("%s: extractWord = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestBoolPtr(t *testing.T) {
	p := boolPtr(true)
	if p == nil {
		t.Fatal("boolPtr should not return nil")
	}
	if *p != true {
		t.Errorf("boolPtr(true) = %v, want true", *p)
	}

	p = boolPtr(false)
	if *p != false {
		t.Errorf("boolPtr(false) = %v, want false", *p)
	}
}

// ---------------------------------------------------------------------------
// Word lookup through the worker
// ---------------------------------------------------------------------------

func TestWordAtPrefersKnownHyphenatedName(t *testing.T) {
	globals := symtab.NewTable()
	ws := NewWorkspace(globals, nil)
	s := NewLSP(ws, "")
	defer s.worker.Stop()

	const uri = protocol.DocumentUri("file:///a.nm")
	src := "define forward-word {\n    return 1\n}\nx = forward-word()\ny = a-b\n"

	result, err := s.worker.Do(func(ws *Workspace) any {
		ws.Update(uri, src)
		return []string{
			s.wordAt(ws, uri, protocol.Position{Line: 3, Character: 6}),
			s.wordAt(ws, uri, protocol.Position{Line: 4, Character: 4}),
			s.wordAt(ws, "file:///missing", protocol.Position{}),
		}
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	words := result.([]string)
	// "forward-word" is not a valid define name, so the file fails to
	// compile and no routine of that name is known.
	if words[0] != "forward" {
		t.Errorf("wordAt = %q, want %q", words[0], "forward")
	}
	if words[1] != "a" {
		t.Errorf("wordAt = %q, want %q", words[1], "a")
	}
	if words[2] != "" {
		t.Errorf("wordAt missing document = %q, want empty", words[2])
	}

	globals.Declare("forward-word")
	result, err = s.worker.Do(func(ws *Workspace) any {
		ws.Update(uri, "x = forward-word()\n")
		return s.wordAt(ws, uri, protocol.Position{Line: 0, Character: 6})
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if result.(string) != "forward-word" {
		t.Errorf("wordAt declared = %q, want %q", result, "forward-word")
	}
}
