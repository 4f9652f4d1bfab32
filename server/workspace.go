package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/chazu/nmacro/compiler"
	"github.com/chazu/nmacro/compiler/hash"
	"github.com/chazu/nmacro/pkg/symtab"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var keywords = []string{
	"break", "continue", "define", "delete", "else", "for", "if", "in", "return", "while", "$args",
}

// document is an open macro file and the result of its last compilation.
type document struct {
	text  string
	units []compiler.Unit
}

// Workspace holds the open documents. It is not safe for concurrent use;
// the LSP server reaches it through a Worker.
type Workspace struct {
	globals  *symtab.Table
	builtins []string
	docs     map[protocol.DocumentUri]*document
}

// NewWorkspace creates a workspace compiling against globals. builtins are
// the host routine names offered for completion.
func NewWorkspace(globals *symtab.Table, builtins []string) *Workspace {
	if globals == nil {
		globals = symtab.NewTable()
	}
	return &Workspace{
		globals:  globals,
		builtins: builtins,
		docs:     make(map[protocol.DocumentUri]*document),
	}
}

// Update compiles the new text of uri and returns its diagnostics.
func (w *Workspace) Update(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	doc := &document{text: text}
	w.docs[uri] = doc

	units, err := compiler.New(w.globals).CompileFile(text)
	if err != nil {
		var cerr *compiler.Error
		if !errors.As(err, &cerr) {
			cerr = &compiler.Error{Msg: err.Error()}
		}
		log.Debugf("%s: %s", uri, cerr)
		return []protocol.Diagnostic{errorDiagnostic(text, cerr)}
	}
	doc.units = units
	return duplicateDiagnostics(text, units)
}

// Close forgets uri.
func (w *Workspace) Close(uri protocol.DocumentUri) {
	delete(w.docs, uri)
}

// Text returns the current text of uri.
func (w *Workspace) Text(uri protocol.DocumentUri) (string, bool) {
	doc, ok := w.docs[uri]
	if !ok {
		return "", false
	}
	return doc.text, true
}

func errorDiagnostic(text string, err *compiler.Error) protocol.Diagnostic {
	line, col := err.Position(text)
	pos := protocol.Position{Line: protocol.UInteger(line - 1), Character: protocol.UInteger(col - 1)}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	return protocol.Diagnostic{
		Range:    protocol.Range{Start: pos, End: pos},
		Severity: &severity,
		Source:   &source,
		Message:  err.Msg,
	}
}

// duplicateDiagnostics warns about routines defined more than once in a
// file; the last definition wins when the file is loaded.
func duplicateDiagnostics(text string, units []compiler.Unit) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	seen := make(map[string]bool)
	for i := len(units) - 1; i >= 0; i-- {
		u := units[i]
		if !u.IsRoutine() {
			continue
		}
		if seen[u.Name] {
			pos := offsetToPosition(text, u.Offset)
			severity := protocol.DiagnosticSeverityWarning
			source := lspName
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Range:    protocol.Range{Start: pos, End: pos},
				Severity: &severity,
				Source:   &source,
				Message:  fmt.Sprintf("routine %s is redefined later in this file", u.Name),
			})
		}
		seen[u.Name] = true
	}
	return diagnostics
}

type definition struct {
	uri  protocol.DocumentUri
	unit compiler.Unit
}

// definitions returns every routine defined in the open documents, sorted
// by name and then by URI.
func (w *Workspace) definitions() []definition {
	var defs []definition
	for uri, doc := range w.docs {
		for _, u := range doc.units {
			if u.IsRoutine() {
				defs = append(defs, definition{uri: uri, unit: u})
			}
		}
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].unit.Name != defs[j].unit.Name {
			return defs[i].unit.Name < defs[j].unit.Name
		}
		return defs[i].uri < defs[j].uri
	})
	return defs
}

// Complete returns completion items for names starting with prefix.
func (w *Workspace) Complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if seen[name] || !strings.HasPrefix(name, prefix) {
			return
		}
		seen[name] = true
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	for _, d := range w.definitions() {
		add(d.unit.Name, protocol.CompletionItemKindFunction, "routine")
	}
	for _, name := range w.builtins {
		add(name, protocol.CompletionItemKindFunction, "built-in routine")
	}
	for _, kw := range keywords {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}
	for _, name := range w.globals.Names() {
		if strings.HasPrefix(name, "$") {
			add(name, protocol.CompletionItemKindVariable, "global")
		} else {
			add(name, protocol.CompletionItemKindFunction, "routine")
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// Hover describes the routine, built-in or keyword called word.
func (w *Workspace) Hover(word string) *protocol.Hover {
	var b strings.Builder
	for _, d := range w.definitions() {
		if d.unit.Name != word {
			continue
		}
		if b.Len() == 0 {
			fmt.Fprintf(&b, "**define %s**\n\n", word)
		}
		line, _ := compiler.Position(w.docs[d.uri].text, d.unit.Offset)
		fmt.Fprintf(&b, "- %s:%d, %d cells, hash `%s`\n",
			d.uri, line, d.unit.Program.Len(), hash.Hex(hash.HashProgram(d.unit.Program))[:12])
	}
	if b.Len() == 0 {
		switch {
		case contains(w.builtins, word):
			fmt.Fprintf(&b, "**%s**\n\nbuilt-in routine", word)
		case contains(keywords, word):
			fmt.Fprintf(&b, "**%s**\n\nkeyword", word)
		case w.globals.Lookup(word) != nil:
			if strings.HasPrefix(word, "$") {
				fmt.Fprintf(&b, "**%s**\n\nglobal variable", word)
			} else {
				fmt.Fprintf(&b, "**%s**\n\nroutine", word)
			}
		default:
			return nil
		}
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// Definition returns where the routine word is defined.
func (w *Workspace) Definition(word string) []protocol.Location {
	var locations []protocol.Location
	for _, d := range w.definitions() {
		if d.unit.Name != word {
			continue
		}
		pos := offsetToPosition(w.docs[d.uri].text, d.unit.Offset)
		locations = append(locations, protocol.Location{
			URI:   d.uri,
			Range: protocol.Range{Start: pos, End: pos},
		})
	}
	return locations
}

// Known reports whether word names something Hover can describe.
func (w *Workspace) Known(word string) bool {
	return w.Hover(word) != nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// offsetToPosition converts a byte offset into a 0-based LSP position.
func offsetToPosition(text string, offset int) protocol.Position {
	line, col := compiler.Position(text, offset)
	return protocol.Position{Line: protocol.UInteger(line - 1), Character: protocol.UInteger(col - 1)}
}
