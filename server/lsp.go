// Package server implements a language server for macro files. It
// recompiles a document on every change and publishes the compile error,
// if any, as a diagnostic.
package server

import (
	"strings"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "nmacro-lsp"

var log = commonlog.GetLogger("nmacro.server")

// LspServer bridges LSP editor features to a Workspace via a Worker.
type LspServer struct {
	worker *Worker

	handler protocol.Handler
	server  *glspserver.Server
	name    string
	version string
}

// NewLSP creates a new LSP server over the given workspace. name is
// reported to the client; empty means the default.
func NewLSP(ws *Workspace, name string) *LspServer {
	if name == "" {
		name = lspName
	}
	s := &LspServer{
		worker:  NewWorker(ws),
		name:    name,
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, name, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	defer s.worker.Stop()
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("%s initializing", s.name)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"$"},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    s.name,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.update(ctx, params.TextDocument.URI, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.worker.Discard(uri)
	if _, err := s.worker.Do(func(ws *Workspace) any {
		ws.Close(uri)
		return nil
	}); err != nil {
		return err
	}

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update queues a recompile of uri. Diagnostics are published once the
// newest text has been compiled.
func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	s.worker.Change(uri, text, func(diags []protocol.Diagnostic) {
		go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
			URI:         uri,
			Diagnostics: diags,
		})
	})
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	result, err := s.worker.Do(func(ws *Workspace) any {
		text, ok := ws.Text(uri)
		if !ok {
			return nil
		}
		prefix := extractPrefix(text, pos)
		if prefix == "" {
			return nil
		}
		return ws.Complete(prefix)
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	result, err := s.worker.Do(func(ws *Workspace) any {
		word := s.wordAt(ws, uri, pos)
		if word == "" {
			return nil
		}
		return ws.Hover(word)
	})
	if err != nil {
		return nil, nil
	}
	hover, _ := result.(*protocol.Hover)
	return hover, nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	result, err := s.worker.Do(func(ws *Workspace) any {
		word := s.wordAt(ws, uri, pos)
		if word == "" {
			return nil
		}
		return ws.Definition(word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	locations := result.([]protocol.Location)
	if len(locations) == 0 {
		return nil, nil
	}
	return locations, nil
}

// wordAt returns the name under the cursor. A hyphenated name is preferred
// when the workspace knows it; otherwise hyphens separate words.
func (s *LspServer) wordAt(ws *Workspace, uri protocol.DocumentUri, pos protocol.Position) string {
	text, ok := ws.Text(uri)
	if !ok {
		return ""
	}
	if word := extractWord(text, pos, true); strings.Contains(word, "-") && ws.Known(word) {
		return word
	}
	return extractWord(text, pos, false)
}

// --- Text extraction helpers ---

func isWordChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_' || ch == '$'
}

// cursorLine returns the line pos is on and the cursor column clamped to it.
func cursorLine(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && (isWordChar(line[start-1]) || line[start-1] == '-' && start > 1 && isWordChar(line[start-2])) {
		start--
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor. With hyphens,
// a '-' between two word characters is part of the word.
func extractWord(text string, pos protocol.Position, hyphens bool) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}
	inner := func(i int) bool {
		return hyphens && line[i] == '-' && i > 0 && i+1 < len(line) && isWordChar(line[i-1]) && isWordChar(line[i+1])
	}

	// Find start
	start := col
	for start > 0 && (isWordChar(line[start-1]) || inner(start-1)) {
		start--
	}

	// Find end
	end := col
	for end < len(line) && (isWordChar(line[end]) || inner(end)) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
