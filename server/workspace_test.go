package server

import (
	"sync"
	"testing"

	"github.com/chazu/nmacro/compiler"
	"github.com/chazu/nmacro/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const (
	uriA = protocol.DocumentUri("file:///a.nm")
	uriB = protocol.DocumentUri("file:///b.nm")
)

const routines = `define inc {
    return $1 + 1
}
$r = inc(1)
`

func newWorkspace() *Workspace {
	return NewWorkspace(nil, vm.New().Routines())
}

func labels(items []protocol.CompletionItem) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func TestUpdateReportsCompileError(t *testing.T) {
	ws := newWorkspace()
	src := "x = 1\ny = (\n"

	diags := ws.Update(uriA, src)
	require.Len(t, diags, 1)
	d := diags[0]
	require.NotNil(t, d.Severity)
	assert.Equal(t, protocol.DiagnosticSeverityError, *d.Severity)
	assert.Contains(t, d.Message, "syntax error")
	require.NotNil(t, d.Source)
	assert.Equal(t, lspName, *d.Source)

	_, err := compiler.New(nil).CompileFile(src)
	var cerr *compiler.Error
	require.ErrorAs(t, err, &cerr)
	line, col := cerr.Position(src)
	assert.Equal(t, protocol.UInteger(line-1), d.Range.Start.Line)
	assert.Equal(t, protocol.UInteger(col-1), d.Range.Start.Character)
	assert.Equal(t, cerr.Msg, d.Message)

	text, ok := ws.Text(uriA)
	assert.True(t, ok)
	assert.Equal(t, src, text)
}

func TestUpdateCleanFile(t *testing.T) {
	ws := newWorkspace()
	diags := ws.Update(uriA, routines)
	assert.NotNil(t, diags)
	assert.Empty(t, diags)
}

func TestUpdateWarnsOnRedefinition(t *testing.T) {
	ws := newWorkspace()
	src := "define f {\n    return 1\n}\ndefine f {\n    return 2\n}\n"

	diags := ws.Update(uriA, src)
	require.Len(t, diags, 1)
	require.NotNil(t, diags[0].Severity)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *diags[0].Severity)
	assert.Equal(t, "routine f is redefined later in this file", diags[0].Message)
	assert.Equal(t, protocol.Position{Line: 0, Character: 9}, diags[0].Range.Start)
}

func TestComplete(t *testing.T) {
	ws := newWorkspace()
	ws.Update(uriA, routines)

	assert.Equal(t, []string{"inc", "in"}, labels(ws.Complete("in")))
	assert.Contains(t, labels(ws.Complete("le")), "length")
	assert.Equal(t, []string{"$args", "$r"}, labels(ws.Complete("$")))

	items := ws.Complete("inc")
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Detail)
	assert.Equal(t, "routine", *items[0].Detail)

	assert.Empty(t, ws.Complete("zzz"))
}

func TestHover(t *testing.T) {
	ws := newWorkspace()
	ws.Update(uriA, routines)

	h := ws.Hover("inc")
	require.NotNil(t, h)
	mc, ok := h.Contents.(protocol.MarkupContent)
	require.True(t, ok)
	assert.Equal(t, protocol.MarkupKindMarkdown, mc.Kind)
	assert.Contains(t, mc.Value, "**define inc**")
	assert.Contains(t, mc.Value, "file:///a.nm:1")

	for word, want := range map[string]string{
		"length": "built-in routine",
		"while":  "keyword",
		"$r":     "global variable",
	} {
		h := ws.Hover(word)
		require.NotNil(t, h, word)
		assert.Contains(t, h.Contents.(protocol.MarkupContent).Value, want, word)
	}

	assert.Nil(t, ws.Hover("nosuchthing"))
	assert.True(t, ws.Known("inc"))
	assert.False(t, ws.Known("x"))
}

func TestDefinitionAcrossDocuments(t *testing.T) {
	ws := newWorkspace()
	ws.Update(uriA, routines)
	ws.Update(uriB, "define inc {\n}\n")

	locs := ws.Definition("inc")
	require.Len(t, locs, 2)
	assert.Equal(t, uriA, locs[0].URI)
	assert.Equal(t, protocol.Position{Line: 0, Character: 11}, locs[0].Range.Start)
	assert.Equal(t, uriB, locs[1].URI)

	ws.Close(uriB)
	assert.Len(t, ws.Definition("inc"), 1)
	assert.Empty(t, ws.Definition("length"))

	_, ok := ws.Text(uriB)
	assert.False(t, ok)
}

func TestLaterDocumentsSeeDeclaredRoutines(t *testing.T) {
	ws := newWorkspace()
	ws.Update(uriA, "define beep {\n}\n")
	diags := ws.Update(uriB, "beep()\n")
	assert.Empty(t, diags)
	assert.Contains(t, labels(ws.Complete("be")), "beep")
}

func TestWorker(t *testing.T) {
	w := NewWorker(newWorkspace())

	v, err := w.Do(func(ws *Workspace) any { return len(ws.Update(uriA, routines)) })
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	_, err = w.Do(func(ws *Workspace) any { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	w.Stop()
	w.Stop()
	_, err = w.Do(func(ws *Workspace) any { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

type published struct {
	mu    sync.Mutex
	calls [][]protocol.Diagnostic
}

func (p *published) record(diags []protocol.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, diags)
}

func (p *published) get() [][]protocol.Diagnostic {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// hold blocks the worker until the returned function is called.
func hold(t *testing.T, w *Worker) func() {
	t.Helper()
	started, release := make(chan struct{}), make(chan struct{})
	go w.Do(func(ws *Workspace) any {
		close(started)
		<-release
		return nil
	})
	<-started
	return func() { close(release) }
}

func TestWorkerCoalescesChanges(t *testing.T) {
	w := NewWorker(newWorkspace())
	defer w.Stop()

	var stale, latest published
	release := hold(t, w)
	w.Change(uriA, "x = (\n", stale.record)
	w.Change(uriA, "y = = 1\n", stale.record)
	w.Change(uriA, routines, latest.record)
	release()

	text, err := w.Do(func(ws *Workspace) any {
		text, _ := ws.Text(uriA)
		return text
	})
	require.NoError(t, err)
	assert.Equal(t, routines, text)
	assert.Empty(t, stale.get())
	require.Len(t, latest.get(), 1)
	assert.Empty(t, latest.get()[0])
}

func TestWorkerCompilesEveryChangedDocument(t *testing.T) {
	w := NewWorker(newWorkspace())
	defer w.Stop()

	var a, b published
	release := hold(t, w)
	w.Change(uriA, "define beep {\n}\n", a.record)
	w.Change(uriB, "x = (\n", b.record)
	release()

	v, err := w.Do(func(ws *Workspace) any { return labels(ws.Complete("be")) })
	require.NoError(t, err)
	assert.Contains(t, v, "beep")
	require.Len(t, a.get(), 1)
	require.Len(t, b.get(), 1)
	assert.Len(t, b.get()[0], 1)
}

func TestWorkerDiscard(t *testing.T) {
	w := NewWorker(newWorkspace())
	defer w.Stop()

	var p published
	release := hold(t, w)
	w.Change(uriA, routines, p.record)
	w.Discard(uriA)
	w.Discard(uriB)
	release()

	_, err := w.Do(func(ws *Workspace) any { return nil })
	require.NoError(t, err)
	assert.Empty(t, p.get())
	v, _ := w.Do(func(ws *Workspace) any {
		_, ok := ws.Text(uriA)
		return ok
	})
	assert.Equal(t, false, v)
}
