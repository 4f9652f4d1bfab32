package server

import (
	"errors"
	"fmt"
	"sync"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ErrStopped is returned by Do after Stop.
var ErrStopped = errors.New("worker stopped")

type request struct {
	fn   func(*Workspace) any
	done chan result
}

type result struct {
	value any
	err   error
}

// change is the newest unprocessed text of a document.
type change struct {
	text    string
	publish func([]protocol.Diagnostic)
}

// Worker owns the workspace: every access runs on its goroutine. Document
// changes are queued per URI and only the newest text of each is compiled,
// so a burst of edits costs one compilation. Queued changes are compiled
// before any query runs, so queries see the latest text.
type Worker struct {
	ws       *Workspace
	requests chan request
	wake     chan struct{}
	quit     chan struct{}
	stop     sync.Once

	mu      sync.Mutex
	pending map[protocol.DocumentUri]change
	order   []protocol.DocumentUri
}

func NewWorker(ws *Workspace) *Worker {
	w := &Worker{
		ws:       ws,
		requests: make(chan request),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		pending:  make(map[protocol.DocumentUri]change),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			w.compilePending()
			req.done <- w.execute(req.fn)
		case <-w.wake:
			w.compilePending()
		case <-w.quit:
			return
		}
	}
}

// Change queues text as the new content of uri and returns at once. When
// the text is compiled its diagnostics go to publish, unless a newer
// change for uri replaced it first.
func (w *Worker) Change(uri protocol.DocumentUri, text string, publish func([]protocol.Diagnostic)) {
	w.mu.Lock()
	if _, ok := w.pending[uri]; !ok {
		w.order = append(w.order, uri)
	}
	w.pending[uri] = change{text: text, publish: publish}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Discard drops the queued change of uri, if any.
func (w *Worker) Discard(uri protocol.DocumentUri) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[uri]; !ok {
		return
	}
	delete(w.pending, uri)
	for i, u := range w.order {
		if u == uri {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// compilePending compiles the queued changes in the order their documents
// first changed.
func (w *Worker) compilePending() {
	w.mu.Lock()
	pending, order := w.pending, w.order
	w.pending, w.order = make(map[protocol.DocumentUri]change), nil
	w.mu.Unlock()

	for _, uri := range order {
		c := pending[uri]
		res := w.execute(func(ws *Workspace) any { return ws.Update(uri, c.text) })
		if res.err != nil {
			log.Errorf("compiling %s: %s", uri, res.err)
			continue
		}
		if c.publish != nil {
			c.publish(res.value.([]protocol.Diagnostic))
		}
	}
}

// execute runs fn on the workspace. A panic becomes an error.
func (w *Worker) execute(fn func(*Workspace) any) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{err: fmt.Errorf("%v", r)}
		}
	}()
	return result{value: fn(w.ws)}
}

// Do runs fn on the worker goroutine, after any queued changes, and waits
// for its result.
func (w *Worker) Do(fn func(*Workspace) any) (any, error) {
	select {
	case <-w.quit:
		return nil, ErrStopped
	default:
	}
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrStopped
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.quit:
		return nil, ErrStopped
	}
}

// Stop ends the worker goroutine. Queued changes are dropped. It may be
// called more than once.
func (w *Worker) Stop() {
	w.stop.Do(func() { close(w.quit) })
}
