package jsonrpc

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// outcome is the settled result of one outbound call: exactly one of resp
// or err is meaningful, mirroring how Response itself carries result xor
// error.
type outcome struct {
	resp *Response
	err  error
}

// Router is the Response Router of spec.md §5: it allocates ids for
// outbound requests, matches inbound Responses back to their waiter, and
// fails every still-pending waiter when the connection is lost.
type Router struct {
	nextID int64

	mu      sync.Mutex
	pending map[string]chan outcome
	closed  bool
	closeErr error
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{pending: make(map[string]chan outcome)}
}

// Allocate reserves the next outbound id and registers a waiter for its
// response. The channel receives one outcome: the Response passed to
// Deliver, or the error given to CloseAll (at once if the Router is already
// closed). It is never closed, and after Cancel nothing is sent on it.
func (r *Router) Allocate() (ID, <-chan outcome) {
	n := atomic.AddInt64(&r.nextID, 1)
	id := IntID(n)
	ch := make(chan outcome, 1)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		ch <- outcome{err: r.closeErr}
		return id, ch
	}
	r.pending[id.Key()] = ch
	return id, ch
}

// Cancel drops a waiter without delivering to it, used when Call's caller
// context is done before a response ever arrives and the reply, if it comes
// late, should simply be discarded.
func (r *Router) Cancel(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id.Key())
}

// Deliver routes an inbound Response to its waiter, if any is still
// pending. A Response with no matching waiter (already cancelled, or a
// stray/duplicate reply) is dropped silently.
func (r *Router) Deliver(resp *Response) {
	r.mu.Lock()
	ch, ok := r.pending[resp.ID.Key()]
	if ok {
		delete(r.pending, resp.ID.Key())
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	ch <- outcome{resp: resp}
}

// CloseAll fails every still-pending waiter with err (spec.md §5: "the
// connection closing fails every still-pending call"), and marks the
// Router closed so subsequent Allocate calls fail fast instead of hanging
// forever.
func (r *Router) CloseAll(err error) {
	if err == nil {
		err = fmt.Errorf("jsonrpc: connection closed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.closeErr = err
	for id, ch := range r.pending {
		ch <- outcome{err: err}
		delete(r.pending, id)
	}
}
