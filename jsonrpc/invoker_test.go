package jsonrpc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// replyRecorder collects replies emitted by an Invoker in the order they
// arrive, safe for concurrent use.
type replyRecorder struct {
	mu    sync.Mutex
	calls []recordedReply
	seen  map[string]chan struct{}
}

type recordedReply struct {
	id     ID
	result interface{}
	err    error
}

func newReplyRecorder() *replyRecorder {
	return &replyRecorder{seen: make(map[string]chan struct{})}
}

func (r *replyRecorder) reply(id ID, result interface{}, err error) {
	r.mu.Lock()
	r.calls = append(r.calls, recordedReply{id: id, result: result, err: err})
	ch, ok := r.seen[id.Key()]
	r.mu.Unlock()
	if ok {
		close(ch)
	}
}

// waitFor blocks until a reply for id has been recorded, or fails the test
// after a generous timeout.
func (r *replyRecorder) waitFor(t *testing.T, id ID) recordedReply {
	t.Helper()
	r.mu.Lock()
	ch, ok := r.seen[id.Key()]
	if !ok {
		ch = make(chan struct{})
		r.seen[id.Key()] = ch
	}
	for _, c := range r.calls {
		if c.id.Key() == id.Key() {
			r.mu.Unlock()
			return c
		}
	}
	r.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply to id %v", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.id.Key() == id.Key() {
			return c
		}
	}
	t.Fatalf("reply channel closed for id %v but no recorded reply found", id)
	return recordedReply{}
}

func newTestInvoker(cfg InvokerConfig) (*Invoker, *Registry, *replyRecorder) {
	reg := NewRegistry()
	rec := newReplyRecorder()
	cfg.Reply = rec.reply
	return NewInvoker(reg, cfg), reg, rec
}

func TestInvokerMethodNotFound(t *testing.T) {
	inv, _, rec := newTestInvoker(InvokerConfig{})
	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "nope"})

	got := rec.waitFor(t, id)
	if got.err == nil {
		t.Fatal("expected a method-not-found error")
	}
	rpcErr := got.err.(*Error)
	if rpcErr.Code != CodeMethodNotFound {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeMethodNotFound)
	}
}

func TestInvokerDispatchesRegisteredHandler(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{})
	reg.Register(Descriptor{
		Method: "echo",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			return string(params), nil
		},
	})

	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "echo", Params: RawMessage(`"hi"`)})

	got := rec.waitFor(t, id)
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.result != `"hi"` {
		t.Errorf("result = %v, want %q", got.result, `"hi"`)
	}
}

func TestInvokerCooperativeCancellation(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{})
	started := make(chan struct{})
	reg.Register(Descriptor{
		Method: "slow",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "slow"})
	<-started

	inv.handleCancelRequest(mustMarshal(t, CancelParams{ID: id}))

	got := rec.waitFor(t, id)
	if got.err == nil {
		t.Fatal("expected a cancellation error")
	}
	rpcErr := got.err.(*Error)
	if rpcErr.Code != CodeRequestCancelled {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeRequestCancelled)
	}
}

func TestInvokerUnknownCancelIsDroppedSilently(t *testing.T) {
	inv, _, _ := newTestInvoker(InvokerConfig{})
	// Must not panic even though no such request was ever dispatched.
	inv.handleCancelRequest(mustMarshal(t, CancelParams{ID: IntID(42)}))
}

func TestInvokerLateResultAfterCancelIsDiscarded(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{})
	started := make(chan struct{})
	release := make(chan struct{})
	reg.Register(Descriptor{
		Method: "slow",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			close(started)
			<-release
			return "too late", nil
		},
	})

	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "slow"})
	<-started
	inv.handleCancelRequest(mustMarshal(t, CancelParams{ID: id}))

	got := rec.waitFor(t, id)
	if got.err == nil {
		t.Fatal("expected the cancellation reply, not the late result")
	}

	close(release)
	// Give the handler goroutine time to return and attempt its own reply.
	time.Sleep(20 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := 0
	for _, c := range rec.calls {
		if c.id.Key() == id.Key() {
			n++
		}
	}
	if n != 1 {
		t.Errorf("got %d replies for id %v, want exactly 1 (late result must be discarded)", n, id)
	}
}

func TestInvokerTimeout(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{Timeout: 20 * time.Millisecond})
	reg.Register(Descriptor{
		Method: "slow",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "slow"})

	got := rec.waitFor(t, id)
	rpcErr := got.err.(*Error)
	if rpcErr.Code != CodeRequestCancelled {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeRequestCancelled)
	}
}

func TestInvokerContentModifiedCancelsInFlightForURI(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{ContentModified: true})
	started := make(chan struct{})
	reg.Register(Descriptor{
		Method: "textDocument/hover",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	reg.Register(Descriptor{
		Method:       "textDocument/didChange",
		Kind:         KindNotification,
		Notification: func(context.Context, RawMessage) {},
	})

	id := IntID(1)
	params := RawMessage(`{"textDocument":{"uri":"file:///a.go"}}`)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "textDocument/hover", Params: params})
	<-started

	inv.DispatchNotification(context.Background(), &Notification{
		JSONRPC: Version,
		Method:  "textDocument/didChange",
		Params:  RawMessage(`{"textDocument":{"uri":"file:///a.go"}}`),
	})

	got := rec.waitFor(t, id)
	rpcErr := got.err.(*Error)
	if rpcErr.Code != CodeContentModified {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeContentModified)
	}
}

func TestInvokerContentModifiedIgnoresOtherURIs(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{ContentModified: true})
	done := make(chan struct{})
	reg.Register(Descriptor{
		Method: "textDocument/hover",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			<-done
			return "ok", nil
		},
	})
	reg.Register(Descriptor{
		Method:       "textDocument/didChange",
		Kind:         KindNotification,
		Notification: func(context.Context, RawMessage) {},
	})

	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "textDocument/hover", Params: RawMessage(`{"textDocument":{"uri":"file:///a.go"}}`)})

	inv.DispatchNotification(context.Background(), &Notification{
		JSONRPC: Version,
		Method:  "textDocument/didChange",
		Params:  RawMessage(`{"textDocument":{"uri":"file:///other.go"}}`),
	})

	// The unrelated-URI notification must not have cancelled our request.
	time.Sleep(20 * time.Millisecond)
	rec.mu.Lock()
	n := len(rec.calls)
	rec.mu.Unlock()
	if n != 0 {
		t.Fatalf("got %d premature replies, want 0", n)
	}

	close(done)
	got := rec.waitFor(t, id)
	if got.err != nil {
		t.Errorf("unexpected error: %v", got.err)
	}
}

func TestInvokerSerialGroupOrdersExecution(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{})
	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	reg.Register(Descriptor{
		Method:      "first",
		Kind:        KindRequest,
		SerialGroup: "doc",
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			<-release
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			return nil, nil
		},
	})
	reg.Register(Descriptor{
		Method:      "second",
		Kind:        KindRequest,
		SerialGroup: "doc",
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil, nil
		},
	})

	id1, id2 := IntID(1), IntID(2)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id1, Method: "first"})
	inv.Dispatch(&Request{JSONRPC: Version, ID: id2, Method: "second"})

	time.Sleep(20 * time.Millisecond) // second must still be waiting on the group gate
	mu.Lock()
	blocked := len(order) == 0
	mu.Unlock()
	if !blocked {
		t.Fatal("second request ran before first released the serial group")
	}

	close(release)
	rec.waitFor(t, id1)
	rec.waitFor(t, id2)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v, want [first second]", order)
	}
}

func TestInvokerConcurrencyLimit(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{Concurrency: 1})
	var mu sync.Mutex
	running := 0
	maxRunning := 0
	release := make(chan struct{})

	handler := func(ctx context.Context, params RawMessage) (interface{}, error) {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		<-release
		mu.Lock()
		running--
		mu.Unlock()
		return nil, nil
	}
	reg.Register(Descriptor{Method: "a", Kind: KindRequest, Request: handler})
	reg.Register(Descriptor{Method: "b", Kind: KindRequest, Request: handler})

	id1, id2 := IntID(1), IntID(2)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id1, Method: "a"})
	inv.Dispatch(&Request{JSONRPC: Version, ID: id2, Method: "b"})

	time.Sleep(30 * time.Millisecond)
	close(release)
	rec.waitFor(t, id1)
	rec.waitFor(t, id2)

	mu.Lock()
	defer mu.Unlock()
	if maxRunning > 1 {
		t.Errorf("maxRunning = %d, want at most 1", maxRunning)
	}
}

func TestInvokerRecoversHandlerPanic(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{})
	reg.Register(Descriptor{
		Method: "boom",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			panic("handler exploded")
		},
	})

	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "boom"})

	got := rec.waitFor(t, id)
	rpcErr, ok := got.err.(*Error)
	if !ok {
		t.Fatalf("err = %v, want *Error", got.err)
	}
	if rpcErr.Code != CodeInternalError {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeInternalError)
	}
}

func TestInvokerFallbackHandlesUnregisteredMethod(t *testing.T) {
	inv, _, rec := newTestInvoker(InvokerConfig{})
	inv.SetFallback(func(ctx context.Context, method string, params RawMessage) (interface{}, error) {
		return method, nil
	}, nil)

	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "custom/thing"})

	got := rec.waitFor(t, id)
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.result != "custom/thing" {
		t.Errorf("result = %v, want %q", got.result, "custom/thing")
	}
}

func TestInvokerShutdownCancelsWithoutReply(t *testing.T) {
	inv, reg, rec := newTestInvoker(InvokerConfig{})
	started := make(chan struct{})
	reg.Register(Descriptor{
		Method: "slow",
		Kind:   KindRequest,
		Request: func(ctx context.Context, params RawMessage) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	id := IntID(1)
	inv.Dispatch(&Request{JSONRPC: Version, ID: id, Method: "slow"})
	<-started

	inv.Shutdown()
	time.Sleep(20 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.calls) != 0 {
		t.Errorf("got %d replies after shutdown, want 0 (shutdown sends no reply)", len(rec.calls))
	}
}

func mustMarshal(t *testing.T, v interface{}) RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
