package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// CancelReason identifies which cancellation source won the race to
// terminate a handle (spec.md §4.4's policy precedence: "the first to
// observe the handler's not-yet-completed state wins, and its reply kind is
// used").
type CancelReason int32

const (
	reasonNone CancelReason = iota
	// ReasonPeerCancel is a $/cancelRequest from the peer.
	ReasonPeerCancel
	// ReasonTimeout is the configured maximum_request_timeout elapsing.
	ReasonTimeout
	// ReasonContentModified is a document mutation during the handler.
	ReasonContentModified
	// ReasonShutdown is host-initiated shutdown; no reply is sent for it.
	ReasonShutdown
)

type handleState int32

const (
	stateQueued handleState = iota
	stateRunning
	stateCompleted
	stateCancelled
)

// Handle is the Request Invocation Handle of spec.md §3: it exists in the
// in-flight table exactly while a request has neither produced a result nor
// been observed cancelled or timed out.
type Handle struct {
	ID          ID
	Method      string
	documentURI string // best-effort extraction, empty if none/ambiguous

	ctx       context.Context
	cancelCtx context.CancelFunc

	startedAt time.Time

	state  atomic.Int32
	reason atomic.Int32

	done chan struct{}

	mu         sync.Mutex
	onComplete []func(*Handle)
	fired      bool
}

func newHandle(id ID, method string, documentURI string) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:          id,
		Method:      method,
		documentURI: documentURI,
		ctx:         ctx,
		cancelCtx:   cancel,
		startedAt:   time.Now(),
		done:        make(chan struct{}),
	}
	h.state.Store(int32(stateQueued))
	return h
}

// Context returns the handler's cancellation context.
func (h *Handle) Context() context.Context { return h.ctx }

// Done is closed when the handle reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State returns the handle's terminal state once Done is closed; before
// that it may return stateQueued or stateRunning (racy, observability only).
func (h *Handle) State() handleState { return handleState(h.state.Load()) }

// Reason returns the winning cancellation source, valid once State() is
// stateCancelled.
func (h *Handle) Reason() CancelReason { return CancelReason(h.reason.Load()) }

// addOnComplete registers fn to run exactly once, when the handle reaches a
// terminal state. If the handle is already terminal, fn runs immediately
// (synchronously, on the calling goroutine).
func (h *Handle) addOnComplete(fn func(*Handle)) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		fn(h)
		return
	}
	h.onComplete = append(h.onComplete, fn)
	h.mu.Unlock()
}

// cancel transitions the handle to Cancelled with the given reason. Returns
// true iff this call won the race (the handle was not already terminal).
// Losing calls are coalesced silently, per spec.md §4.4.
func (h *Handle) cancel(reason CancelReason) bool {
	if !h.state.CompareAndSwap(int32(stateQueued), int32(stateCancelled)) &&
		!h.state.CompareAndSwap(int32(stateRunning), int32(stateCancelled)) {
		return false
	}
	h.reason.Store(int32(reason))
	h.cancelCtx()
	h.finish()
	return true
}

// complete transitions the handle to Completed. Returns true iff this call
// won the race; if false, the caller's result must be discarded silently
// (spec.md: "any result the handler later produces is discarded").
func (h *Handle) complete() bool {
	if !h.state.CompareAndSwap(int32(stateQueued), int32(stateCompleted)) &&
		!h.state.CompareAndSwap(int32(stateRunning), int32(stateCompleted)) {
		return false
	}
	h.cancelCtx()
	h.finish()
	return true
}

func (h *Handle) finish() {
	close(h.done)
	h.mu.Lock()
	callbacks := h.onComplete
	h.onComplete = nil
	h.fired = true
	h.mu.Unlock()
	for _, cb := range callbacks {
		cb(h)
	}
}

// setRunning best-effort marks the handle Running for State() observers; it
// is not part of the terminal-transition CAS chain, so a concurrent
// cancel/complete always wins regardless of whether this lands first.
func (h *Handle) setRunning() {
	h.state.CompareAndSwap(int32(stateQueued), int32(stateRunning))
}

// serialGroup is a FIFO gate: a unit joining the group runs only once every
// previously-joined unit in the same group has completed or been cancelled
// (spec.md §4.4/§5, and SPEC_FULL.md §5.4 — this applies to both requests
// and notifications sharing a Descriptor.SerialGroup).
type serialGroup struct {
	mu   sync.Mutex
	tail <-chan struct{}
}

func newSerialGroup() *serialGroup {
	closed := make(chan struct{})
	close(closed)
	return &serialGroup{tail: closed}
}

// join returns a channel that closes once every predecessor in this group
// has finished, and a mark function the caller must invoke when it is done
// (success or cancellation) to unblock the next joiner.
func (g *serialGroup) join() (wait <-chan struct{}, mark func()) {
	g.mu.Lock()
	prev := g.tail
	done := make(chan struct{})
	g.tail = done
	g.mu.Unlock()
	return prev, func() { close(done) }
}

// Invoker is the Request Invoker of spec.md §4.4: it schedules handlers
// under composed cancellation (peer cancel, content-modified, timeout,
// shutdown), serial-group ordering, and a global concurrency cap.
type Invoker struct {
	registry  *Registry
	logger    *slog.Logger
	scheduler Scheduler

	timeout           time.Duration
	contentModified   bool
	contentModMethods map[string]bool

	sem chan struct{} // nil when concurrency is unbounded

	groupsMu sync.Mutex
	groups   map[string]*serialGroup

	mu       sync.Mutex
	inflight map[string]*Handle
	byURI    map[string]map[string]*Handle

	fallbackRequest      Handler
	fallbackNotification NotificationHandler

	reply func(id ID, result interface{}, err error)

	shutdownOnce sync.Once
}

// InvokerConfig configures an Invoker (spec.md §6's enumerated options).
type InvokerConfig struct {
	Timeout             time.Duration
	ContentModified     bool
	ContentModifiedSet  []string
	Concurrency         int
	Scheduler           Scheduler
	Logger              *slog.Logger
	Reply               func(id ID, result interface{}, err error)
}

// DefaultContentModifiedMethods is the trigger set from spec.md §6.
var DefaultContentModifiedMethods = []string{
	"textDocument/didChange",
	"textDocument/didClose",
}

// NewInvoker creates an Invoker bound to registry, replying through reply.
func NewInvoker(registry *Registry, cfg InvokerConfig) *Invoker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = goroutineScheduler{}
	}
	triggerSet := cfg.ContentModifiedSet
	if triggerSet == nil {
		triggerSet = DefaultContentModifiedMethods
	}
	modMethods := make(map[string]bool, len(triggerSet))
	for _, m := range triggerSet {
		modMethods[m] = true
	}

	var sem chan struct{}
	if cfg.Concurrency > 0 {
		sem = make(chan struct{}, cfg.Concurrency)
	}

	return &Invoker{
		registry:          registry,
		logger:            logger,
		scheduler:         scheduler,
		timeout:           cfg.Timeout,
		contentModified:   cfg.ContentModified,
		contentModMethods: modMethods,
		sem:               sem,
		groups:            make(map[string]*serialGroup),
		inflight:          make(map[string]*Handle),
		byURI:             make(map[string]map[string]*Handle),
		reply:             cfg.Reply,
	}
}

// SetFallback registers a handler pair consulted only when the Registry has
// no descriptor for a method (SPEC_FULL.md §5.3). The fallback still passes
// through every Invoker policy — it is an alternate handler source, not a
// bypass.
func (inv *Invoker) SetFallback(req Handler, notif NotificationHandler) {
	inv.fallbackRequest = req
	inv.fallbackNotification = notif
}

func (inv *Invoker) group(name string) *serialGroup {
	inv.groupsMu.Lock()
	defer inv.groupsMu.Unlock()
	g, ok := inv.groups[name]
	if !ok {
		g = newSerialGroup()
		inv.groups[name] = g
	}
	return g
}

// joinGroup joins the named serial group; the empty name means no group and
// returns nil, nil. Dispatch paths call it before scheduling, so a group's
// FIFO order is the order in which units were dispatched.
func (inv *Invoker) joinGroup(name string) (<-chan struct{}, func()) {
	if name == "" {
		return nil, nil
	}
	return inv.group(name).join()
}

// Dispatch schedules an inbound Request. It returns immediately; the
// handler runs asynchronously per the configured scheduler.
func (inv *Invoker) Dispatch(req *Request) {
	descriptor, ok := inv.registry.LookupRequest(req.Method)
	var fn RequestFunc
	group := ""
	if ok {
		fn = descriptor.Request
		group = descriptor.SerialGroup
	} else if inv.fallbackRequest != nil {
		method := req.Method
		fallback := inv.fallbackRequest
		fn = func(ctx context.Context, params RawMessage) (interface{}, error) {
			return fallback(ctx, method, params)
		}
	} else {
		inv.replyNow(req.ID, nil, ErrMethodNotFound(req.Method))
		return
	}

	uri := extractDocumentURI(req.Params)
	h := newHandle(req.ID, req.Method, uri)

	inv.register(h)
	h.addOnComplete(func(hh *Handle) { inv.unregister(hh) })

	if inv.timeout > 0 {
		timer := time.AfterFunc(inv.timeout, func() {
			inv.cancelHandle(h, ReasonTimeout)
		})
		h.addOnComplete(func(*Handle) { timer.Stop() })
	}

	wait, mark := inv.joinGroup(group)
	inv.scheduler.Go(func() {
		inv.run(h, wait, mark, func(ctx context.Context) (interface{}, error) {
			return inv.invokeRequest(ctx, fn, req.Params)
		})
	})
}

// DispatchNotification fans out an inbound Notification to every matching
// registered descriptor, one after another in registration order, or to the
// fallback if no descriptor matched. $/cancelRequest is intercepted here and never reaches
// a user handler.
func (inv *Invoker) DispatchNotification(ctx context.Context, notif *Notification) {
	if notif.Method == MethodCancelRequest {
		inv.handleCancelRequest(notif.Params)
		return
	}

	if inv.contentModified && inv.contentModMethods[notif.Method] {
		if uri := extractDocumentURI(notif.Params); uri != "" {
			inv.cancelAllForURI(uri, ReasonContentModified)
		} else {
			inv.logger.Debug("jsonrpc: content-modified notification without a single document uri, ignoring", "method", notif.Method)
		}
	}

	descriptors := inv.registry.LookupNotifications(notif.Method)
	if len(descriptors) == 0 && inv.fallbackNotification != nil {
		fallback := inv.fallbackNotification
		method := notif.Method
		inv.scheduler.Go(func() {
			inv.runNotification(ctx, nil, nil, func(ctx context.Context) {
				inv.invokeNotificationFallback(ctx, fallback, method, notif.Params)
			})
		})
		return
	}

	waits := make([]<-chan struct{}, len(descriptors))
	marks := make([]func(), len(descriptors))
	for i, d := range descriptors {
		waits[i], marks[i] = inv.joinGroup(d.SerialGroup)
	}
	method := notif.Method
	params := notif.Params
	inv.scheduler.Go(func() {
		for i, d := range descriptors {
			fn := d.Notification
			inv.runNotification(ctx, waits[i], marks[i], func(ctx context.Context) {
				inv.invokeNotification(ctx, fn, method, params)
			})
		}
	})
}

// run gates a request handle on its serial group and the concurrency
// semaphore, then invokes body. Exactly one reply is ever sent for the
// handle: either here on normal completion, or by whichever cancel source
// won the race in inv.cancelHandle.
func (inv *Invoker) run(h *Handle, wait <-chan struct{}, mark func(), body func(context.Context) (interface{}, error)) {
	if mark != nil {
		select {
		case <-wait:
		case <-h.ctx.Done():
			// Pass the slot on only once every predecessor has finished.
			go func() {
				<-wait
				mark()
			}()
			return
		}
		defer mark()
	}

	if inv.sem != nil {
		select {
		case inv.sem <- struct{}{}:
			defer func() { <-inv.sem }()
		case <-h.ctx.Done():
			return
		}
	}

	select {
	case <-h.ctx.Done():
		// Cancelled while queued for group/concurrency: never invoke the body.
		return
	default:
	}

	h.setRunning()
	result, err := body(h.ctx)

	if h.complete() {
		inv.replyNow(h.ID, result, err)
	}
	// complete() returning false means a cancel source already won and
	// already replied; this result is discarded per spec.md §8.
}

// runNotification applies the same serial-group gating as run, but without
// a Handle: notifications carry no id, have no timeout, and are never
// cancelled; content-modified and shutdown act only on request handles.
func (inv *Invoker) runNotification(ctx context.Context, wait <-chan struct{}, mark func(), body func(context.Context)) {
	if mark != nil {
		<-wait
		defer mark()
	}
	body(ctx)
}

func (inv *Invoker) invokeRequest(ctx context.Context, fn RequestFunc, params RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("jsonrpc: panic recovered in request handler", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = &Error{Code: CodeInternalError, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	return fn(ctx, params)
}

func (inv *Invoker) invokeNotification(ctx context.Context, fn NotificationFunc, method string, params RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("jsonrpc: panic recovered in notification handler", "method", method, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn(ctx, params)
}

func (inv *Invoker) invokeNotificationFallback(ctx context.Context, fn NotificationHandler, method string, params RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("jsonrpc: panic recovered in fallback notification handler", "method", method, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn(ctx, method, params)
}

func (inv *Invoker) replyNow(id ID, result interface{}, err error) {
	if inv.reply == nil {
		return
	}
	inv.reply(id, result, err)
}

// cancelHandle drives the winning-source reply policy (spec.md §4.4): if
// this call wins the cancellation race, it emits the reply kind that
// matches reason, unless reason is ReasonShutdown (no reply at all).
func (inv *Invoker) cancelHandle(h *Handle, reason CancelReason) {
	if !h.cancel(reason) {
		return
	}
	switch reason {
	case ReasonShutdown:
		return
	case ReasonContentModified:
		inv.replyNow(h.ID, nil, ErrContentModified(h.documentURI))
	default:
		inv.replyNow(h.ID, nil, ErrRequestCancelled(reasonLabel(reason)))
	}
}

func reasonLabel(reason CancelReason) string {
	switch reason {
	case ReasonPeerCancel:
		return "cancelled by peer"
	case ReasonTimeout:
		return "request timed out"
	default:
		return "request cancelled"
	}
}

func (inv *Invoker) register(h *Handle) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.inflight[h.ID.Key()] = h
	if h.documentURI != "" {
		set, ok := inv.byURI[h.documentURI]
		if !ok {
			set = make(map[string]*Handle)
			inv.byURI[h.documentURI] = set
		}
		set[h.ID.Key()] = h
	}
}

func (inv *Invoker) unregister(h *Handle) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.inflight, h.ID.Key())
	if h.documentURI != "" {
		if set, ok := inv.byURI[h.documentURI]; ok {
			delete(set, h.ID.Key())
			if len(set) == 0 {
				delete(inv.byURI, h.documentURI)
			}
		}
	}
}

// handleCancelRequest implements the peer-initiated $/cancelRequest source.
// A cancel for an id that isn't (or is no longer) in the table is dropped
// silently; there is no retroactive buffering (spec.md §4.4, §9).
func (inv *Invoker) handleCancelRequest(params RawMessage) {
	var p CancelParams
	if err := json.Unmarshal(params, &p); err != nil {
		return
	}
	inv.mu.Lock()
	h, ok := inv.inflight[p.ID.Key()]
	inv.mu.Unlock()
	if !ok {
		return
	}
	inv.cancelHandle(h, ReasonPeerCancel)
}

// cancelAllForURI implements the content-modified source: every in-flight
// request whose params expose exactly the given document URI is cancelled.
func (inv *Invoker) cancelAllForURI(uri string, reason CancelReason) {
	inv.mu.Lock()
	set := inv.byURI[uri]
	handles := make([]*Handle, 0, len(set))
	for _, h := range set {
		handles = append(handles, h)
	}
	inv.mu.Unlock()
	for _, h := range handles {
		inv.cancelHandle(h, reason)
	}
}

// Shutdown cancels every in-flight handle with ReasonShutdown. No replies
// are emitted for handles cancelled here beyond those already in flight
// (spec.md §4.4's shutdown source never produces a reply).
func (inv *Invoker) Shutdown() {
	inv.shutdownOnce.Do(func() {
		inv.mu.Lock()
		handles := make([]*Handle, 0, len(inv.inflight))
		for _, h := range inv.inflight {
			handles = append(handles, h)
		}
		inv.mu.Unlock()
		for _, h := range handles {
			inv.cancelHandle(h, ReasonShutdown)
		}
	})
}

// extractDocumentURI is the best-effort single-URI probe described in
// SPEC_FULL.md §5.1: it looks for params.textDocument.uri, falling back to
// params.uri, and returns "" if neither is a single string (the request or
// notification is then left untouched by content-modified cancellation).
func extractDocumentURI(params RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var probe struct {
		TextDocument *struct {
			URI string `json:"uri"`
		} `json:"textDocument"`
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &probe); err != nil {
		return ""
	}
	if probe.TextDocument != nil && probe.TextDocument.URI != "" {
		return probe.TextDocument.URI
	}
	return probe.URI
}
