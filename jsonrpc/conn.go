// Package jsonrpc implements the JSON-RPC 2.0 message transport and
// request-lifecycle core used by the gossip LSP framework: Content-Length
// framing, request/notification/response classification, a handler
// registry, a cancellation- and timeout-aware request invoker, and a
// response router for outbound calls.
package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Conn is a bidirectional JSON-RPC 2.0 connection: it frames and unframes
// messages over rw, dispatches inbound requests/notifications through a
// Registry-backed Invoker, and routes inbound responses back to outbound
// Call waiters via a Router.
type Conn struct {
	rw     io.ReadWriteCloser
	logger *slog.Logger

	registry *Registry
	invoker  *Invoker
	router   *Router
	output   *OutputHandler
	input    *InputHandler

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Option configures a Conn during construction.
type Option func(*connConfig)

type connConfig struct {
	timeout            time.Duration
	concurrency        int
	contentModified    bool
	contentModifiedSet []string
	scheduler          Scheduler
	logger             *slog.Logger
}

// WithRequestTimeout bounds how long a dispatched request may run before the
// Invoker cancels it with CodeRequestCancelled (spec.md §6's
// maximum_request_timeout). Zero (the default) means no timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *connConfig) { cfg.timeout = d }
}

// WithConcurrency bounds how many request handlers may run at once across
// the connection (spec.md §6's request_concurrency_limit). Zero (the
// default) means unbounded.
func WithConcurrency(n int) Option {
	return func(cfg *connConfig) { cfg.concurrency = n }
}

// WithContentModified enables automatic cancellation of in-flight requests
// targeting a document when one of methods (default
// DefaultContentModifiedMethods) is received for that same document's URI.
func WithContentModified(methods ...string) Option {
	return func(cfg *connConfig) {
		cfg.contentModified = true
		if len(methods) > 0 {
			cfg.contentModifiedSet = methods
		}
	}
}

// WithScheduler overrides how dispatched handlers are run; the default runs
// each on its own goroutine.
func WithScheduler(s Scheduler) Option {
	return func(cfg *connConfig) { cfg.scheduler = s }
}

// WithConnLogger sets the logger used for framing warnings, panic recovery,
// and other connection-level diagnostics.
func WithConnLogger(l *slog.Logger) Option {
	return func(cfg *connConfig) { cfg.logger = l }
}

// NewConn creates a Conn over rw. The connection does not start reading
// until Run is called.
func NewConn(rw io.ReadWriteCloser, opts ...Option) *Conn {
	cfg := &connConfig{}
	for _, o := range opts {
		o(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry()
	router := NewRouter()
	output := NewOutputHandler(rw)

	c := &Conn{
		rw:       rw,
		logger:   logger,
		registry: registry,
		router:   router,
		output:   output,
		done:     make(chan struct{}),
	}

	c.invoker = NewInvoker(registry, InvokerConfig{
		Timeout:            cfg.timeout,
		ContentModified:    cfg.contentModified,
		ContentModifiedSet: cfg.contentModifiedSet,
		Concurrency:        cfg.concurrency,
		Scheduler:          cfg.scheduler,
		Logger:             logger,
		Reply:              c.sendResponse,
	})

	framer := NewFramer(rw, logger)
	receiver := NewReceiver()
	c.input = NewInputHandler(framer, receiver, c.invoker, router, c.sendResponse, logger)

	return c
}

// Register adds a method handler descriptor, active from the moment
// Register returns until its Registration is released.
func (c *Conn) Register(d Descriptor) (*Registration, error) {
	return c.registry.Register(d)
}

// SetFallback installs a catch-all handler pair consulted whenever the
// Registry has no descriptor for an inbound method. The fallback still
// passes through every Invoker policy (cancellation, timeout,
// content-modified, concurrency) — it is an additional handler source, not
// a bypass of the registry.
func (c *Conn) SetFallback(req Handler, notif NotificationHandler) {
	c.invoker.SetFallback(req, notif)
}

// Run reads and dispatches messages until the stream ends, ctx is
// cancelled, or Close is called. It blocks until the read loop exits.
func (c *Conn) Run(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		case <-c.done:
		}
	}()

	err := c.input.Run()
	c.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Conn) sendResponse(id ID, result interface{}, err error) {
	resp := NewResponse(id, result, err)
	data, merr := json.Marshal(resp)
	if merr != nil {
		c.logger.Error("jsonrpc: failed to marshal response", "error", merr)
		return
	}
	if werr := c.output.Send(EncodeFrame(data)); werr != nil {
		c.logger.Debug("jsonrpc: dropping response, output closed", "error", werr)
	}
}

// Call sends a request and blocks until its response arrives, ctx is done,
// or the connection closes.
func (c *Conn) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	paramsData, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id, waiter := c.router.Allocate()
	req := &Request{JSONRPC: Version, ID: id, Method: method, Params: paramsData}
	data, err := json.Marshal(req)
	if err != nil {
		c.router.Cancel(id)
		return nil, err
	}
	if err := c.output.Send(EncodeFrame(data)); err != nil {
		c.router.Cancel(id)
		return nil, err
	}

	select {
	case out := <-waiter:
		if out.err != nil {
			return nil, out.err
		}
		return out.resp, nil
	case <-ctx.Done():
		c.router.Cancel(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("jsonrpc: connection closed")
	}
}

// Notify sends a notification; no response is expected.
func (c *Conn) Notify(ctx context.Context, method string, params interface{}) error {
	paramsData, err := marshalParams(params)
	if err != nil {
		return err
	}
	notif := &Notification{JSONRPC: Version, Method: method, Params: paramsData}
	data, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	return c.output.Send(EncodeFrame(data))
}

// Close terminates the connection: it stops the input loop, cancels every
// in-flight handle (ReasonShutdown, no reply sent), fails every pending
// outbound Call, drains the output queue, and closes the underlying
// transport. Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.input.Stop()
		c.invoker.Shutdown()
		c.router.CloseAll(fmt.Errorf("jsonrpc: connection closed"))
		_ = c.output.Stop(2 * time.Second)
		c.closeErr = c.rw.Close()
	})
	return c.closeErr
}

func marshalParams(v interface{}) (RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
