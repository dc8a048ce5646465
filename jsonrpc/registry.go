package jsonrpc

import (
	"context"
	"fmt"
	"sync"
)

// Kind distinguishes request descriptors (which owe exactly one reply) from
// notification descriptors (fire-and-forget, fan-out).
type Kind int

const (
	// KindRequest marks a descriptor that handles a method expecting a reply.
	KindRequest Kind = iota
	// KindNotification marks a descriptor that handles a fire-and-forget method.
	KindNotification
)

// RequestFunc handles an inbound request and produces its result or error.
// ctx is cancelled when the Invoker abandons the request (peer cancel,
// timeout, content-modified, or shutdown); well-behaved handlers check it at
// suspension points.
type RequestFunc func(ctx context.Context, params RawMessage) (interface{}, error)

// NotificationFunc handles an inbound notification. Errors are logged, never
// replied (notifications never produce a response).
type NotificationFunc func(ctx context.Context, params RawMessage)

// Handler is a method-carrying request handler, used for the connection's
// fallback (SetFallback): unlike RequestFunc, it receives the method name so
// a single function can serve many methods.
type Handler func(ctx context.Context, method string, params RawMessage) (result interface{}, err error)

// NotificationHandler is the method-carrying counterpart of Handler for
// notifications.
type NotificationHandler func(ctx context.Context, method string, params RawMessage)

// Descriptor is a handler registration record (spec.md §3): a method name,
// its kind, and the serial group (if any) its invocations must be ordered
// against.
type Descriptor struct {
	Method       string
	Kind         Kind
	SerialGroup  string
	Request      RequestFunc
	Notification NotificationFunc
}

// Registry is the method-name-to-descriptor multimap described in
// spec.md §4.3: a fast exact-match lookup, at most one request descriptor
// per method (enforced at registration, fail-fast), any number of
// notification descriptors per method (fan-out in registration order).
type Registry struct {
	mu       sync.RWMutex
	byMethod map[string][]*Descriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byMethod: make(map[string][]*Descriptor)}
}

// Registration is a scoped handle returned by Register; releasing it removes
// the descriptor. Release is safe to call more than once.
type Registration struct {
	registry *Registry
	method   string
	d        *Descriptor
	once     sync.Once
}

// Release removes this descriptor from the registry. The next dispatch after
// Release returns will no longer see it (spec.md §4.3: "visible to the next
// dispatch after it returns").
func (r *Registration) Release() {
	r.once.Do(func() {
		r.registry.remove(r.method, r.d)
	})
}

// Register adds a descriptor to the registry. For a request descriptor, it
// fails if another request descriptor is already registered for the same
// method (spec.md: "multiple matches is a configuration error, fail-fast at
// registration"). Registration is thread-safe and visible to the next
// dispatch immediately after Register returns.
func (reg *Registry) Register(d Descriptor) (*Registration, error) {
	if d.Method == "" {
		return nil, fmt.Errorf("jsonrpc: descriptor method must not be empty")
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if d.Kind == KindRequest {
		for _, existing := range reg.byMethod[d.Method] {
			if existing.Kind == KindRequest {
				return nil, fmt.Errorf("jsonrpc: method %q already has a registered request handler", d.Method)
			}
		}
	}

	stored := d
	reg.byMethod[d.Method] = append(reg.byMethod[d.Method], &stored)
	return &Registration{registry: reg, method: d.Method, d: &stored}, nil
}

func (reg *Registry) remove(method string, target *Descriptor) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	list := reg.byMethod[method]
	for i, d := range list {
		if d == target {
			reg.byMethod[method] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(reg.byMethod[method]) == 0 {
		delete(reg.byMethod, method)
	}
}

// LookupRequest returns the single registered request descriptor for
// method, if any.
func (reg *Registry) LookupRequest(method string) (*Descriptor, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, d := range reg.byMethod[method] {
		if d.Kind == KindRequest {
			return d, true
		}
	}
	return nil, false
}

// LookupNotifications returns all registered notification descriptors for
// method, in registration order.
func (reg *Registry) LookupNotifications(method string) []*Descriptor {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	list := reg.byMethod[method]
	out := make([]*Descriptor, 0, len(list))
	for _, d := range list {
		if d.Kind == KindNotification {
			out = append(out, d)
		}
	}
	return out
}
