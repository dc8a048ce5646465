package gossip

import (
	"context"
	"fmt"

	"github.com/gossip-lsp/gossip/jsonrpc"
	mw "github.com/gossip-lsp/gossip/middleware"
	"github.com/gossip-lsp/gossip/transport"
)


// Serve starts the LSP server using the given transport options.
// If no ServeOption is provided, stdio is used by default.
func Serve(s *Server, opts ...ServeOption) error {
	cfg := &serveConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.transport == nil && cfg.transportFactory != nil {
		var err error
		cfg.transport, err = cfg.transportFactory()
		if err != nil {
			return fmt.Errorf("creating transport: %w", err)
		}
	}
	if cfg.transport == nil {
		cfg.transport = transport.Stdio()
	}

	// Apply server-level options
	for _, o := range s.opts {
		o(s)
	}

	// Wrap dispatch with middleware chain
	handler := jsonrpc.Handler(s.dispatch)
	notifHandler := jsonrpc.NotificationHandler(s.dispatchNotification)
	if len(s.middlewares) > 0 {
		chain := mw.Chain(s.middlewares...)
		wrappedHandler := chain(mw.Handler(handler))
		handler = jsonrpc.Handler(wrappedHandler)

		notifInner := mw.Handler(func(ctx context.Context, method string, params jsonrpc.RawMessage) (interface{}, error) {
			s.dispatchNotification(ctx, method, params)
			return nil, nil
		})
		wrappedNotif := chain(notifInner)
		notifHandler = func(ctx context.Context, method string, params jsonrpc.RawMessage) {
			wrappedNotif(ctx, method, params)
		}
	}

	connOpts := []jsonrpc.Option{
		jsonrpc.WithConnLogger(s.logger),
	}
	if s.requestTimeout > 0 {
		connOpts = append(connOpts, jsonrpc.WithRequestTimeout(s.requestTimeout))
	}
	if s.concurrencyLimit > 0 {
		connOpts = append(connOpts, jsonrpc.WithConcurrency(s.concurrencyLimit))
	}
	if s.contentModifiedEnabled {
		connOpts = append(connOpts, jsonrpc.WithContentModified(s.contentModifiedMethods...))
	}

	conn := jsonrpc.NewConn(cfg.transport, connOpts...)
	// The LSP method surface is served entirely through the fallback: the
	// dispatch/dispatchNotification switch already classifies requests vs.
	// notifications and routes by method, so no per-method Registry entries
	// are needed here.
	conn.SetFallback(handler, notifHandler)
	s.conn = conn
	s.client = newClientProxy(conn)

	// Wire the diagnostic engine publish function now that the client exists.
	if s.diagEngine != nil {
		s.diagEngine.SetPublish(s.client.PublishDiagnostics)
	}

	if s.configHolder != nil {
		defer s.configHolder.close()
	}

	s.logger.Info("gossip server starting",
		"name", s.name,
		"version", s.version,
	)

	ctx := context.Background()
	err := conn.Run(ctx)
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
