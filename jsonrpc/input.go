package jsonrpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// InputHandler is the Input Handler of spec.md §4: it pulls frames off a
// Framer, classifies each with a Receiver, and routes the result — inbound
// calls to the Invoker, inbound responses to the Router, malformed envelopes
// straight back out as error replies.
type InputHandler struct {
	framer   *Framer
	receiver *Receiver
	invoker  *Invoker
	router   *Router
	logger   *slog.Logger

	reply func(id ID, result interface{}, err error)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewInputHandler wires a read loop over framer. reply is used only for
// malformed envelopes the Receiver could not classify at all (ProtocolError
// items); well-formed requests reply through the Invoker's own configured
// reply function.
func NewInputHandler(framer *Framer, receiver *Receiver, invoker *Invoker, router *Router, reply func(ID, interface{}, error), logger *slog.Logger) *InputHandler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &InputHandler{
		framer:   framer,
		receiver: receiver,
		invoker:  invoker,
		router:   router,
		logger:   logger,
		reply:    reply,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run drives the read loop until the stream ends or is closed. It returns
// nil on io.EOF or when the read fails after Stop, otherwise the read error.
func (ih *InputHandler) Run() error {
	for {
		frame, err := ih.framer.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ih.ctx.Err() != nil {
				return nil
			}
			return err
		}
		ih.dispatchFrame(frame)
	}
}

// Stop terminates the read loop's in-flight dispatch context; it does not
// unblock a pending Framer.Read itself, the caller is expected to close the
// underlying transport for that.
func (ih *InputHandler) Stop() { ih.cancel() }

func (ih *InputHandler) dispatchFrame(frame []byte) {
	items, _, parseErr := ih.receiver.Classify(frame)
	if parseErr != nil {
		ih.reply(NullID, nil, parseErr)
		return
	}
	for _, item := range items {
		switch v := item.(type) {
		case *Request:
			ih.invoker.Dispatch(v)
		case *Notification:
			ih.invoker.DispatchNotification(ih.ctx, v)
		case *Response:
			ih.router.Deliver(v)
		case *ProtocolError:
			if !v.ID.IsValid() {
				ih.logger.Warn("jsonrpc: malformed message has no recoverable id, replying with id: null", "error", v.Err.Message)
			}
			ih.reply(v.ID, nil, v.Err)
		}
	}
}
