package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// Receiver classifies a decoded JSON value into the batch of Items it
// contains (spec.md §4.2). JSON-RPC batches (a top-level array) are
// flattened: each element is classified independently and all results are
// returned together.
type Receiver struct{}

// NewReceiver creates a Receiver. It is stateless; one instance may be
// shared across connections.
func NewReceiver() *Receiver { return &Receiver{} }

// rawEnvelope is the superset shape used to sniff which of Request,
// Notification, or Response a single JSON object represents.
type rawEnvelope struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      *ID        `json:"id,omitempty"`
	Method  string     `json:"method,omitempty"`
	Result  RawMessage `json:"result,omitempty"`
	Error   *Error     `json:"error,omitempty"`
	Params  RawMessage `json:"params,omitempty"`
}

// Classify decodes data (a single JSON-RPC object or a batch array of them)
// into items, plus whether any item is a Response (hasResponse). The Input
// Handler does not consult hasResponse: it routes each item by its own type,
// Responses to the Response Router and the rest to the Invoker. A parseErr
// is returned only when data isn't valid JSON at all; the caller replies
// ParseError with id null.
func (r *Receiver) Classify(data []byte) (items []Item, hasResponse bool, parseErr *Error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, false, &Error{Code: CodeParseError, Message: "failed to parse JSON-RPC batch"}
		}
		items = make([]Item, 0, len(raws))
		for _, raw := range raws {
			item := r.classifyOne(raw)
			items = append(items, item)
			if _, ok := item.(*Response); ok {
				hasResponse = true
			}
		}
		return items, hasResponse, nil
	}

	item, ok := r.classifySingle(data)
	if !ok {
		return nil, false, &Error{Code: CodeParseError, Message: "failed to parse JSON-RPC message"}
	}
	if _, ok := item.(*Response); ok {
		hasResponse = true
	}
	return []Item{item}, hasResponse, nil
}

// classifySingle is classifyOne plus a top-level JSON syntax check, used for
// the non-batch path where a parse failure is fatal (ParseError) rather than
// recoverable per-element. Valid JSON that does not decode as an envelope is
// an InvalidRequest ProtocolError, not a parse failure.
func (r *Receiver) classifySingle(data []byte) (Item, bool) {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		if json.Valid(data) {
			return &ProtocolError{ID: NullID, Err: &Error{Code: CodeInvalidRequest, Message: "message is not a JSON-RPC object"}}, true
		}
		return nil, false
	}
	return r.classifyEnvelope(raw), true
}

// classifyOne classifies a single batch element. Unlike classifySingle, a
// malformed element never aborts the whole batch: it becomes a
// ProtocolError item so the peer gets a per-element InvalidRequest reply
// and the rest of the batch still proceeds.
func (r *Receiver) classifyOne(data []byte) Item {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ProtocolError{ID: NullID, Err: &Error{Code: CodeInvalidRequest, Message: "malformed batch element"}}
	}
	return r.classifyEnvelope(raw)
}

func (r *Receiver) classifyEnvelope(raw rawEnvelope) Item {
	recoveredID := NullID
	if raw.ID != nil {
		recoveredID = *raw.ID
	}

	if raw.JSONRPC != Version {
		return &ProtocolError{ID: recoveredID, Err: &Error{Code: CodeInvalidRequest, Message: "missing or invalid jsonrpc version"}}
	}

	hasID := raw.ID != nil && raw.ID.IsValid()
	hasMethod := raw.Method != ""

	switch {
	case hasMethod && hasID:
		return &Request{JSONRPC: raw.JSONRPC, ID: recoveredID, Method: raw.Method, Params: raw.Params}
	case hasMethod && !hasID:
		return &Notification{JSONRPC: raw.JSONRPC, Method: raw.Method, Params: raw.Params}
	case !hasMethod && hasID && (len(raw.Result) > 0) != (raw.Error != nil):
		return &Response{JSONRPC: raw.JSONRPC, ID: recoveredID, Result: raw.Result, Error: raw.Error}
	default:
		return &ProtocolError{ID: recoveredID, Err: &Error{Code: CodeInvalidRequest, Message: "message is not a valid request, notification, or response"}}
	}
}
