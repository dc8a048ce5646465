package jsonrpc

// AsError maps an arbitrary handler error onto the wire error taxonomy
// (spec.md §7): a *Error produced by a handler (or by this package) passes
// through unchanged, anything else becomes InternalError.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

// ErrMethodNotFound builds a MethodNotFound error for the given method.
func ErrMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "method not found: " + method}
}

// ErrRequestCancelled builds the error reply for a peer-cancelled or
// timed-out request (spec.md §6: both conditions share code -32800).
func ErrRequestCancelled(reason string) *Error {
	return &Error{Code: CodeRequestCancelled, Message: reason}
}

// ErrContentModified builds the error reply for a request abandoned because
// its target document was mutated mid-flight (spec.md §6, code -32801).
func ErrContentModified(uri string) *Error {
	return &Error{Code: CodeContentModified, Message: "content modified: " + uri}
}
