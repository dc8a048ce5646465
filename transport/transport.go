// Package transport supplies the io.ReadWriteCloser the jsonrpc core's
// Framer reads from and OutputHandler writes to — the core never opens a
// socket or file itself. Each implementation here (stdio, TCP, Unix socket,
// "pipe" (also a Unix socket), WebSocket, Node IPC, plus an in-memory pair
// for tests) is
// otherwise interchangeable from the core's point of view; swapping hosts
// means picking a different constructor here, not touching jsonrpc.
package transport

import "io"

// Transport provides a bidirectional byte stream for JSON-RPC communication.
// Each implementation wraps a specific communication mechanism (stdio, TCP, etc.)
// and exposes it as a simple reader/writer pair.
type Transport interface {
	io.ReadWriteCloser
}

// Func is a function that opens a Transport.
type Func func() (Transport, error)
