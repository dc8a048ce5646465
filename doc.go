// Package gossip is the LSP-shaped consumer built on top of package jsonrpc:
// it turns the jsonrpc core's Conn, Register, and SetFallback primitives
// into On<Method> registration, automatic capability negotiation, a
// document store, and optional tree-sitter diagnostics, so a language
// server author never touches framing, cancellation, or dispatch directly.
//
// A minimal server needs only a few lines:
//
//	s := gossip.NewServer("my-lang", "0.1.0")
//	s.OnHover(myHoverHandler)
//	gossip.Serve(s, gossip.WithStdio())
package gossip
