package gossip

import (
	"github.com/gossip-lsp/gossip/document"
	"github.com/gossip-lsp/gossip/protocol"
	"github.com/gossip-lsp/gossip/treesitter"
)

// TreeFor unwraps the document store's opaque RawTree() back into the
// concrete *treesitter.Tree a handler wants, so callers outside this package
// never need to know the store only stores it as an interface{}. Returns nil
// if tree-sitter isn't enabled for the server or the document has no tree yet.
func TreeFor(doc *document.Document) *treesitter.Tree {
	if doc == nil {
		return nil
	}
	raw := doc.RawTree()
	if raw == nil {
		return nil
	}
	if t, ok := raw.(*treesitter.Tree); ok {
		return t
	}
	return nil
}

// TreeAt looks a document up in ctx.Documents by URI and returns its parsed
// tree, letting a handler go straight from a request's DocumentURI to a
// tree_sitter.Node (via Tree.NodeAt) without touching the document store
// directly.
func TreeAt(ctx *Context, uri protocol.DocumentURI) *treesitter.Tree {
	doc := ctx.Documents.Get(uri)
	return TreeFor(doc)
}
