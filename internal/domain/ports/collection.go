// Package ports holds the interfaces the relationship services depend on:
// the relational store, the semantic index, the embedder and the scorer.
package ports

import "context"

// CollectionManager owns the lifecycle of the semantic index collection that
// mirrors active relationships. `relgraph init --index` calls it once before
// any IndexStore write.
type CollectionManager interface {
	// EnsureCollection creates the index collection sized for the embedder's
	// vectors, with the organization payload index that scopes every search.
	// It is a no-op when the collection already exists.
	EnsureCollection(ctx context.Context, vectorSize uint64) error

	// DeleteCollection drops every indexed relationship across organizations.
	DeleteCollection(ctx context.Context) error
}
