package vectorstore

import (
	"context"
	"errors"
)

// ErrUnavailable signals that the underlying vector engine could not be
// reached or the collection is missing. Callers decide whether to retry the
// document or fail it.
var ErrUnavailable = errors.New("vector store unavailable")

// ErrNotFound is returned by Get for an unknown record id.
var ErrNotFound = errors.New("vector record not found")

// Record is one chunk as persisted: id, embedding, raw text and metadata.
type Record struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]interface{}
}

// Hit is one search match in relevance order (ascending distance).
type Hit struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
	Distance float64
}

type SearchOptions struct {
	Limit  int
	Offset int
	Filter Filter
}

// Store is the adapter over the vector engine. All operations are scoped to
// a named collection.
type Store interface {
	// EnsureCollection is idempotent; metadata of a pre-existing collection
	// is left untouched (first write wins).
	EnsureCollection(ctx context.Context, name string, metadata map[string]string) error

	// Upsert writes records; duplicate ids overwrite.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Get fetches one record with its embedding.
	Get(ctx context.Context, collection, id string) (*Record, error)

	// Search returns hits ordered by ascending distance to query. A nil
	// query means match-all; hits are then ordered by recency and carry
	// distance 0.
	Search(ctx context.Context, collection string, query []float32, opts SearchOptions) ([]Hit, error)

	// Count returns the total number of records matching filter, ignoring
	// limit/offset.
	Count(ctx context.Context, collection string, filter Filter) (int, error)

	// Delete removes all records matching filter.
	Delete(ctx context.Context, collection string, filter Filter) error

	// UpdateMetadata patches metadata fields on matching records without
	// touching embeddings.
	UpdateMetadata(ctx context.Context, collection string, filter Filter, patch map[string]interface{}) error
}
