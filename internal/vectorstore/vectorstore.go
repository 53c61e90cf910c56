// Package vectorstore adapts the external Qdrant similarity-search service.
// The core treats it as a black box: upsert points keyed by document ID,
// query nearest neighbors scoped by a compiled metadata predicate.
package vectorstore

import (
	"context"

	"github.com/careerhub/ai-pipeline/internal/filter"
)

// Point is a document embedding with its metadata and source text
type Point struct {
	DocumentID string
	Vector     []float32
	Metadata   map[string]any
	SourceText string
}

// Hit is one similarity-search match. Score semantics depend on the backing
// store's distance metric; the retriever normalizes them.
type Hit struct {
	DocumentID string
	Score      float32
	Metadata   map[string]any
	SourceText string
}

// Store is the similarity-search service contract consumed by the core
type Store interface {
	// Upsert inserts or overwrites the point for its document ID. Upserting
	// the same document ID twice leaves exactly one record.
	Upsert(ctx context.Context, point Point) error

	// Search returns up to limit nearest neighbors of vector matching the
	// predicate. Fewer matches than limit is not an error.
	Search(ctx context.Context, vector []float32, predicate *filter.Compiled, limit int) ([]Hit, error)
}
