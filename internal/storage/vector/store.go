// Package vector persists research reference embeddings and answers
// nearest-neighbour queries for protocol grounding.
package vector

import (
	"context"
)

// Document is one embedded research reference.
type Document struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float32
}

// Match is one retrieval hit. Score is cosine similarity in [-1, 1].
type Match struct {
	Document Document
	Score    float64
}

// Store upserts embeddings and retrieves the nearest documents to a query
// embedding. Upserts by ID replace, so re-imports are idempotent.
type Store interface {
	Upsert(ctx context.Context, docs []Document) error
	Nearest(ctx context.Context, embedding []float32, limit int) ([]Match, error)
}
