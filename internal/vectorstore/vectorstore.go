// Package vectorstore indexes searchable brief records for later retrieval.
package vectorstore

import (
	"context"
	"time"
)

// SearchRecord is the searchable copy of one synthesis run
type SearchRecord struct {
	ID             string
	OrganizationID string
	RunID          string
	Title          string
	Body           string
	Embedding      []float64 // Optional; nil when no embedder is configured
	CreatedAt      time.Time
}

// Index stores search records and retrieves them again.
// Implementations: PgVectorIndex (cosine similarity over embeddings) and
// BleveIndex (full-text over title and body).
type Index interface {
	// Name identifies the index in logs and metrics
	Name() string

	// Index saves or replaces a record
	Index(ctx context.Context, rec SearchRecord) error

	// Search returns the best matching records, highest score first
	Search(ctx context.Context, query SearchQuery) ([]SearchResult, error)
}

// SearchQuery configures a search. PgVectorIndex uses Embedding, BleveIndex uses Text.
type SearchQuery struct {
	OrganizationID string // Optional filter
	Text           string
	Embedding      []float64

	// Limit is the maximum number of results to return (default: 10)
	Limit int

	// SimilarityThreshold is the minimum cosine similarity for vector search (default: 0.7)
	SimilarityThreshold float64
}

// SearchResult is one matching record
type SearchResult struct {
	RecordID       string
	OrganizationID string
	Title          string
	Score          float64 // Cosine similarity or full-text relevance
}

// DefaultSearchQuery returns sensible defaults
func DefaultSearchQuery() SearchQuery {
	return SearchQuery{
		Limit:               10,
		SimilarityThreshold: 0.7,
	}
}

func (q SearchQuery) withDefaults() SearchQuery {
	d := DefaultSearchQuery()
	if q.Limit <= 0 {
		q.Limit = d.Limit
	}
	if q.SimilarityThreshold == 0 {
		q.SimilarityThreshold = d.SimilarityThreshold
	}
	return q
}
