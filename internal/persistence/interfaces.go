// Package persistence stores synthesis results and their searchable records
package persistence

import (
	"context"
	"signalbrief/internal/core"
	"time"
)

// SynthesisRecord is one completed run handed to the persistence sink
type SynthesisRecord struct {
	ID               string
	OrganizationID   string
	OrganizationName string
	Response         core.SynthesisResponse
	CreatedAt        time.Time
}

// ResultStore handles synthesis result persistence
type ResultStore interface {
	// SaveResult inserts the result row for one run
	SaveResult(ctx context.Context, rec SynthesisRecord) error
}

// Embedder turns the searchable body into a vector. Implemented by llm.Client.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
}
