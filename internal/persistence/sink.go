package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"signalbrief/internal/logger"
	"signalbrief/internal/observability"
	"signalbrief/internal/render"
	"signalbrief/internal/vectorstore"
	"time"

	"github.com/google/uuid"
)

// Sink writes a completed run to the result store and every search index.
// Each target is attempted independently; failures are joined into the
// returned error so the caller can log them without losing the synthesis.
type Sink struct {
	results  ResultStore
	embedder Embedder
	indexes  []vectorstore.Index
	metrics  *observability.Metrics
	now      func() time.Time
	log      *slog.Logger
}

// NewSink creates a sink. results and embedder may be nil.
func NewSink(results ResultStore, embedder Embedder, metrics *observability.Metrics, indexes ...vectorstore.Index) *Sink {
	return &Sink{
		results:  results,
		embedder: embedder,
		indexes:  indexes,
		metrics:  metrics,
		now:      time.Now,
		log:      logger.Get(),
	}
}

// Persist stores rec. A cancelled context writes nothing.
func (s *Sink) Persist(ctx context.Context, rec SynthesisRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persistence skipped: %w", err)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	var errs []error

	if s.results != nil {
		if err := s.results.SaveResult(ctx, rec); err != nil {
			s.metrics.PersistenceFailed("results")
			errs = append(errs, err)
		}
	}

	if len(s.indexes) > 0 {
		search := s.searchRecord(ctx, rec)
		for _, idx := range s.indexes {
			if err := idx.Index(ctx, search); err != nil {
				s.metrics.PersistenceFailed(idx.Name())
				errs = append(errs, fmt.Errorf("%s: %w", idx.Name(), err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.log.Debug("Persisted synthesis", "org", rec.OrganizationID, "record_id", rec.ID, "indexes", len(s.indexes))
	return nil
}

// searchRecord renders the searchable copy of rec. A failed embedding
// leaves the record without a vector.
func (s *Sink) searchRecord(ctx context.Context, rec SynthesisRecord) vectorstore.SearchRecord {
	coverage := rec.Response.DiscoveryAlignment
	body := render.MarkdownBrief(render.BriefData{
		OrganizationName: rec.OrganizationName,
		GeneratedAt:      rec.CreatedAt,
		Result:           rec.Response.Synthesis,
		Coverage:         &coverage,
	})

	search := vectorstore.SearchRecord{
		ID:             uuid.NewString(),
		OrganizationID: rec.OrganizationID,
		RunID:          rec.Response.Metadata.RunID,
		Title:          render.Title(rec.OrganizationName, rec.CreatedAt),
		Body:           body,
		CreatedAt:      rec.CreatedAt,
	}

	if s.embedder != nil {
		embedding, err := s.embedder.GenerateEmbedding(ctx, body)
		if err != nil {
			s.metrics.PersistenceFailed("embedding")
			s.log.Warn("Failed to embed search record, storing without vector", "org", rec.OrganizationID, "error", err)
		} else {
			search.Embedding = embedding
		}
	}
	return search
}
