package pipeline

import (
	"context"
	"signalbrief/internal/core"
	"signalbrief/internal/llm"
	"signalbrief/internal/persistence"
	"signalbrief/internal/sources"
)

// TargetLoader resolves the monitoring targets for an organization.
// Implemented by targets.Loader; it never fails, an empty set is valid.
type TargetLoader interface {
	Load(ctx context.Context, orgID string) core.TargetSet
}

// PriorityLookup returns the source priorities for an organization.
// Implemented by *sources.File; a nil result means no priorities.
type PriorityLookup interface {
	For(orgID string) *sources.Priorities
}

// Invoker performs the single generation call of a run, retries included.
// Implemented by llm.Invoker.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (llm.Invocation, error)
}

// Persister stores a completed run. Implemented by persistence.Sink.
type Persister interface {
	Persist(ctx context.Context, rec persistence.SynthesisRecord) error
}
