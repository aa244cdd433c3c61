// Package pipeline runs one synthesis: targets, enrichment, recency,
// selection, grouping, prompt, generation, recovery, repair and coverage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"signalbrief/internal/core"
	"signalbrief/internal/cost"
	"signalbrief/internal/coverage"
	"signalbrief/internal/crossref"
	"signalbrief/internal/grouping"
	"signalbrief/internal/llm"
	"signalbrief/internal/logger"
	"signalbrief/internal/observability"
	"signalbrief/internal/parser"
	"signalbrief/internal/persistence"
	"signalbrief/internal/prompt"
	"signalbrief/internal/recency"
	"signalbrief/internal/selection"
	"signalbrief/internal/sources"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRequest marks a request the pipeline cannot run at all
var ErrInvalidRequest = errors.New("invalid synthesis request")

// HighConfidenceCoverage is the coverage percentage needed for high confidence
const HighConfidenceCoverage = 60.0

// Run outcomes reported to metrics
const (
	outcomeSuccess   = "success"
	outcomeDegraded  = "degraded"
	outcomeTransient = "transient_failure"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

// Pipeline orchestrates one synthesis run per call. It holds no per-run
// state, so a single Pipeline may serve many concurrent runs.
type Pipeline struct {
	targets    TargetLoader
	priorities PriorityLookup
	invoker    Invoker
	persister  Persister // Optional
	metrics    *observability.Metrics
	config     *Config
	now        func() time.Time
	log        *slog.Logger
}

// Config holds pipeline configuration
type Config struct {
	Budget         core.SelectionBudget
	MaxArticles    int // Articles listed in the prompt
	TopTargets     int
	MaxPromptBytes int
	CoverageMatch  string
	ModelName      string
	MaxTokens      int32 // Output token cap, used for cost estimates
	Persist        bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Budget:         core.DefaultSelectionBudget(),
		MaxArticles:    40,
		TopTargets:     grouping.DefaultTopTargets,
		MaxPromptBytes: prompt.DefaultMaxBytes,
		CoverageMatch:  coverage.MatchWord,
		ModelName:      llm.DefaultModel,
		Persist:        true,
	}
}

// NewPipeline creates a new pipeline with all dependencies.
// targets, priorities, persister and metrics may be nil.
func NewPipeline(
	targets TargetLoader,
	priorities PriorityLookup,
	invoker Invoker,
	persister Persister,
	metrics *observability.Metrics,
	config *Config,
) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}

	return &Pipeline{
		targets:    targets,
		priorities: priorities,
		invoker:    invoker,
		persister:  persister,
		metrics:    metrics,
		config:     config,
		now:        time.Now,
		log:        logger.Get(),
	}
}

// RunOptions adjusts a single run
type RunOptions struct {
	SkipPersist bool
}

// Run executes stages 1 through 10 in order and persists the result.
// The only errors returned are an invalid request, a generator failure
// (llm.TransientServiceFailure or llm.GeneratorError) and cancellation.
func (p *Pipeline) Run(ctx context.Context, req core.SynthesisRequest, opts RunOptions) (*core.SynthesisResponse, error) {
	start := p.now()
	req.Normalize()
	if req.OrganizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidRequest)
	}

	runID := uuid.NewString()
	log := p.log.With("run_id", runID, "org", req.OrganizationID)
	log.Info("Starting synthesis run", "events", len(req.Events), "articles", len(req.Articles), "depth", req.Depth)

	// Step 1: Resolve monitoring targets
	var targets core.TargetSet
	if p.targets != nil {
		targets = p.targets.Load(ctx, req.OrganizationID)
	}

	// Step 2: Attach source URLs to events
	enricher := crossref.NewEnricher(req.Articles)
	events, enrichStats := enricher.Enrich(req.Events)
	p.metrics.Enrichment(enrichStats.ByStrategy, enrichStats.Missed)

	// Step 3: One frozen clock for every recency bucket in this run
	classifier := recency.NewClassifier(start)

	// Step 4: Category-balanced selection
	sel := selection.Select(events, req.OrganizationName, targets, p.config.Budget)
	log.Info("Selected events",
		"selected", len(sel.Events),
		"dropped", sel.Dropped,
		"organization", sel.Selected[core.CategoryOrganization],
		"competitor", sel.Selected[core.CategoryCompetitor],
		"stakeholder", sel.Selected[core.CategoryStakeholder],
		"other", sel.Selected[core.CategoryOther])

	// Step 5: Group articles by target
	var priorities *sources.Priorities
	if p.priorities != nil {
		priorities = p.priorities.For(req.OrganizationID)
	}
	groups := grouping.NewGrouper(p.config.TopTargets, priorities).Group(req.Articles)
	p.metrics.BlockedFiltered(groups.BlockedFiltered)

	// Step 6: Compose the prompt
	composed := prompt.NewComposer(p.config.MaxPromptBytes).Compose(prompt.Input{
		OrganizationID:   req.OrganizationID,
		OrganizationName: req.OrganizationName,
		Depth:            req.Depth,
		Focus:            req.Focus,
		Targets:          targets,
		Priorities:       priorities,
		Groups:           groups,
		Events:           eventItems(classifier, sel.Events),
		Articles:         articleItems(classifier, listedArticles(req.Articles, priorities, p.config.MaxArticles)),
	})
	if composed.Truncated {
		p.metrics.PromptTruncated()
		log.Warn("Prompt truncated to fit size limit", "omitted", composed.Omitted, "bytes", len(composed.Text))
	}
	estimate := cost.EstimateCall(p.config.ModelName, composed.Text, p.config.MaxTokens)
	log.Info("Composed prompt",
		"items", composed.Items,
		"bytes", len(composed.Text),
		"est_input_tokens", estimate.InputTokens,
		"est_cost_usd", estimate.TotalCost)

	// Step 7: Generate, retrying transient failures
	invocation, err := p.invoker.Invoke(ctx, composed.Text)
	if err != nil {
		p.finish(log, failureOutcome(err), start)
		return nil, fmt.Errorf("synthesis failed for %s: %w", req.OrganizationID, err)
	}

	// Step 8: Recover a structured result
	outcome := parser.Recover(invocation.Text)
	p.metrics.Recovery(outcome.Strategy, outcome.Degraded)
	if outcome.Degraded {
		log.Warn("Generator reply could not be parsed, returning degraded result", "reply_bytes", len(invocation.Text))
	}
	result := outcome.Result

	// Step 9: Backfill key development URLs
	devs, repairStats := enricher.Repair(result.KeyDevelopments)
	result.KeyDevelopments = devs
	p.metrics.Repaired(repairStats.Enriched)

	// Step 10: Coverage
	report := coverage.NewScorer(p.config.CoverageMatch).Score(result, targets)
	p.metrics.Coverage(report.Percentage)

	resp := &core.SynthesisResponse{
		Synthesis: result,
		Metadata: core.ResponseMetadata{
			RunID:            runID,
			Timestamp:        start.UTC(),
			EventCount:       len(req.Events),
			ArticleCount:     len(req.Articles),
			SelectedCount:    len(sel.Events),
			EnrichedCount:    enrichStats.Enriched,
			RepairedCount:    repairStats.Enriched,
			Confidence:       Confidence(outcome.Degraded, report.Percentage),
			RecoveryStrategy: outcome.Strategy,
			Attempts:         invocation.Attempts,
			PromptTruncated:  composed.Truncated,
			ModelUsed:        p.config.ModelName,
		},
		DiscoveryAlignment: report,
	}

	// A cancelled run is discarded whole, nothing is persisted
	if err := ctx.Err(); err != nil {
		p.finish(log, outcomeCancelled, start)
		return nil, fmt.Errorf("synthesis cancelled for %s: %w", req.OrganizationID, err)
	}

	if p.persister != nil && p.config.Persist && !opts.SkipPersist {
		rec := persistence.SynthesisRecord{
			OrganizationID:   req.OrganizationID,
			OrganizationName: req.OrganizationName,
			Response:         *resp,
			CreatedAt:        start.UTC(),
		}
		if err := p.persister.Persist(ctx, rec); err != nil {
			log.Error("Failed to persist synthesis, returning result anyway", "error", err)
		}
	}

	outcomeName := outcomeSuccess
	if outcome.Degraded {
		outcomeName = outcomeDegraded
	}
	p.finish(log, outcomeName, start)
	log.Info("Synthesis run complete",
		"confidence", resp.Metadata.Confidence,
		"coverage", report.Percentage,
		"developments", len(result.KeyDevelopments),
		"strategy", outcome.Strategy,
		"attempts", invocation.Attempts)

	return resp, nil
}

func (p *Pipeline) finish(log *slog.Logger, outcome string, start time.Time) {
	elapsed := p.now().Sub(start)
	p.metrics.RunFinished(outcome, elapsed)
	if outcome != outcomeSuccess && outcome != outcomeDegraded {
		log.Warn("Synthesis run ended without result", "outcome", outcome, "elapsed", elapsed)
	}
}

func failureOutcome(err error) string {
	var transient *llm.TransientServiceFailure
	switch {
	case errors.As(err, &transient):
		return outcomeTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCancelled
	}
	return outcomeFailed
}

// Confidence grades a run: high needs a structured result with at least
// HighConfidenceCoverage percent coverage, degraded results are always low.
func Confidence(degraded bool, coveragePct float64) string {
	switch {
	case degraded:
		return core.ConfidenceLow
	case coveragePct >= HighConfidenceCoverage:
		return core.ConfidenceHigh
	}
	return core.ConfidenceMedium
}

func eventItems(c *recency.Classifier, events []core.Event) []prompt.EventItem {
	buckets := c.Events(events)
	items := make([]prompt.EventItem, len(events))
	for i, ev := range events {
		items[i] = prompt.EventItem{Event: ev, Recency: buckets[i]}
	}
	return items
}

func articleItems(c *recency.Classifier, articles []core.Article) []prompt.ArticleItem {
	buckets := c.Articles(articles)
	items := make([]prompt.ArticleItem, len(articles))
	for i, a := range articles {
		items[i] = prompt.ArticleItem{Article: a, Recency: buckets[i]}
	}
	return items
}

// listedArticles picks the strongest non-blocked articles for the listing
func listedArticles(articles []core.Article, priorities *sources.Priorities, limit int) []core.Article {
	listed := make([]core.Article, 0, len(articles))
	for _, a := range articles {
		if !priorities.IsBlocked(a.Source) {
			listed = append(listed, a)
		}
	}
	grouping.SortArticles(listed)
	if limit >= 0 && len(listed) > limit {
		listed = listed[:limit]
	}
	return listed
}
