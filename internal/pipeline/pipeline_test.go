package pipeline

import (
	"context"
	"errors"
	"fmt"
	"signalbrief/internal/core"
	"signalbrief/internal/llm"
	"signalbrief/internal/observability"
	"signalbrief/internal/persistence"
	"signalbrief/internal/sources"
	"strings"
	"testing"
	"time"
)

const briefReply = `{
  "executive_summary": "Acme expanded storage capacity while regulators stayed quiet.",
  "key_developments": [
    {"category": "competitor", "event": "Acme opens plant", "implication": "Price pressure", "source_title": "Acme opens gigafactory", "outlet": "Reuters", "url": "see article", "recency": "today", "entity": "Acme"}
  ],
  "strategic_implications": "Watch pricing.",
  "watching_closely": ["Acme hiring"]
}`

// MockGenerator replays scripted statuses, then returns reply
type MockGenerator struct {
	statuses  []int
	reply     string
	callCount int
	prompts   []string
	onCall    func()
}

func (m *MockGenerator) GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error) {
	i := m.callCount
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	if m.onCall != nil {
		m.onCall()
	}
	if i < len(m.statuses) && m.statuses[i] != 0 {
		return "", fmt.Errorf("failed to generate text: %w", &llm.StatusError{Code: m.statuses[i], Message: "scripted"})
	}
	return m.reply, nil
}

// MockTargets returns a fixed target set
type MockTargets struct {
	set core.TargetSet
}

func (m *MockTargets) Load(ctx context.Context, orgID string) core.TargetSet {
	return m.set
}

// MockPersister records persisted runs
type MockPersister struct {
	records []persistence.SynthesisRecord
	err     error
}

func (m *MockPersister) Persist(ctx context.Context, rec persistence.SynthesisRecord) error {
	m.records = append(m.records, rec)
	return m.err
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func newTestPipeline(t *testing.T, gen llm.Generator, targets core.TargetSet, persister Persister, priorities PriorityLookup) *Pipeline {
	t.Helper()
	b := NewBuilder().
		WithGenerator(gen).
		WithTargets(&MockTargets{set: targets}).
		WithMetrics(observability.NewMetrics()).
		WithRetryPolicy(2, time.Second, 0).
		WithSleep(noSleep)
	if persister != nil {
		b = b.WithPersister(persister)
	}
	if priorities != nil {
		b = b.WithPriorities(priorities)
	}
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return p
}

func testRequest() core.SynthesisRequest {
	return core.SynthesisRequest{
		OrganizationID:   "org-42",
		OrganizationName: "Initech",
		Events: []core.Event{
			{Type: "launch", Entity: "Acme", Description: "Acme opens plant", Source: "Reuters", ArticleTitle: "Acme opens gigafactory", Date: "2 days ago"},
			{Type: "policy", Entity: "Regulator", Description: "New grid rules"},
			{Type: "hire", Entity: "Initech", Description: "Initech hires CTO"},
			{Type: "deal", Entity: "Globex", Description: "Globex signs deal"},
			{Type: "misc", Entity: "Someone", Description: "Something else"},
		},
		Articles: []core.Article{
			{ID: "a1", Title: "Acme opens gigafactory", URL: "https://www.reuters.com/acme", Source: "Reuters", MatchedTargets: []string{"Acme"}, SignalStrength: core.SignalStrong},
		},
	}
}

func TestRun_NoTargetsStillSucceeds(t *testing.T) {
	gen := &MockGenerator{reply: briefReply}
	p := newTestPipeline(t, gen, core.TargetSet{}, nil, nil)

	resp, err := p.Run(context.Background(), testRequest(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if resp.DiscoveryAlignment.Total != 0 || resp.DiscoveryAlignment.Percentage != 0 {
		t.Errorf("Expected empty coverage, got %+v", resp.DiscoveryAlignment)
	}
	if resp.Metadata.SelectedCount != 5 {
		t.Errorf("Expected all 5 events selected, got %d", resp.Metadata.SelectedCount)
	}
	if resp.Metadata.Confidence != core.ConfidenceMedium {
		t.Errorf("Expected medium confidence, got %q", resp.Metadata.Confidence)
	}
	if resp.Metadata.RunID == "" {
		t.Error("Expected a run ID")
	}
}

func TestRun_RetriesOverloadedGenerator(t *testing.T) {
	gen := &MockGenerator{statuses: []int{529, 529, 0}, reply: briefReply}
	p := newTestPipeline(t, gen, core.TargetSet{Competitors: []string{"Acme"}}, nil, nil)

	resp, err := p.Run(context.Background(), testRequest(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if resp.Metadata.Attempts != 3 || gen.callCount != 3 {
		t.Errorf("Expected 3 attempts, got %d (calls %d)", resp.Metadata.Attempts, gen.callCount)
	}
	if resp.Synthesis.Degraded {
		t.Error("Expected structured result")
	}
	if resp.Metadata.RecoveryStrategy != "direct" {
		t.Errorf("Expected direct recovery, got %q", resp.Metadata.RecoveryStrategy)
	}
	if resp.DiscoveryAlignment.Percentage != 100 || resp.Metadata.Confidence != core.ConfidenceHigh {
		t.Errorf("Expected full coverage and high confidence, got %.1f %q", resp.DiscoveryAlignment.Percentage, resp.Metadata.Confidence)
	}
}

func TestRun_TransientFailureIsReturned(t *testing.T) {
	gen := &MockGenerator{statuses: []int{503, 503, 503}}
	persister := &MockPersister{}
	p := newTestPipeline(t, gen, core.TargetSet{}, persister, nil)

	resp, err := p.Run(context.Background(), testRequest(), RunOptions{})
	if resp != nil {
		t.Error("Expected no response on failure")
	}
	var failure *llm.TransientServiceFailure
	if !errors.As(err, &failure) {
		t.Fatalf("Expected TransientServiceFailure, got %v", err)
	}
	if failure.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", failure.Attempts)
	}
	if len(persister.records) != 0 {
		t.Error("Failed runs must not be persisted")
	}
}

func TestRun_NonTransientFailure(t *testing.T) {
	gen := &MockGenerator{statuses: []int{401}}
	p := newTestPipeline(t, gen, core.TargetSet{}, nil, nil)

	_, err := p.Run(context.Background(), testRequest(), RunOptions{})
	var genErr *llm.GeneratorError
	if !errors.As(err, &genErr) {
		t.Fatalf("Expected GeneratorError, got %v", err)
	}
	if gen.callCount != 1 {
		t.Errorf("Expected 1 call, got %d", gen.callCount)
	}
}

func TestRun_DegradedReply(t *testing.T) {
	gen := &MockGenerator{reply: "I could not produce JSON today, sorry."}
	persister := &MockPersister{}
	p := newTestPipeline(t, gen, core.TargetSet{Competitors: []string{"Acme"}}, persister, nil)

	resp, err := p.Run(context.Background(), testRequest(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !resp.Synthesis.Degraded || resp.Metadata.RecoveryStrategy != "degraded" {
		t.Errorf("Expected degraded result, got %+v", resp.Metadata)
	}
	if resp.Synthesis.ExecutiveSummary != gen.reply {
		t.Errorf("Degraded summary should carry the raw reply, got %q", resp.Synthesis.ExecutiveSummary)
	}
	if resp.Metadata.Confidence != core.ConfidenceLow {
		t.Errorf("Expected low confidence, got %q", resp.Metadata.Confidence)
	}
	if len(persister.records) != 1 {
		t.Error("Degraded results are still persisted")
	}
}

func TestRun_EmptyReplyDegrades(t *testing.T) {
	gen := &MockGenerator{reply: ""}
	p := newTestPipeline(t, gen, core.TargetSet{Competitors: []string{"Acme"}}, &MockPersister{}, nil)

	resp, err := p.Run(context.Background(), testRequest(), RunOptions{})
	if err != nil {
		t.Fatalf("An empty reply should degrade, not fail: %v", err)
	}
	if !resp.Synthesis.Degraded || resp.Metadata.Confidence != core.ConfidenceLow {
		t.Errorf("Expected degraded low-confidence result, got %+v", resp.Metadata)
	}
	if len(resp.Synthesis.KeyDevelopments) != 0 {
		t.Errorf("Expected no developments, got %d", len(resp.Synthesis.KeyDevelopments))
	}
}

func TestRun_EnrichesEventsAndRepairsURLs(t *testing.T) {
	gen := &MockGenerator{reply: briefReply}
	p := newTestPipeline(t, gen, core.TargetSet{}, nil, nil)

	resp, err := p.Run(context.Background(), testRequest(), RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if resp.Metadata.EnrichedCount != 1 {
		t.Errorf("Expected 1 enriched event, got %d", resp.Metadata.EnrichedCount)
	}
	if !strings.Contains(gen.prompts[0], "https://www.reuters.com/acme") {
		t.Error("Prompt should carry the enriched event URL")
	}
	if resp.Metadata.RepairedCount != 1 {
		t.Errorf("Expected 1 repaired development, got %d", resp.Metadata.RepairedCount)
	}
	if got := resp.Synthesis.KeyDevelopments[0].URL; got != "https://www.reuters.com/acme" {
		t.Errorf("Expected repaired URL, got %q", got)
	}
}

func TestRun_PersistenceFailureIsNotFatal(t *testing.T) {
	gen := &MockGenerator{reply: briefReply}
	persister := &MockPersister{err: errors.New("database down")}
	p := newTestPipeline(t, gen, core.TargetSet{}, persister, nil)

	resp, err := p.Run(context.Background(), testRequest(), RunOptions{})
	if err != nil {
		t.Fatalf("Persistence failure must not fail the run: %v", err)
	}
	if resp == nil || len(persister.records) != 1 {
		t.Fatal("Expected a response and one persistence attempt")
	}
	rec := persister.records[0]
	if rec.OrganizationID != "org-42" || rec.Response.Metadata.RunID != resp.Metadata.RunID {
		t.Errorf("Unexpected record %+v", rec)
	}
}

func TestRun_SkipPersist(t *testing.T) {
	persister := &MockPersister{}
	p := newTestPipeline(t, &MockGenerator{reply: briefReply}, core.TargetSet{}, persister, nil)

	if _, err := p.Run(context.Background(), testRequest(), RunOptions{SkipPersist: true}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(persister.records) != 0 {
		t.Error("SkipPersist should not persist")
	}
}

func TestRun_CancelledRunIsDiscarded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &MockGenerator{reply: briefReply, onCall: cancel}
	persister := &MockPersister{}
	p := newTestPipeline(t, gen, core.TargetSet{}, persister, nil)

	_, err := p.Run(ctx, testRequest(), RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(persister.records) != 0 {
		t.Error("Cancelled runs must not be persisted")
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	gen := &MockGenerator{reply: briefReply}
	p := newTestPipeline(t, gen, core.TargetSet{}, nil, nil)

	_, err := p.Run(context.Background(), core.SynthesisRequest{}, RunOptions{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Expected ErrInvalidRequest, got %v", err)
	}
	if gen.callCount != 0 {
		t.Error("Generator should not be called for invalid requests")
	}
}

func TestRun_BlockedSourcesLeaveThePrompt(t *testing.T) {
	file, err := sources.Parse([]byte("organizations:\n  org-42:\n    blocked: [Content Farm]\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	gen := &MockGenerator{reply: briefReply}
	p := newTestPipeline(t, gen, core.TargetSet{Competitors: []string{"Acme"}}, nil, file)

	req := testRequest()
	req.Articles = append(req.Articles, core.Article{
		ID: "spam", Title: "Acme spam listicle", URL: "https://farm.example/acme", Source: "Content Farm",
		MatchedTargets: []string{"Acme"}, SignalStrength: core.SignalStrong,
	})

	if _, err := p.Run(context.Background(), req, RunOptions{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.Contains(gen.prompts[0], "Acme spam listicle") {
		t.Error("Blocked source article leaked into the prompt")
	}
	if !strings.Contains(gen.prompts[0], "Acme opens gigafactory") {
		t.Error("Unblocked article missing from the prompt")
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		degraded bool
		pct      float64
		want     string
	}{
		{false, 100, core.ConfidenceHigh},
		{false, 60, core.ConfidenceHigh},
		{false, 59.9, core.ConfidenceMedium},
		{false, 0, core.ConfidenceMedium},
		{true, 100, core.ConfidenceLow},
	}
	for _, tt := range tests {
		if got := Confidence(tt.degraded, tt.pct); got != tt.want {
			t.Errorf("Confidence(%v, %.1f) = %q, want %q", tt.degraded, tt.pct, got, tt.want)
		}
	}
}

func TestBuild_RequiresGenerator(t *testing.T) {
	if _, err := NewBuilder().Build(); err == nil {
		t.Error("Expected error without a generator")
	}
}
