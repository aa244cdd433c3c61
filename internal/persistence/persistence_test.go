package persistence

import (
	"context"
	"errors"
	"signalbrief/internal/core"
	"signalbrief/internal/vectorstore"
	"strings"
	"testing"
	"time"
)

// MockResultStore records saved results
type MockResultStore struct {
	saved []SynthesisRecord
	err   error
}

func (m *MockResultStore) SaveResult(ctx context.Context, rec SynthesisRecord) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rec)
	return nil
}

// MockEmbedder returns a fixed vector
type MockEmbedder struct {
	vector []float64
	err    error
	texts  []string
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	m.texts = append(m.texts, text)
	return m.vector, m.err
}

// MockIndex records indexed search records
type MockIndex struct {
	name    string
	records []vectorstore.SearchRecord
	err     error
}

func (m *MockIndex) Name() string { return m.name }

func (m *MockIndex) Index(ctx context.Context, rec vectorstore.SearchRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MockIndex) Search(ctx context.Context, q vectorstore.SearchQuery) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func sampleRecord() SynthesisRecord {
	return SynthesisRecord{
		OrganizationID:   "org-42",
		OrganizationName: "Northwind",
		CreatedAt:        time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC),
		Response: core.SynthesisResponse{
			Synthesis: core.SynthesisResult{
				ExecutiveSummary: "Acme expanded.",
				KeyDevelopments:  []core.KeyDevelopment{{Event: "Acme opens plant"}},
			},
			Metadata:           core.ResponseMetadata{RunID: "run-1", Confidence: core.ConfidenceHigh},
			DiscoveryAlignment: core.CoverageReport{Percentage: 75},
		},
	}
}

func TestSink_PersistsEverywhere(t *testing.T) {
	results := &MockResultStore{}
	embedder := &MockEmbedder{vector: []float64{0.1, 0.2}}
	index := &MockIndex{name: "mock"}

	sink := NewSink(results, embedder, nil, index)
	if err := sink.Persist(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	if len(results.saved) != 1 || results.saved[0].ID == "" {
		t.Fatalf("Expected one saved result with generated ID, got %+v", results.saved)
	}
	if len(index.records) != 1 {
		t.Fatalf("Expected one search record, got %d", len(index.records))
	}

	rec := index.records[0]
	if rec.Title != "Executive brief - Northwind - 2024-08-05" {
		t.Errorf("Unexpected title %q", rec.Title)
	}
	if !strings.Contains(rec.Body, "Acme opens plant") {
		t.Error("Search body should be the rendered brief")
	}
	if len(rec.Embedding) != 2 || rec.RunID != "run-1" {
		t.Errorf("Unexpected search record %+v", rec)
	}
	if len(embedder.texts) != 1 || embedder.texts[0] != rec.Body {
		t.Error("Embedding should be computed from the body")
	}
}

func TestSink_FailuresAreJoinedAndIndependent(t *testing.T) {
	results := &MockResultStore{err: errors.New("db down")}
	failing := &MockIndex{name: "pgvector", err: errors.New("no extension")}
	working := &MockIndex{name: "bleve"}

	err := NewSink(results, nil, nil, failing, working).Persist(context.Background(), sampleRecord())
	if err == nil {
		t.Fatal("Expected joined error")
	}
	if !strings.Contains(err.Error(), "db down") || !strings.Contains(err.Error(), "pgvector: no extension") {
		t.Errorf("Error should mention every failure: %v", err)
	}
	if len(working.records) != 1 {
		t.Error("A failing target must not stop the others")
	}
}

func TestSink_EmbeddingFailureStoresWithoutVector(t *testing.T) {
	index := &MockIndex{name: "mock"}
	embedder := &MockEmbedder{err: errors.New("quota")}

	if err := NewSink(nil, embedder, nil, index).Persist(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Embedding failure should not fail persistence: %v", err)
	}
	if len(index.records) != 1 || index.records[0].Embedding != nil {
		t.Errorf("Expected record without embedding, got %+v", index.records)
	}
}

func TestSink_CancelledContextWritesNothing(t *testing.T) {
	results := &MockResultStore{}
	index := &MockIndex{name: "mock"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSink(results, nil, nil, index).Persist(ctx, sampleRecord())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(results.saved) != 0 || len(index.records) != 0 {
		t.Error("Nothing should be written after cancellation")
	}
}

func TestSink_BleveRoundTrip(t *testing.T) {
	idx, err := vectorstore.NewMemBleveIndex()
	if err != nil {
		t.Fatalf("NewMemBleveIndex failed: %v", err)
	}
	defer idx.Close()

	if err := NewSink(nil, nil, nil, idx).Persist(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	hits, err := idx.Search(context.Background(), vectorstore.SearchQuery{Text: "acme", OrganizationID: "org-42"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("Expected the persisted brief to be searchable, got %d hits", len(hits))
	}
}

func TestInsertResultQuery(t *testing.T) {
	rec := sampleRecord()
	rec.ID = "11111111-1111-1111-1111-111111111111"

	query, args, err := insertResultQuery(rec)
	if err != nil {
		t.Fatalf("insertResultQuery failed: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO synthesis_results") || !strings.Contains(query, "$11") {
		t.Errorf("Unexpected query: %s", query)
	}
	if len(args) != 11 {
		t.Fatalf("Expected 11 args, got %d", len(args))
	}
	if args[1] != "run-1" || args[8] != core.ConfidenceHigh || args[9] != 75.0 {
		t.Errorf("Unexpected args %v", args)
	}
	if !strings.Contains(string(args[4].([]byte)), `"executive_summary":"Acme expanded."`) {
		t.Errorf("Result column should hold the JSON result: %s", args[4])
	}
}

func TestMigrationVersions(t *testing.T) {
	versions, err := MigrationVersions()
	if err != nil {
		t.Fatalf("MigrationVersions failed: %v", err)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
		t.Errorf("Expected embedded versions [1 2 3], got %v", versions)
	}
}
