package vectorstore

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve"
)

// BleveIndex is a local full-text index over record titles and bodies
type BleveIndex struct {
	index bleve.Index
}

// NewMemBleveIndex creates an in-memory index
func NewMemBleveIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// OpenBleveIndex opens the index at path, creating it when missing
func OpenBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bleve index %s: %w", path, err)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index %s: %w", path, err)
	}
	return &BleveIndex{index: index}, nil
}

// Name identifies the index
func (b *BleveIndex) Name() string { return "bleve" }

// Index adds or replaces a record. Embeddings are not indexed.
func (b *BleveIndex) Index(ctx context.Context, rec SearchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := map[string]interface{}{
		"organization_id": rec.OrganizationID,
		"run_id":          rec.RunID,
		"title":           rec.Title,
		"body":            rec.Body,
		"created_at":      rec.CreatedAt,
	}
	if err := b.index.Index(rec.ID, doc); err != nil {
		return fmt.Errorf("failed to index record %s: %w", rec.ID, err)
	}
	return nil
}

// Search runs a match query over all fields. Results from other
// organizations are dropped when OrganizationID is set.
func (b *BleveIndex) Search(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if query.Text == "" {
		return nil, fmt.Errorf("full-text search requires query text")
	}
	query = query.withDefaults()

	size := query.Limit
	if query.OrganizationID != "" {
		size = query.Limit * 3
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query.Text), size, 0, false)
	req.Fields = []string{"organization_id", "title"}

	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		org, _ := hit.Fields["organization_id"].(string)
		if query.OrganizationID != "" && org != query.OrganizationID {
			continue
		}
		title, _ := hit.Fields["title"].(string)
		results = append(results, SearchResult{
			RecordID:       hit.ID,
			OrganizationID: org,
			Title:          title,
			Score:          hit.Score,
		})
		if len(results) == query.Limit {
			break
		}
	}
	return results, nil
}

// Count returns the number of indexed records
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close releases the index
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
