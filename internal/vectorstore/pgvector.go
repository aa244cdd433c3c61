package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PgVectorIndex stores search records in postgres with a pgvector embedding column
type PgVectorIndex struct {
	db *sql.DB
}

// NewPgVectorIndex creates a pgvector-backed index
func NewPgVectorIndex(db *sql.DB) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

// Name identifies the index
func (p *PgVectorIndex) Name() string { return "pgvector" }

// Index upserts a record. Records without an embedding are stored with a NULL vector.
func (p *PgVectorIndex) Index(ctx context.Context, rec SearchRecord) error {
	query, args, err := upsertQuery(rec)
	if err != nil {
		return fmt.Errorf("failed to build search record insert: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to store search record: %w", err)
	}
	return nil
}

func upsertQuery(rec SearchRecord) (string, []interface{}, error) {
	var embedding interface{}
	if len(rec.Embedding) > 0 {
		embedding = sq.Expr("?::vector", formatVector(rec.Embedding))
	}

	return psql.Insert("search_records").
		Columns("id", "organization_id", "run_id", "title", "body", "embedding", "created_at").
		Values(rec.ID, rec.OrganizationID, rec.RunID, rec.Title, rec.Body, embedding, rec.CreatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body, embedding = EXCLUDED.embedding").
		ToSql()
}

// Search finds records similar to the query embedding.
// Uses cosine distance (<=> operator) and returns results ordered by similarity
func (p *PgVectorIndex) Search(ctx context.Context, query SearchQuery) ([]SearchResult, error) {
	if len(query.Embedding) == 0 {
		return nil, fmt.Errorf("vector search requires a query embedding")
	}

	sqlQuery, args, err := searchQuery(query.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.RecordID, &r.OrganizationID, &r.Title, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}

func searchQuery(query SearchQuery) (string, []interface{}, error) {
	vec := formatVector(query.Embedding)

	b := psql.Select("id", "organization_id", "title").
		Column(sq.Expr("1 - (embedding <=> ?::vector) AS similarity", vec)).
		From("search_records").
		Where("embedding IS NOT NULL").
		Where(sq.Expr("1 - (embedding <=> ?::vector) >= ?", vec, query.SimilarityThreshold))

	if query.OrganizationID != "" {
		b = b.Where(sq.Eq{"organization_id": query.OrganizationID})
	}

	return b.OrderByClause("embedding <=> ?::vector", vec).
		Limit(uint64(query.Limit)).
		ToSql()
}

// formatVector converts []float64 to PostgreSQL vector format
// Example: [0.1, 0.2, 0.3] -> "[0.1,0.2,0.3]"
func formatVector(embedding []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, val := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}
