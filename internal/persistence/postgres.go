package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"signalbrief/internal/config"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq" // Postgres driver
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DB wraps the postgres connection pool
type DB struct {
	db *sql.DB
}

// Open creates a new PostgreSQL connection pool and verifies it
func Open(ctx context.Context, cfg config.Database) (*DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required. Set DATABASE_URL environment variable or database.url in config file")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// SQL exposes the pool for stores in other packages
func (d *DB) SQL() *sql.DB { return d.db }

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// PostgresResultStore writes synthesis_results rows
type PostgresResultStore struct {
	db *sql.DB
}

// NewPostgresResultStore wraps an open connection
func NewPostgresResultStore(db *sql.DB) *PostgresResultStore {
	return &PostgresResultStore{db: db}
}

// SaveResult implements ResultStore
func (r *PostgresResultStore) SaveResult(ctx context.Context, rec SynthesisRecord) error {
	query, args, err := insertResultQuery(rec)
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert synthesis result: %w", err)
	}
	return nil
}

func insertResultQuery(rec SynthesisRecord) (string, []interface{}, error) {
	resultJSON, err := json.Marshal(rec.Response.Synthesis)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	coverageJSON, err := json.Marshal(rec.Response.DiscoveryAlignment)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal coverage: %w", err)
	}
	metadataJSON, err := json.Marshal(rec.Response.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	return psql.Insert("synthesis_results").
		Columns(
			"id", "run_id", "organization_id", "organization_name",
			"result", "coverage", "metadata",
			"degraded", "confidence", "coverage_percentage", "created_at",
		).
		Values(
			rec.ID, rec.Response.Metadata.RunID, rec.OrganizationID, rec.OrganizationName,
			resultJSON, coverageJSON, metadataJSON,
			rec.Response.Synthesis.Degraded, rec.Response.Metadata.Confidence,
			rec.Response.DiscoveryAlignment.Percentage, rec.CreatedAt,
		).
		ToSql()
}
