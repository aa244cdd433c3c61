package targets

import (
	"context"
	"database/sql"
	"fmt"
	"signalbrief/internal/core"

	sq "github.com/Masterminds/squirrel"
)

// PostgresProfileStore reads canonical targets from the organization_targets table.
type PostgresProfileStore struct {
	db *sql.DB
}

// NewPostgresProfileStore wraps an open connection
func NewPostgresProfileStore(db *sql.DB) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// profileQuery builds the lookup for one organization, in profile order.
func profileQuery(orgID string) (string, []interface{}, error) {
	return psql.
		Select("kind", "name").
		From("organization_targets").
		Where(sq.Eq{"organization_id": orgID}).
		OrderBy("kind", "position ASC", "name ASC").
		ToSql()
}

// ProfileTargets implements ProfileStore
func (s *PostgresProfileStore) ProfileTargets(ctx context.Context, orgID string) (core.TargetSet, error) {
	query, args, err := profileQuery(orgID)
	if err != nil {
		return core.TargetSet{}, fmt.Errorf("failed to build profile query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return core.TargetSet{}, fmt.Errorf("failed to query profile targets: %w", err)
	}
	defer rows.Close()

	var set core.TargetSet
	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			return core.TargetSet{}, fmt.Errorf("failed to scan profile target: %w", err)
		}
		set = appendKind(set, core.TargetKind(kind), name)
	}

	if err := rows.Err(); err != nil {
		return core.TargetSet{}, fmt.Errorf("error iterating profile targets: %w", err)
	}

	return set, nil
}

// SaveProfileTargets replaces an organization's canonical targets.
func (s *PostgresProfileStore) SaveProfileTargets(ctx context.Context, orgID string, set core.TargetSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, args, err := psql.Delete("organization_targets").Where(sq.Eq{"organization_id": orgID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("failed to clear profile targets: %w", err)
	}

	if set.Total() > 0 {
		insert := psql.Insert("organization_targets").Columns("organization_id", "kind", "name", "position")
		for _, kind := range core.TargetKinds {
			for i, name := range Dedupe(set.ByKind(kind)) {
				insert = insert.Values(orgID, string(kind), name, i)
			}
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert profile targets: %w", err)
		}
	}

	return tx.Commit()
}

func appendKind(set core.TargetSet, kind core.TargetKind, name string) core.TargetSet {
	switch kind {
	case core.TargetCompetitor:
		set.Competitors = append(set.Competitors, name)
	case core.TargetStakeholder:
		set.Stakeholders = append(set.Stakeholders, name)
	case core.TargetTopic:
		set.Topics = append(set.Topics, name)
	}
	return set
}
