package persistence

import (
	"embed"
	"errors"
	"fmt"
	"signalbrief/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationStatus represents the schema version after a migration command
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Applied bool // False when there was nothing to apply
}

// newMigrator wires the embedded migrations to the database
func newMigrator(db *DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db.db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// Migrate applies all pending migrations and returns the resulting version
func Migrate(db *DB) (MigrationStatus, error) {
	log := logger.Get()
	log.Info("Starting database migration")

	m, err := newMigrator(db)
	if err != nil {
		return MigrationStatus{}, err
	}

	status := MigrationStatus{Applied: true}
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("failed to run migrations: %w", err)
		}
		status.Applied = false
		log.Info("No pending migrations")
	}

	status.Version, status.Dirty, err = m.Version()
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Info("Migration completed", "version", status.Version, "dirty", status.Dirty)
	return status, nil
}

// Version reports the current schema version. Version 0 means no migration has run.
func Version(db *DB) (MigrationStatus, error) {
	m, err := newMigrator(db)
	if err != nil {
		return MigrationStatus{}, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("failed to get migration version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

// MigrationVersions lists the versions embedded in the binary, ascending
func MigrationVersions() ([]uint, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source: %w", err)
	}
	defer source.Close()

	var versions []uint
	version, err := source.First()
	for err == nil {
		versions = append(versions, version)
		version, err = source.Next(version)
	}
	return versions, nil
}
