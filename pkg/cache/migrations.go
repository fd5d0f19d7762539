package cache

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// migration is one schema change with timestamp-based versioning.
type migration struct {
	Version     int64 // YYYYMMDDHHmmss
	Description string
	Up          func(*sql.Tx) error
}

var migrations = []migration{
	{
		Version:     20250115000001,
		Description: "Create describes table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS describes (
					path TEXT NOT NULL,
					mtime_ns INTEGER NOT NULL,
					size INTEGER NOT NULL,
					linker_version TEXT NOT NULL,
					payload TEXT NOT NULL,
					created_at_ns INTEGER NOT NULL,
					PRIMARY KEY (path, mtime_ns, size, linker_version)
				)
			`)
			return err
		},
	},
	{
		Version:     20250115000002,
		Description: "Index describes by age for pruning",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE INDEX IF NOT EXISTS idx_describes_created_at
				ON describes (created_at_ns)
			`)
			return err
		},
	},
}

type migrationRunner struct {
	db *sqlx.DB
}

func newMigrationRunner(db *sqlx.DB) *migrationRunner {
	return &migrationRunner{db: db}
}

// run executes all pending migrations in timestamp order.
func (r *migrationRunner) run(ctx context.Context, migrations []migration) error {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	sorted := make([]migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if !applied[m.Version] {
			if err := r.applyMigration(ctx, m); err != nil {
				return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
			}
		}
	}
	return nil
}

func (r *migrationRunner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL,
			description TEXT
		)
	`)
	return errors.Wrap(err, "failed to create schema_migrations table")
}

func (r *migrationRunner) getAppliedMigrations(ctx context.Context) (map[int64]bool, error) {
	var versions []int64
	if err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, errors.Wrap(err, "failed to get applied migrations")
	}
	applied := make(map[int64]bool)
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

func (r *migrationRunner) applyMigration(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := m.Up(tx.Tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now(), m.Description); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}
	return tx.Commit()
}
