// Package cache persists describe payloads in SQLite so unchanged units
// skip their describe subprocess on the next link. Entries are keyed by
// entrypoint path, mtime, size, and linker version: a rebuilt unit or an
// upgraded linker naturally misses.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ld-agent/ld-agent-go/pkg/logger"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
	"github.com/ld-agent/ld-agent-go/pkg/version"
)

const fileName = "describe-cache.db"

// DefaultPath returns where the cache database lives unless configured
// otherwise.
func DefaultPath() (string, error) {
	if basePath := os.Getenv("LDAGENT_BASE_PATH"); basePath != "" {
		return filepath.Join(basePath, fileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".ldagent", fileName), nil
}

// Cache is a SQLite-backed describe cache. It satisfies the loader's
// DescribeCache interface.
type Cache struct {
	db            *sqlx.DB
	linkerVersion string
}

// Open opens or creates the cache database, configures WAL mode, and
// applies the schema.
func Open(ctx context.Context, dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping cache database")
	}
	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure cache database")
	}
	if err := newMigrationRunner(db).run(ctx, migrations); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, linkerVersion: version.Version}, nil
}

// configure sets up SQLite pragmas for WAL mode.
func configure(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=1000",
		"PRAGMA temp_store=memory",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled. Current mode: %s", journalMode)
	}
	return nil
}

// Get returns the cached payload for an unchanged entrypoint. Read
// problems are logged and treated as misses; the loader just describes
// the unit again.
func (c *Cache) Get(ctx context.Context, path string, mtime time.Time, size int64) (*captypes.RawDeclarations, bool) {
	var payload string
	err := c.db.GetContext(ctx, &payload,
		"SELECT payload FROM describes WHERE path = ? AND mtime_ns = ? AND size = ? AND linker_version = ?",
		path, mtime.UnixNano(), size, c.linkerVersion)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.G(ctx).WithError(err).Debug("describe cache read failed")
		}
		return nil, false
	}

	var raw captypes.RawDeclarations
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		logger.G(ctx).WithField("path", path).WithError(err).Debug("describe cache entry is corrupt, ignoring")
		return nil, false
	}
	return &raw, true
}

// Put stores a describe payload for the given entrypoint fingerprint.
func (c *Cache) Put(ctx context.Context, path string, mtime time.Time, size int64, raw *captypes.RawDeclarations) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "failed to encode describe payload")
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO describes (path, mtime_ns, size, linker_version, payload, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)`,
		path, mtime.UnixNano(), size, c.linkerVersion, string(payload), time.Now().UnixNano())
	return errors.Wrap(err, "failed to write describe cache entry")
}

// Prune removes entries older than the given age along with everything
// written by other linker versions. It returns how many rows went away.
func (c *Cache) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM describes WHERE created_at_ns < ? OR linker_version != ?",
		cutoff, c.linkerVersion)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune describe cache")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count pruned cache entries")
	}
	return n, nil
}

// Stats summarizes cache occupancy.
type Stats struct {
	Entries int `json:"entries"`
	Stale   int `json:"stale"`
}

// Stats counts entries for the running linker version and stale ones
// left behind by other versions.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := c.db.GetContext(ctx, &s.Entries,
		"SELECT COUNT(*) FROM describes WHERE linker_version = ?", c.linkerVersion); err != nil {
		return s, errors.Wrap(err, "failed to count cache entries")
	}
	if err := c.db.GetContext(ctx, &s.Stale,
		"SELECT COUNT(*) FROM describes WHERE linker_version != ?", c.linkerVersion); err != nil {
		return s, errors.Wrap(err, "failed to count stale cache entries")
	}
	return s, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
