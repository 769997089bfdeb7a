package objdir

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is an optional SQLite-backed record of past builds, so repeat
// compiles of unchanged executables skip even the platform lookup. Use
// ":memory:" for tests.
type Cache struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenCache opens (or creates) the cache database.
func OpenCache(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	c := &Cache{db: db, logger: logger.With("component", "build-cache")}
	if err := c.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database.
func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS builds (
		project    TEXT NOT NULL,
		folder     TEXT NOT NULL,
		name       TEXT NOT NULL,
		digest     TEXT NOT NULL,
		object_id  TEXT NOT NULL,
		class      TEXT NOT NULL DEFAULT 'applet',
		created_at TEXT NOT NULL,
		PRIMARY KEY (project, folder, name, digest)
	)`)
	if err != nil {
		return fmt.Errorf("migrate cache: %w", err)
	}
	return nil
}

// Get looks up a prior build of (name, digest) in the project and folder.
// Returns "" when there is no entry.
func (c *Cache) Get(ctx context.Context, project, folder, name, digest string) (string, error) {
	var id string
	err := c.db.QueryRowContext(ctx,
		`SELECT object_id FROM builds WHERE project=? AND folder=? AND name=? AND digest=?`,
		project, folder, name, digest).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cache get: %w", err)
	}
	return id, nil
}

// Put records a build result.
func (c *Cache) Put(ctx context.Context, project, folder, name, digest, id, class string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO builds (project, folder, name, digest, object_id, class, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project, folder, name, digest, id, class, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	c.logger.Debug("cached build", "name", name, "id", id)
	return nil
}

// Invalidate drops every entry for a name in the project and folder.
func (c *Cache) Invalidate(ctx context.Context, project, folder, name string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM builds WHERE project=? AND folder=? AND name=?`, project, folder, name)
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
