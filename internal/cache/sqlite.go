package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a durable Cache backed by a single SQLite table. Entries
// survive restarts and are invalidated only by explicit operator action
// (Clear).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a cache database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err == nil {
		db.Exec("PRAGMA journal_mode = WAL")
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memo (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (c *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx, "SELECT value FROM memo WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c *SQLite) Put(ctx context.Context, key, value string) error {
	// INSERT OR REPLACE: last writer wins, which is safe because values
	// are deterministic functions of their keys.
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO memo (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// Clear drops every entry. Operator-initiated invalidation only.
func (c *SQLite) Clear(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM memo")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (c *SQLite) Close() error {
	return c.db.Close()
}
