// Package index implements the semantic schema index: a SQLite-backed
// store of table-schema documents queryable by exact table name or by
// free-text similarity over embeddings.
//
// Reads are safe for concurrent use without coordination. Writes serialize
// per table name, so two concurrent refreshes of the same table can never
// interleave their delete/insert sequence.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"sqlpilot/internal/embedding"
)

// MissingSchemaPrefix marks a fetch result line for a table the index has
// no document for.
const MissingSchemaPrefix = "-- no schema found for table: "

// Index is the semantic schema index.
type Index struct {
	db     *sql.DB
	mu     sync.RWMutex
	engine embedding.Engine
	logger *zap.Logger
	vecExt bool

	tableMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New opens (and if needed creates) the index at the given path. The
// embedding engine may be nil, in which case similarity search is
// unavailable and only exact-name fetches work.
func New(path string, engine embedding.Engine, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}

	idx := &Index{
		db:     db,
		engine: engine,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}

	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	// sqlite-vec accelerates KNN when compiled in (build tag sqlite_vec);
	// the JSON-embedding cosine scan below is the portable path.
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err == nil {
		idx.vecExt = true
		logger.Debug("sqlite-vec extension available", zap.String("version", vecVersion))
	}

	return idx, nil
}

func (x *Index) migrate() error {
	_, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_docs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			content    TEXT NOT NULL,
			embedding  TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_schema_docs_table ON schema_docs(table_name);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate index schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (x *Index) Close() error {
	return x.db.Close()
}

// lockTable returns the write lock for one table name.
func (x *Index) lockTable(table string) *sync.Mutex {
	x.tableMu.Lock()
	defer x.tableMu.Unlock()
	mu, ok := x.locks[table]
	if !ok {
		mu = &sync.Mutex{}
		x.locks[table] = mu
	}
	return mu
}

// FetchByName returns the concatenated schema documents for the given
// tables, preserving order. Tables without a document contribute a
// MissingSchemaPrefix line instead of failing the fetch. The bool reports
// whether at least one table had a document.
func (x *Index) FetchByName(ctx context.Context, refs []string) (string, bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	parts := make([]string, 0, len(refs))
	found := false
	for _, table := range refs {
		var content string
		err := x.db.QueryRowContext(ctx,
			"SELECT content FROM schema_docs WHERE table_name = ? ORDER BY id DESC LIMIT 1",
			table,
		).Scan(&content)
		switch {
		case err == sql.ErrNoRows:
			x.logger.Warn("no schema document for table", zap.String("table", table))
			parts = append(parts, MissingSchemaPrefix+table)
		case err != nil:
			return "", false, fmt.Errorf("failed to fetch schema for %s: %w", table, err)
		default:
			found = true
			parts = append(parts, content)
		}
	}

	return strings.Join(parts, "\n\n"), found, nil
}

// Upsert stores a schema document for the table, replacing any existing
// documents tagged with the same name. Serialized per table name.
func (x *Index) Upsert(ctx context.Context, table, content string) error {
	var vec []float32
	if x.engine != nil {
		var err error
		vec, err = x.engine.Embed(ctx, content, embedding.TaskDocument)
		if err != nil {
			return fmt.Errorf("failed to embed schema document: %w", err)
		}
	}
	return x.put(ctx, table, content, vec)
}

// put writes a (possibly pre-embedded) document under the table's write
// lock.
func (x *Index) put(ctx context.Context, table, content string, vec []float32) error {
	mu := x.lockTable(table)
	mu.Lock()
	defer mu.Unlock()

	x.mu.Lock()
	defer x.mu.Unlock()

	var embJSON any
	if vec != nil {
		data, err := json.Marshal(vec)
		if err != nil {
			return fmt.Errorf("failed to serialize embedding: %w", err)
		}
		embJSON = string(data)
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_docs WHERE table_name = ?", table); err != nil {
		return fmt.Errorf("failed to clear stale documents for %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_docs (table_name, content, embedding) VALUES (?, ?, ?)",
		table, content, embJSON,
	); err != nil {
		return fmt.Errorf("failed to insert document for %s: %w", table, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index write for %s: %w", table, err)
	}

	x.logger.Debug("schema document upserted", zap.String("table", table), zap.Int("bytes", len(content)))
	return nil
}

// Delete removes every document tagged with the table name.
func (x *Index) Delete(ctx context.Context, table string) error {
	mu := x.lockTable(table)
	mu.Lock()
	defer mu.Unlock()

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, err := x.db.ExecContext(ctx, "DELETE FROM schema_docs WHERE table_name = ?", table); err != nil {
		return fmt.Errorf("failed to delete documents for %s: %w", table, err)
	}
	return nil
}

// Tables returns the distinct table names currently indexed, sorted.
func (x *Index) Tables(ctx context.Context) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rows, err := x.db.QueryContext(ctx, "SELECT DISTINCT table_name FROM schema_docs ORDER BY table_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
