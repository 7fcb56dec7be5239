package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sqlpilot/internal/embedding"
)

// ListTables returns the user tables of a SQLite database, sorted.
func ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
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

// DescribeTable renders the schema document for one table from the live
// database. The format is shared with the bootstrap path so alter
// refreshes produce documents byte-compatible with initial indexing.
func DescribeTable(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return "", fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	defer rows.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Table: %s\nColumns:\n", table)

	n := 0
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return "", fmt.Errorf("failed to scan column info for %s: %w", table, err)
		}
		fmt.Fprintf(&sb, "- %s (%s)\n", name, colType)
		n++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("table %s has no columns (does it exist?)", table)
	}

	return sb.String(), nil
}

// Bootstrap walks the given database and (re)indexes a schema document for
// every user table. Documents are embedded in one batch. Returns the
// number of tables indexed.
func (x *Index) Bootstrap(ctx context.Context, db *sql.DB) (int, error) {
	tables, err := ListTables(ctx, db)
	if err != nil {
		return 0, err
	}
	if len(tables) == 0 {
		return 0, nil
	}

	docs := make([]string, len(tables))
	for i, table := range tables {
		doc, err := DescribeTable(ctx, db, table)
		if err != nil {
			return 0, err
		}
		docs[i] = doc
	}

	var vecs [][]float32
	if x.engine != nil {
		vecs, err = x.engine.EmbedBatch(ctx, docs, embedding.TaskDocument)
		if err != nil {
			return 0, fmt.Errorf("failed to embed schema documents: %w", err)
		}
		if len(vecs) != len(docs) {
			return 0, fmt.Errorf("embedding batch returned %d vectors for %d documents", len(vecs), len(docs))
		}
	}

	for i, table := range tables {
		var vec []float32
		if vecs != nil {
			vec = vecs[i]
		}
		if err := x.put(ctx, table, docs[i], vec); err != nil {
			return i, err
		}
	}

	x.logger.Info("schema index bootstrapped", zap.Int("tables", len(tables)))
	return len(tables), nil
}
