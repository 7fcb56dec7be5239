// Package alter applies schema-mutating statements to the backing store
// and keeps the schema index in line with the result.
package alter

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"sqlpilot/internal/index"
	"sqlpilot/internal/types"
)

// Refresher is the slice of the schema index the executor writes to.
type Refresher interface {
	Delete(ctx context.Context, table string) error
	Upsert(ctx context.Context, table, content string) error
}

// Executor runs structural mutations transactionally and refreshes the
// index only after a successful commit.
type Executor struct {
	db     *sql.DB
	idx    Refresher
	logger *zap.Logger
}

// New creates an Executor against the backing database.
func New(db *sql.DB, idx Refresher, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{db: db, idx: idx, logger: logger}
}

// Apply executes the mutation as a single transaction. On commit success
// it regenerates the table's schema document and replaces every existing
// index document for that table. A commit failure leaves the index
// untouched. A refresh failure after commit returns IndexRefreshError:
// the mutation stands, the inconsistency is the caller's to surface.
func (e *Executor) Apply(ctx context.Context, table, stmt string) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin alter transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		tx.Rollback()
		return fmt.Errorf("alter statement failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("alter commit failed: %w", err)
	}

	e.logger.Info("schema mutation committed",
		zap.String("table", table),
		zap.String("stmt", stmt))

	doc, err := index.DescribeTable(ctx, e.db, table)
	if err != nil {
		return &types.IndexRefreshError{Table: table, Err: err}
	}
	if err := e.idx.Delete(ctx, table); err != nil {
		return &types.IndexRefreshError{Table: table, Err: err}
	}
	if err := e.idx.Upsert(ctx, table, doc); err != nil {
		return &types.IndexRefreshError{Table: table, Err: err}
	}

	e.logger.Info("schema index refreshed", zap.String("table", table))
	return nil
}
