// Package executor runs the final verified SQL against the backing store
// and shapes the result rows.
package executor

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"sqlpilot/internal/types"
)

// Runner executes SQL text against a database handle.
type Runner struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a Runner.
func New(db *sql.DB, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{db: db, logger: logger}
}

// Run executes sqlText and returns the result rows as column-name maps.
// Statements that return no rows (INSERT, UPDATE, ...) yield an empty
// slice. A store rejection comes back as ExecutionError; it is never
// retried here, because a bad statement will not become valid by
// re-running it.
func (r *Runner) Run(ctx context.Context, sqlText string) ([]types.Row, error) {
	rows, err := r.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &types.ExecutionError{SQL: sqlText, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &types.ExecutionError{SQL: sqlText, Err: err}
	}

	out := []types.Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &types.ExecutionError{SQL: sqlText, Err: err}
		}

		row := make(types.Row, len(cols))
		for i, col := range cols {
			v := values[i]
			// Normalize []byte so rows print as text, not byte slices.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.ExecutionError{SQL: sqlText, Err: err}
	}

	r.logger.Debug("query executed", zap.Int("rows", len(out)))
	return out, nil
}
