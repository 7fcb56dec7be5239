// Package genloop orchestrates SQL generation, verification, and
// execution with bounded retries and an escalating token budget.
package genloop

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sqlpilot/internal/sqlgen"
	"sqlpilot/internal/types"
)

// Defaults for the retry bound and budget escalation.
const (
	DefaultMaxRetries      = 2
	DefaultBudgetIncrement = 500
)

// Generator produces a candidate statement for the current context,
// including its token budget.
type Generator interface {
	Generate(ctx context.Context, rc *types.RequestContext) (string, error)
}

// Verifier judges a candidate statement.
type Verifier interface {
	Verify(ctx context.Context, rc *types.RequestContext, candidateSQL string) (types.Verdict, error)
}

// Runner executes the final statement.
type Runner interface {
	Run(ctx context.Context, sqlText string) ([]types.Row, error)
}

// Loop is the generation/verification state machine.
type Loop struct {
	generator       Generator
	verifier        Verifier
	runner          Runner
	maxRetries      int
	budgetIncrement int
	logger          *zap.Logger
}

// New creates a Loop. Non-positive bounds fall back to defaults.
func New(generator Generator, verifier Verifier, runner Runner, maxRetries, budgetIncrement int, logger *zap.Logger) *Loop {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if budgetIncrement <= 0 {
		budgetIncrement = DefaultBudgetIncrement
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		generator:       generator,
		verifier:        verifier,
		runner:          runner,
		maxRetries:      maxRetries,
		budgetIncrement: budgetIncrement,
		logger:          logger,
	}
}

// Run drives generate → verify → {execute, retry} until the request is
// Done or Failed. Invariants: at most maxRetries retries ever happen; the
// token budget only grows, by exactly one increment per incomplete
// verdict; FinalSQL is set only under an acceptable verdict.
func (l *Loop) Run(ctx context.Context, rc *types.RequestContext) error {
	for {
		sqlText, err := l.generator.Generate(ctx, rc)
		if err != nil {
			rc.Transition(types.StateFailed, "generation error: "+err.Error())
			return err
		}
		rc.GeneratedSQL = sqlText
		rc.Transition(types.StateGenerated, fmt.Sprintf("candidate generated (budget=%d)", rc.TokenBudget))

		rc.Transition(types.StateVerifying, "verifying candidate")
		verdict, err := l.verifier.Verify(ctx, rc, sqlText)
		if err != nil {
			rc.Verdict = verdict
			rc.Transition(types.StateFailed, "verification error: "+err.Error())
			return err
		}
		rc.Verdict = verdict

		switch verdict.Status {
		case types.VerdictPerfect, types.VerdictCorrected:
			final := rc.GeneratedSQL
			if verdict.Status == types.VerdictCorrected {
				final = verdict.CorrectedSQL
			}
			// The truncation marker is bookkeeping between generator and
			// verifier; it must never reach the executed statement.
			rc.FinalSQL = sqlgen.Unmark(final)
			rc.Transition(types.StateExecuting, "verdict "+string(verdict.Status))
			return l.execute(ctx, rc)

		case types.VerdictIncomplete:
			rc.RetryCount++
			if rc.RetryCount > l.maxRetries {
				rc.Transition(types.StateFailed, fmt.Sprintf("incomplete after %d retries", l.maxRetries))
				return fmt.Errorf("%w (retries=%d)", types.ErrMaxRetriesExceeded, l.maxRetries)
			}
			rc.TokenBudget += l.budgetIncrement
			rc.Transition(types.StateRetrying,
				fmt.Sprintf("incomplete; retry %d/%d with budget %d", rc.RetryCount, l.maxRetries, rc.TokenBudget))
			l.logger.Info("regenerating after incomplete verdict",
				zap.Int("retry", rc.RetryCount),
				zap.Int("budget", rc.TokenBudget))

		default: // invalid, error
			rc.Transition(types.StateFailed, "verdict "+string(verdict.Status)+": "+verdict.Reason)
			return fmt.Errorf("SQL verification rejected the statement: %s (%s)", verdict.Status, verdict.Reason)
		}
	}
}

// execute runs the final statement. An execution failure still finishes
// in Done: the error is recorded and surfaced with an empty result set,
// never retried.
func (l *Loop) execute(ctx context.Context, rc *types.RequestContext) error {
	rows, err := l.runner.Run(ctx, rc.FinalSQL)
	if err != nil {
		var execErr *types.ExecutionError
		if !errors.As(err, &execErr) {
			execErr = &types.ExecutionError{SQL: rc.FinalSQL, Err: err}
		}
		rc.Rows = []types.Row{}
		rc.ExecErr = execErr
		rc.Transition(types.StateDone, "execution failed: "+execErr.Error())
		return execErr
	}

	rc.Rows = rows
	rc.Transition(types.StateDone, fmt.Sprintf("executed; %d row(s)", len(rows)))
	return nil
}
