// Package pipeline wires the stages together: intent analysis, table
// resolution, schema mutation, and the generation/verification loop. One
// Run is one isolated request; the only state shared between runs is the
// schema index and the memoization cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sqlpilot/internal/types"
)

// IntentAnalyzer maps NL text to a typed Intent.
type IntentAnalyzer interface {
	Analyze(ctx context.Context, nlText string) (types.Intent, error)
}

// TableResolver settles table identity and populates schema text.
type TableResolver interface {
	Resolve(ctx context.Context, rc *types.RequestContext) error
}

// GenerationLoop produces, verifies, and executes the final SQL.
type GenerationLoop interface {
	Run(ctx context.Context, rc *types.RequestContext) error
}

// Pipeline is the per-request orchestrator.
type Pipeline struct {
	analyzer      IntentAnalyzer
	resolver      TableResolver
	loop          GenerationLoop
	initialBudget int
	logger        *zap.Logger
}

// New creates a Pipeline.
func New(analyzer IntentAnalyzer, resolver TableResolver, loop GenerationLoop, initialBudget int, logger *zap.Logger) *Pipeline {
	if initialBudget <= 0 {
		initialBudget = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		analyzer:      analyzer,
		resolver:      resolver,
		loop:          loop,
		initialBudget: initialBudget,
		logger:        logger,
	}
}

// Run executes one request end to end. The returned context always
// carries the audit trail and whatever was recovered, even on failure, so
// callers can diagnose how far the request got.
func (p *Pipeline) Run(ctx context.Context, nlText string) (*types.RequestContext, error) {
	rc := types.NewRequestContext(nlText, p.initialBudget)
	p.logger.Info("pipeline run started", zap.String("request_id", rc.ID))

	it, err := p.analyzer.Analyze(ctx, nlText)
	if err != nil {
		return rc, p.fail(rc, fmt.Errorf("intent analysis: %w", err))
	}
	if !it.Uncertain() {
		rc.TableRefs = types.SplitTableRef(it.TableRef)
	}
	rc.Entities = it.Entities
	rc.CommandType = it.CommandType
	rc.AlterIntent = it.IsAlter
	rc.AlterStmt = it.AlterCommand
	rc.Note(fmt.Sprintf("intent: table_ref=%v command=%s entities=%d alter=%v confidence=%.2f",
		rc.TableRefs, rc.CommandType, len(rc.Entities), rc.AlterIntent, it.Confidence))

	if err := p.resolver.Resolve(ctx, rc); err != nil {
		if errors.Is(err, types.ErrResolutionCancelled) {
			rc.Transition(types.StateFailed, "resolution cancelled")
			return rc, err
		}
		return rc, p.fail(rc, fmt.Errorf("table resolution: %w", err))
	}

	// An alter request's mutation already executed during resolution;
	// running the generator would only restate it. The refreshed schema
	// is the result. FinalSQL stays empty: it is reserved for verified
	// statements, so the applied DDL is reported through the audit trail.
	if it.IsAlter && rc.AlterStmt != "" {
		rc.Rows = []types.Row{}
		rc.Transition(types.StateDone, "alter applied: "+rc.AlterStmt)
		return rc, nil
	}

	if err := p.loop.Run(ctx, rc); err != nil {
		var execErr *types.ExecutionError
		switch {
		case errors.Is(err, types.ErrMaxRetriesExceeded):
			return rc, err
		case errors.As(err, &execErr):
			// Done with empty results; the error is informational.
			return rc, err
		default:
			return rc, p.fail(rc, fmt.Errorf("generation loop: %w", err))
		}
	}

	p.logger.Info("pipeline run finished",
		zap.String("request_id", rc.ID),
		zap.String("state", rc.State.String()),
		zap.Int("rows", len(rc.Rows)))
	return rc, nil
}

// fail records an unclassified failure with the last known state and a
// context snapshot.
func (p *Pipeline) fail(rc *types.RequestContext, err error) error {
	state := rc.State
	if !rc.State.Terminal() {
		rc.Transition(types.StateFailed, err.Error())
	}
	p.logger.Error("pipeline run failed",
		zap.String("request_id", rc.ID),
		zap.String("state", state.String()),
		zap.Error(err))
	return &types.PipelineError{State: state, Context: rc, Err: err}
}
