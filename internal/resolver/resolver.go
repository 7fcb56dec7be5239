// Package resolver drives table-identity resolution: semantic candidate
// ranking, human escalation, and schema retrieval, until exactly one
// resolved table set exists or the request fails.
//
// The many boolean flags of a naive implementation (needs_clarification,
// needs_table_confirmation, ...) are collapsed into one state enum with a
// single transition function, so unintended flag combinations are
// unrepresentable.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sqlpilot/internal/types"
)

// maxSteps bounds the resolution driver loop. Every path either resolves,
// escalates, or fails well within this; hitting it means a logic bug, not
// a user error.
const maxSteps = 16

// Fetcher retrieves concatenated schema text for an ordered table list.
type Fetcher interface {
	FetchByName(ctx context.Context, refs []string) (text string, found bool, err error)
}

// CandidateRanker proposes tables for an unresolved reference.
type CandidateRanker interface {
	Rank(ctx context.Context, entities []string, nlText string) ([]types.CandidateTable, error)
}

// Escalator is the synchronous human-in-the-loop contract. Confirm offers
// the ranked candidates; it returns the chosen or manually-entered table
// reference, or "" when the operator cancels. Clarify is the direct
// prompt used when there are no candidates to offer.
type Escalator interface {
	Confirm(ctx context.Context, nlText string, candidates []types.CandidateTable, entities []string) (string, error)
	Clarify(ctx context.Context, prompt string) (string, error)
}

// Alterer applies a schema mutation and refreshes the index.
type Alterer interface {
	Apply(ctx context.Context, table, stmt string) error
}

// Resolver is the table-resolution state machine.
type Resolver struct {
	fetcher           Fetcher
	ranker            CandidateRanker
	escalator         Escalator
	alterer           Alterer
	escalationTimeout time.Duration
	logger            *zap.Logger
}

// New creates a Resolver. alterer may be nil when schema mutation is not
// wired (alter requests then fail cleanly).
func New(fetcher Fetcher, ranker CandidateRanker, escalator Escalator, alterer Alterer, escalationTimeout time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if escalationTimeout <= 0 {
		escalationTimeout = 5 * time.Minute
	}
	return &Resolver{
		fetcher:           fetcher,
		ranker:            ranker,
		escalator:         escalator,
		alterer:           alterer,
		escalationTimeout: escalationTimeout,
		logger:            logger,
	}
}

// next is the single transition function. Conditions are evaluated in
// fixed priority order; the first match wins. searched reports whether a
// semantic search already ran for this resolution attempt, so an empty
// candidate list falls through to direct clarification instead of
// re-searching forever.
func next(rc *types.RequestContext, searched bool) types.PipelineState {
	switch {
	case !rc.Resolved() && len(rc.Entities) > 0 && !searched:
		return types.StateNeedsSemanticSearch
	case !rc.Resolved() && len(rc.Candidates) == 0:
		return types.StateNeedsClarification
	case !rc.Resolved():
		return types.StateNeedsConfirmation
	case rc.AlterIntent:
		return types.StateNeedsAlter
	case rc.SchemaText != "":
		return types.StateResolved
	default:
		// No state applies: fetch schema for the resolved refs. Modeled
		// as re-entering Start so the audit trail shows the fetch edge.
		return types.StateStart
	}
}

// Resolve drives the state machine until the context reaches Resolved or
// a terminal failure. On success rc.TableRefs is non-empty and
// rc.SchemaText is populated.
func (r *Resolver) Resolve(ctx context.Context, rc *types.RequestContext) error {
	searched := false

	for step := 0; step < maxSteps; step++ {
		state := next(rc, searched)

		switch state {
		case types.StateResolved:
			rc.Transition(types.StateResolved, "table identity settled")
			return nil

		case types.StateNeedsSemanticSearch:
			rc.Transition(state, fmt.Sprintf("semantic search over %d entities", len(rc.Entities)))
			candidates, err := r.ranker.Rank(ctx, rc.Entities, rc.NLText)
			if err != nil {
				return fmt.Errorf("candidate ranking failed: %w", err)
			}
			searched = true
			rc.Candidates = candidates
			if len(candidates) == 0 {
				rc.Note("semantic search produced no candidates; falling back to clarification")
			}

		case types.StateNeedsClarification:
			rc.Transition(state, "no usable candidates; asking operator directly")
			prompt := fmt.Sprintf("Could not identify a table for the request: %s", rc.NLText)
			name, err := r.escalate(ctx, func(ctx context.Context) (string, error) {
				return r.escalator.Clarify(ctx, prompt)
			})
			if err != nil {
				return err
			}
			rc.TableRefs = types.SplitTableRef(name)
			rc.Candidates = nil
			rc.Note(fmt.Sprintf("operator clarified table reference: %v", rc.TableRefs))

		case types.StateNeedsConfirmation:
			rc.Transition(state, fmt.Sprintf("offering %d candidates for confirmation", len(rc.Candidates)))
			name, err := r.escalate(ctx, func(ctx context.Context) (string, error) {
				return r.escalator.Confirm(ctx, rc.NLText, rc.Candidates, rc.Entities)
			})
			if err != nil {
				return err
			}
			rc.TableRefs = types.SplitTableRef(name)
			rc.Note(fmt.Sprintf("operator confirmed table reference: %v", rc.TableRefs))

		case types.StateNeedsAlter:
			rc.Transition(state, "applying schema mutation")
			if err := r.applyAlter(ctx, rc); err != nil {
				return err
			}
			rc.AlterIntent = false

		default:
			// Fetch schema for the resolved table list, preserving order.
			text, found, err := r.fetcher.FetchByName(ctx, rc.TableRefs)
			if err != nil {
				return fmt.Errorf("schema fetch failed: %w", err)
			}
			if !found {
				rc.Note(fmt.Sprintf("no schema documents for %v; escalating", rc.TableRefs))
				rc.TableRefs = nil
				continue
			}
			rc.SchemaText = text
			rc.Note(fmt.Sprintf("schema fetched for %d table(s)", len(rc.TableRefs)))
		}
	}

	return fmt.Errorf("table resolution did not converge after %d steps", maxSteps)
}

// escalate runs a blocking human prompt under the escalation timeout. An
// empty answer or an expired deadline is a cancellation, never a silent
// default to a guessed table.
func (r *Resolver) escalate(ctx context.Context, ask func(ctx context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.escalationTimeout)
	defer cancel()

	name, err := ask(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("escalation timed out after %s: %w", r.escalationTimeout, types.ErrResolutionCancelled)
		}
		return "", fmt.Errorf("escalation failed: %w", err)
	}
	if name == "" {
		return "", types.ErrResolutionCancelled
	}
	return name, nil
}

// applyAlter executes the pending schema mutation. An index refresh
// failure after a committed mutation is surfaced in the audit trail as an
// inconsistency but does not fail the request; a commit failure does.
func (r *Resolver) applyAlter(ctx context.Context, rc *types.RequestContext) error {
	if r.alterer == nil {
		return fmt.Errorf("alter requested but no alter executor configured")
	}
	if rc.AlterStmt == "" {
		return fmt.Errorf("alter intent without an alter statement")
	}
	if len(rc.TableRefs) == 0 {
		return fmt.Errorf("alter intent without a resolved table")
	}

	table := rc.TableRefs[0]
	err := r.alterer.Apply(ctx, table, rc.AlterStmt)

	var refreshErr *types.IndexRefreshError
	if errors.As(err, &refreshErr) {
		r.logger.Warn("alter committed but index refresh failed",
			zap.String("table", refreshErr.Table),
			zap.Error(refreshErr.Err))
		rc.Note("index refresh failed after committed alter: " + refreshErr.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("alter execution failed: %w", err)
	}

	rc.Note(fmt.Sprintf("alter applied to %s and index refreshed", table))
	return nil
}
