package types

import (
	"errors"
	"fmt"
)

// ErrResolutionCancelled is returned when the human operator declines to
// resolve table identity. Terminal, and distinct from ambiguity.
var ErrResolutionCancelled = errors.New("table resolution cancelled by operator")

// ErrMaxRetriesExceeded is returned when generation keeps coming back
// incomplete past the retry bound.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded for SQL generation")

// ConfigurationError is fatal and surfaced before any pipeline stage runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ExecutionError means the store rejected the final SQL. It is surfaced
// with an empty result set and never retried automatically; a bad
// statement will not become valid by re-running it.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IndexRefreshError means an alter committed but the schema index could
// not be brought in line. The mutation is not rolled back; the
// inconsistency is surfaced instead of swallowed.
type IndexRefreshError struct {
	Table string
	Err   error
}

func (e *IndexRefreshError) Error() string {
	return fmt.Sprintf("alter committed but index refresh failed for table %s: %v", e.Table, e.Err)
}

func (e *IndexRefreshError) Unwrap() error { return e.Err }

// PipelineError wraps an unclassified stage failure with the last known
// state and the context snapshot so callers can diagnose how far the
// request got.
type PipelineError struct {
	State   PipelineState
	Context *RequestContext
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed in state %s: %v", e.State, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
