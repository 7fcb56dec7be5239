// Package types holds the data model shared across pipeline stages:
// the per-request context, candidate tables, verdicts, and the pipeline
// state enum. Stages communicate only through these values; there is no
// ambient shared state.
package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommandType classifies the SQL operation a request maps to.
type CommandType string

const (
	CommandSelect   CommandType = "SELECT"
	CommandInsert   CommandType = "INSERT"
	CommandUpdate   CommandType = "UPDATE"
	CommandDelete   CommandType = "DELETE"
	CommandAlter    CommandType = "ALTER"
	CommandCreate   CommandType = "CREATE"
	CommandDrop     CommandType = "DROP"
	CommandDescribe CommandType = "DESCRIBE"
	CommandOther    CommandType = "OTHER"
)

// ParseCommandType normalizes a free-form command string from the intent
// analyzer. Anything unrecognized maps to CommandOther.
func ParseCommandType(s string) CommandType {
	switch CommandType(strings.ToUpper(strings.TrimSpace(s))) {
	case CommandSelect:
		return CommandSelect
	case CommandInsert:
		return CommandInsert
	case CommandUpdate:
		return CommandUpdate
	case CommandDelete:
		return CommandDelete
	case CommandAlter:
		return CommandAlter
	case CommandCreate:
		return CommandCreate
	case CommandDrop:
		return CommandDrop
	case CommandDescribe:
		return CommandDescribe
	default:
		return CommandOther
	}
}

// UncertainTableRef is the sentinel the intent analyzer returns when it
// cannot identify a table.
const UncertainTableRef = "UNCERTAIN"

// Intent is the strongly-typed result of intent analysis. Every field has
// an explicit default; dynamically-shaped analyzer output is normalized
// into this struct once, at the boundary.
type Intent struct {
	TableRef     string      `json:"table_ref"`
	Entities     []string    `json:"entities"`
	CommandType  CommandType `json:"command_type"`
	IsAlter      bool        `json:"is_alter"`
	AlterCommand string      `json:"alter_command"`
	Confidence   float64     `json:"confidence"`
}

// Uncertain reports whether the analyzer failed to pin down a table.
func (it Intent) Uncertain() bool {
	return it.TableRef == "" || strings.EqualFold(it.TableRef, UncertainTableRef)
}

// SplitTableRef turns a comma-separated table reference into an ordered
// list. Order is preserved; empty segments are dropped.
func SplitTableRef(ref string) []string {
	if strings.TrimSpace(ref) == "" {
		return nil
	}
	parts := strings.Split(ref, ",")
	refs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			refs = append(refs, p)
		}
	}
	return refs
}

// CandidateTable is one ranked proposal from semantic search. Ephemeral:
// scoped to a single resolution attempt.
type CandidateTable struct {
	TableName  string  `json:"table_name"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Preview    string  `json:"preview,omitempty"`
}

// VerdictStatus is the outcome class of SQL verification.
type VerdictStatus string

const (
	VerdictPerfect    VerdictStatus = "perfect"
	VerdictCorrected  VerdictStatus = "corrected"
	VerdictIncomplete VerdictStatus = "incomplete"
	VerdictInvalid    VerdictStatus = "invalid"
	VerdictError      VerdictStatus = "error"
)

// Verdict is the tagged result of SQL verification. CorrectedSQL is only
// meaningful when Status is VerdictCorrected.
type Verdict struct {
	Status       VerdictStatus `json:"status"`
	CorrectedSQL string        `json:"corrected_sql,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// Acceptable reports whether the verdict allows the statement to execute.
func (v Verdict) Acceptable() bool {
	return v.Status == VerdictPerfect || v.Status == VerdictCorrected
}

// PipelineState tags where a request currently is in the pipeline.
type PipelineState int

const (
	StateStart PipelineState = iota
	StateNeedsSemanticSearch
	StateNeedsClarification
	StateNeedsConfirmation
	StateNeedsAlter
	StateResolved
	StateGenerated
	StateVerifying
	StateRetrying
	StateExecuting
	StateDone
	StateFailed
)

func (s PipelineState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateNeedsSemanticSearch:
		return "needs_semantic_search"
	case StateNeedsClarification:
		return "needs_clarification"
	case StateNeedsConfirmation:
		return "needs_confirmation"
	case StateNeedsAlter:
		return "needs_alter"
	case StateResolved:
		return "resolved"
	case StateGenerated:
		return "generated"
	case StateVerifying:
		return "verifying"
	case StateRetrying:
		return "retrying"
	case StateExecuting:
		return "executing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s PipelineState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// AuditEntry records one state transition or notable event.
type AuditEntry struct {
	At   time.Time     `json:"at"`
	From PipelineState `json:"from"`
	To   PipelineState `json:"to"`
	Note string        `json:"note,omitempty"`
}

// Row is one result row from query execution.
type Row map[string]any

// RequestContext carries everything one request accumulates as it moves
// through the pipeline. It is created at request start, mutated
// monotonically stage by stage, and discarded once the result is returned.
type RequestContext struct {
	ID     string
	NLText string // original request text; never mutated after creation

	// Resolution
	TableRefs  []string
	Candidates []CandidateTable
	Entities   []string

	// Intent
	CommandType CommandType
	AlterIntent bool
	AlterStmt   string

	// Schema + generation
	SchemaText   string
	GeneratedSQL string
	Verdict      Verdict
	FinalSQL     string

	// Resource accounting
	RetryCount  int
	TokenBudget int

	State PipelineState
	Audit []AuditEntry

	// Execution outcome
	Rows    []Row
	ExecErr error
}

// NewRequestContext creates a fresh context for one NL request.
func NewRequestContext(nlText string, initialBudget int) *RequestContext {
	return &RequestContext{
		ID:          uuid.NewString(),
		NLText:      nlText,
		TokenBudget: initialBudget,
		State:       StateStart,
	}
}

// Transition moves the context to a new state, recording the edge in the
// audit trail.
func (rc *RequestContext) Transition(to PipelineState, note string) {
	rc.Audit = append(rc.Audit, AuditEntry{
		At:   time.Now(),
		From: rc.State,
		To:   to,
		Note: note,
	})
	rc.State = to
}

// Note records an event in the audit trail without changing state. Errors
// a stage classifies must pass through here before being swallowed or
// degraded.
func (rc *RequestContext) Note(note string) {
	rc.Audit = append(rc.Audit, AuditEntry{
		At:   time.Now(),
		From: rc.State,
		To:   rc.State,
		Note: note,
	})
}

// Resolved reports whether table identity has been settled.
func (rc *RequestContext) Resolved() bool {
	return len(rc.TableRefs) > 0
}

// MultiTable reports whether more than one table is in scope, which the
// SQL generator must be told so it can reason about joins and unions.
func (rc *RequestContext) MultiTable() bool {
	return len(rc.TableRefs) > 1
}
