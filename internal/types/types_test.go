package types

import (
	"errors"
	"testing"
)

func TestParseCommandType(t *testing.T) {
	tests := []struct {
		in   string
		want CommandType
	}{
		{"SELECT", CommandSelect},
		{"select", CommandSelect},
		{"  Update ", CommandUpdate},
		{"ALTER", CommandAlter},
		{"DESCRIBE", CommandDescribe},
		{"garbage", CommandOther},
		{"", CommandOther},
	}

	for _, tt := range tests {
		if got := ParseCommandType(tt.in); got != tt.want {
			t.Errorf("ParseCommandType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestIntentUncertain(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want bool
	}{
		{"Empty", "", true},
		{"Sentinel", "UNCERTAIN", true},
		{"SentinelLower", "uncertain", true},
		{"Named", "employees", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := Intent{TableRef: tt.ref}
			if got := it.Uncertain(); got != tt.want {
				t.Errorf("Uncertain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitTableRef(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"Single", "employees", []string{"employees"}},
		{"CommaList", "DataScience, economics, logistics", []string{"DataScience", "economics", "logistics"}},
		{"EmptySegments", "a,, b,", []string{"a", "b"}},
		{"Blank", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitTableRef(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitTableRef(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("SplitTableRef(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestVerdictAcceptable(t *testing.T) {
	tests := []struct {
		status VerdictStatus
		want   bool
	}{
		{VerdictPerfect, true},
		{VerdictCorrected, true},
		{VerdictIncomplete, false},
		{VerdictInvalid, false},
		{VerdictError, false},
	}

	for _, tt := range tests {
		v := Verdict{Status: tt.status}
		if got := v.Acceptable(); got != tt.want {
			t.Errorf("Acceptable() for %s = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestPipelineStateString(t *testing.T) {
	// Every declared state must have a distinct, non-"unknown" name.
	states := []PipelineState{
		StateStart, StateNeedsSemanticSearch, StateNeedsClarification,
		StateNeedsConfirmation, StateNeedsAlter, StateResolved,
		StateGenerated, StateVerifying, StateRetrying, StateExecuting,
		StateDone, StateFailed,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		name := s.String()
		if name == "unknown" {
			t.Errorf("state %d has no name", s)
		}
		if seen[name] {
			t.Errorf("duplicate state name %q", name)
		}
		seen[name] = true
	}

	if PipelineState(99).String() != "unknown" {
		t.Error("out-of-range state should stringify as unknown")
	}
}

func TestPipelineStateTerminal(t *testing.T) {
	if !StateDone.Terminal() || !StateFailed.Terminal() {
		t.Error("done and failed must be terminal")
	}
	if StateStart.Terminal() || StateRetrying.Terminal() {
		t.Error("non-terminal states reported as terminal")
	}
}

func TestRequestContextTransition(t *testing.T) {
	rc := NewRequestContext("show employees", 1000)
	if rc.ID == "" {
		t.Fatal("context has no ID")
	}
	if rc.State != StateStart {
		t.Fatalf("new context state = %s, want start", rc.State)
	}
	if rc.TokenBudget != 1000 {
		t.Fatalf("TokenBudget = %d, want 1000", rc.TokenBudget)
	}

	rc.Transition(StateResolved, "resolved")
	rc.Note("an event")
	rc.Transition(StateGenerated, "generated")

	if rc.State != StateGenerated {
		t.Errorf("state = %s, want generated", rc.State)
	}
	if len(rc.Audit) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(rc.Audit))
	}
	if rc.Audit[0].From != StateStart || rc.Audit[0].To != StateResolved {
		t.Errorf("first audit edge = %s->%s", rc.Audit[0].From, rc.Audit[0].To)
	}
	if rc.Audit[1].From != StateResolved || rc.Audit[1].To != StateResolved {
		t.Errorf("Note should record a self-edge, got %s->%s", rc.Audit[1].From, rc.Audit[1].To)
	}
	if rc.Audit[2].From != StateResolved || rc.Audit[2].To != StateGenerated {
		t.Errorf("second transition edge = %s->%s", rc.Audit[2].From, rc.Audit[2].To)
	}
}

func TestRequestContextResolvedAndMultiTable(t *testing.T) {
	rc := NewRequestContext("x", 100)
	if rc.Resolved() || rc.MultiTable() {
		t.Error("empty context should be neither resolved nor multi-table")
	}
	rc.TableRefs = []string{"employees"}
	if !rc.Resolved() || rc.MultiTable() {
		t.Error("single ref should be resolved, not multi-table")
	}
	rc.TableRefs = []string{"employees", "departments"}
	if !rc.MultiTable() {
		t.Error("two refs should be multi-table")
	}
}

func TestErrorUnwrapping(t *testing.T) {
	base := errors.New("disk on fire")

	execErr := &ExecutionError{SQL: "SELECT 1;", Err: base}
	if !errors.Is(execErr, base) {
		t.Error("ExecutionError should unwrap to its cause")
	}

	refreshErr := &IndexRefreshError{Table: "employees", Err: base}
	if !errors.Is(refreshErr, base) {
		t.Error("IndexRefreshError should unwrap to its cause")
	}

	pipeErr := &PipelineError{State: StateFailed, Err: execErr}
	var target *ExecutionError
	if !errors.As(pipeErr, &target) {
		t.Error("PipelineError should unwrap to the wrapped ExecutionError")
	}
}
