package sqlgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sqlpilot/internal/llm"
	"sqlpilot/internal/types"
)

// Verifier validates generated SQL against the request and schema.
type Verifier struct {
	client llm.Client
	policy llm.RetryPolicy
	logger *zap.Logger
}

// NewVerifier creates a Verifier.
func NewVerifier(client llm.Client, policy llm.RetryPolicy, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{client: client, policy: policy, logger: logger}
}

const verifyPrompt = `You are a strict SQL reviewer for SQLite.

Natural language request: %q
Command type: %s
Schema:
%s

Candidate SQL:
%s

Judge the candidate:
- "perfect": correct and complete as written
- "corrected": fixable; provide the fixed statement
- "incomplete": truncated or missing required clauses; regeneration with a larger output budget is needed
- "invalid": cannot satisfy the request against this schema

Return ONLY a JSON object:
{"status": "perfect"|"corrected"|"incomplete"|"invalid", "corrected_sql": "...", "reason": "..."}`

// Verify invokes the verification capability and parses its verdict. A
// statement carrying the truncation marker is presented unmarked but
// noted, and an unparseable verdict maps to status error.
func (v *Verifier) Verify(ctx context.Context, rc *types.RequestContext, candidateSQL string) (types.Verdict, error) {
	note := ""
	if IsSuspect(candidateSQL) {
		note = "\nNote: a completeness heuristic flagged this statement as possibly truncated."
		candidateSQL = Unmark(candidateSQL)
	}

	prompt := fmt.Sprintf(verifyPrompt,
		rc.NLText,
		rc.CommandType,
		rc.SchemaText,
		candidateSQL,
	) + note

	var raw string
	err := llm.Retry(ctx, v.policy, func(ctx context.Context) error {
		var err error
		raw, err = v.client.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return types.Verdict{Status: types.VerdictError}, fmt.Errorf("SQL verification failed: %w", err)
	}

	return v.parse(raw, candidateSQL), nil
}

type rawVerdict struct {
	Status       string `json:"status"`
	CorrectedSQL string `json:"corrected_sql"`
	Reason       string `json:"reason"`
}

func (v *Verifier) parse(response, candidateSQL string) types.Verdict {
	cleaned := stripFences(response)

	var raw rawVerdict
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		v.logger.Warn("verifier response was not valid JSON",
			zap.Error(err),
			zap.String("response", truncate(response, 200)))
		return types.Verdict{Status: types.VerdictError, Reason: "unparseable verifier response"}
	}

	status := types.VerdictStatus(strings.ToLower(strings.TrimSpace(raw.Status)))
	switch status {
	case types.VerdictPerfect:
		return types.Verdict{Status: status, Reason: raw.Reason}
	case types.VerdictCorrected:
		corrected := CleanSQL(raw.CorrectedSQL)
		if corrected == "" {
			// A correction without corrected SQL keeps the candidate.
			corrected = candidateSQL
		}
		return types.Verdict{Status: status, CorrectedSQL: corrected, Reason: raw.Reason}
	case types.VerdictIncomplete, types.VerdictInvalid:
		return types.Verdict{Status: status, Reason: raw.Reason}
	default:
		return types.Verdict{Status: types.VerdictError, Reason: fmt.Sprintf("unknown verdict status %q", raw.Status)}
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
