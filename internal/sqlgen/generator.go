package sqlgen

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sqlpilot/internal/cache"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/types"
)

// Generator produces SQL for a resolved request.
type Generator struct {
	client llm.Client
	memo   *cache.Memo
	policy llm.RetryPolicy
	logger *zap.Logger
}

// NewGenerator creates a Generator. memo may be nil.
func NewGenerator(client llm.Client, memo *cache.Memo, policy llm.RetryPolicy, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, memo: memo, policy: policy, logger: logger}
}

const generatePrompt = `You are an expert SQL generator for SQLite.

Natural language request: %q
Command type: %s
Relevant entities: %s
%s
Schema:
%s

Write a single, complete %s statement for the request using only the
tables and columns in the schema. End the statement with a semicolon.
Return ONLY the SQL, no prose, no markdown fences.`

// Generate invokes the generation capability and applies the completeness
// heuristic. A statement that looks truncated is returned annotated with
// the truncation marker rather than being treated as valid; the verifier
// decides its fate.
func (g *Generator) Generate(ctx context.Context, rc *types.RequestContext) (string, error) {
	if rc.SchemaText == "" {
		return "", fmt.Errorf("no schema available for SQL generation")
	}

	multiTableHint := ""
	if rc.MultiTable() {
		multiTableHint = fmt.Sprintf(
			"Multiple tables are in scope (%s); combine them with joins or set operations as the request requires.\n",
			strings.Join(rc.TableRefs, ", "))
	}

	prompt := fmt.Sprintf(generatePrompt,
		rc.NLText,
		rc.CommandType,
		strings.Join(rc.Entities, ", "),
		multiTableHint,
		rc.SchemaText,
		rc.CommandType,
	)

	// The token budget is part of the key: a retry with a larger budget
	// must not be answered from the smaller attempt's cache entry.
	key := cache.Key("generate",
		rc.NLText,
		rc.SchemaText,
		string(rc.CommandType),
		strings.Join(rc.Entities, ","),
		strconv.Itoa(rc.TokenBudget),
	)

	raw, err := g.memo.Do(ctx, key, func(ctx context.Context) (string, error) {
		var out string
		err := llm.Retry(ctx, g.policy, func(ctx context.Context) error {
			var err error
			out, err = g.client.CompleteWithBudget(ctx, prompt, rc.TokenBudget)
			return err
		})
		return out, err
	})
	if err != nil {
		return "", fmt.Errorf("SQL generation failed: %w", err)
	}

	sqlText := CleanSQL(raw)
	if LooksTruncated(sqlText, len(rc.TableRefs)) {
		g.logger.Warn("generated statement flagged as truncation-suspect",
			zap.Int("tables", len(rc.TableRefs)),
			zap.Int("budget", rc.TokenBudget))
		sqlText = MarkSuspect(sqlText)
	}

	return sqlText, nil
}
