// Package intent adapts the intent-analysis capability: natural language
// in, a strongly-typed Intent out. The model's dynamically-shaped JSON is
// normalized exactly once, here; malformed output degrades to a safe
// default instead of aborting the pipeline.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sqlpilot/internal/cache"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/types"
)

// Analyzer extracts table references, entities, and command type from NL
// text.
type Analyzer struct {
	client llm.Client
	memo   *cache.Memo
	policy llm.RetryPolicy
	logger *zap.Logger
}

// New creates an Analyzer. memo may be nil to disable memoization.
func New(client llm.Client, memo *cache.Memo, policy llm.RetryPolicy, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{client: client, memo: memo, policy: policy, logger: logger}
}

const analyzePrompt = `Given the natural language query: %q

1. Identify the database table name(s) referenced in the query. A query may reference more than one table; return them comma-separated in the order mentioned.
2. List the entities in the query that likely correspond to column names, values, or qualifiers.
3. Classify the SQL command the query implies: SELECT, INSERT, UPDATE, DELETE, ALTER, CREATE, DROP, DESCRIBE, or OTHER.
4. Determine whether the query involves an ALTER TABLE command (adding, modifying, or dropping a column).

Return ONLY a JSON object with these keys:
- "table_ref": the table name(s) as a string ("UNCERTAIN" if unclear, comma-separated if several)
- "entities": array of entity strings
- "command_type": one of the command classes above
- "is_alter": boolean
- "alter_command": the full ALTER TABLE statement if applicable, otherwise ""
- "confidence": number in [0,1]

Examples:
- "How many employees are present in department DataScience, economics and logistics":
  {"table_ref": "DataScience, economics, logistics", "entities": ["employees", "department"], "command_type": "SELECT", "is_alter": false, "alter_command": "", "confidence": 0.7}
- "give me the schema of the table ShipMethod":
  {"table_ref": "ShipMethod", "entities": [], "command_type": "DESCRIBE", "is_alter": false, "alter_command": "", "confidence": 0.95}
- "Alter the Employee table to add a Bonus column":
  {"table_ref": "Employee", "entities": ["Bonus"], "command_type": "ALTER", "is_alter": true, "alter_command": "ALTER TABLE Employee ADD Bonus DECIMAL", "confidence": 0.9}`

// rawIntent mirrors the model's JSON before normalization.
type rawIntent struct {
	TableRef     string   `json:"table_ref"`
	Entities     []string `json:"entities"`
	CommandType  string   `json:"command_type"`
	IsAlter      bool     `json:"is_alter"`
	AlterCommand string   `json:"alter_command"`
	Confidence   float64  `json:"confidence"`
}

// Analyze maps NL text to a typed Intent. Transient provider failures are
// retried per the configured policy; a response that cannot be parsed
// degrades to the uncertain default.
func (a *Analyzer) Analyze(ctx context.Context, nlText string) (types.Intent, error) {
	key := cache.Key("intent", nlText)

	raw, err := a.memo.Do(ctx, key, func(ctx context.Context) (string, error) {
		var out string
		err := llm.Retry(ctx, a.policy, func(ctx context.Context) error {
			var err error
			out, err = a.client.Complete(ctx, fmt.Sprintf(analyzePrompt, nlText))
			return err
		})
		return out, err
	})
	if err != nil {
		return types.Intent{}, fmt.Errorf("intent analysis failed: %w", err)
	}

	return a.parse(raw), nil
}

// parse normalizes the model output. Any malformation yields the safe
// default: uncertain table, no entities, SELECT.
func (a *Analyzer) parse(response string) types.Intent {
	fallback := types.Intent{
		TableRef:    types.UncertainTableRef,
		Entities:    []string{},
		CommandType: types.CommandSelect,
	}

	cleaned := StripFences(response)

	var raw rawIntent
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		a.logger.Warn("intent response was not valid JSON, degrading to uncertain",
			zap.Error(err),
			zap.String("response", truncate(response, 200)))
		return fallback
	}

	if strings.TrimSpace(raw.TableRef) == "" {
		raw.TableRef = types.UncertainTableRef
	}
	entities := make([]string, 0, len(raw.Entities))
	for _, e := range raw.Entities {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}
	if raw.Confidence < 0 {
		raw.Confidence = 0
	}
	if raw.Confidence > 1 {
		raw.Confidence = 1
	}

	return types.Intent{
		TableRef:     strings.TrimSpace(raw.TableRef),
		Entities:     entities,
		CommandType:  types.ParseCommandType(raw.CommandType),
		IsAlter:      raw.IsAlter,
		AlterCommand: strings.TrimSpace(raw.AlterCommand),
		Confidence:   raw.Confidence,
	}
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```sql")
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
