// Package ranker turns extracted entities and the raw request text into a
// ranked, deduplicated list of candidate tables via semantic search over
// the schema index.
package ranker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"sqlpilot/internal/index"
	"sqlpilot/internal/types"
)

// DefaultTopK caps the candidate list length.
const DefaultTopK = 5

// DefaultConfidenceFloor drops candidates at or below this confidence.
const DefaultConfidenceFloor = 0.2

const previewLen = 120

// Searcher is the slice of the schema index the ranker needs.
type Searcher interface {
	SearchByContent(ctx context.Context, query string, topK int) ([]index.Hit, error)
}

// Ranker composes semantic queries and merges their results.
type Ranker struct {
	searcher Searcher
	topK     int
	floor    float64
	logger   *zap.Logger
}

// New creates a Ranker. topK <= 0 and floor <= 0 fall back to defaults.
func New(searcher Searcher, topK int, floor float64, logger *zap.Logger) *Ranker {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{searcher: searcher, topK: topK, floor: floor, logger: logger}
}

// query is one composed semantic probe.
type query struct {
	text   string
	reason string
}

// composeQueries builds the probe batch: one per entity, a combined-context
// probe when more than one entity exists, and the full NL text.
func composeQueries(entities []string, nlText string) []query {
	queries := make([]query, 0, len(entities)+2)
	for _, e := range entities {
		queries = append(queries, query{
			text:   fmt.Sprintf("column/field %s", e),
			reason: fmt.Sprintf("matched entity %q", e),
		})
	}
	if len(entities) > 1 {
		combined := strings.Join(entities, " ")
		queries = append(queries, query{
			text:   fmt.Sprintf("table containing %s", combined),
			reason: fmt.Sprintf("matched combined entities %q", combined),
		})
	}
	queries = append(queries, query{
		text:   nlText,
		reason: "matched full request text",
	})
	return queries
}

// Rank issues the composed query batch and merges results by table name:
// on collision the maximum confidence wins and the reason is replaced by
// the query that produced it. Candidates at or below the confidence floor
// are dropped; the result is sorted descending by confidence (ties break
// on table name, so the ordering is deterministic for fixed distances) and
// truncated to topK.
func (r *Ranker) Rank(ctx context.Context, entities []string, nlText string) ([]types.CandidateTable, error) {
	merged := make(map[string]types.CandidateTable)

	for _, q := range composeQueries(entities, nlText) {
		hits, err := r.searcher.SearchByContent(ctx, q.text, r.topK)
		if err != nil {
			return nil, fmt.Errorf("semantic query %q failed: %w", q.text, err)
		}
		for _, hit := range hits {
			confidence := 1 - hit.Distance
			if confidence < 0 {
				confidence = 0
			}
			existing, ok := merged[hit.TableName]
			if ok && existing.Confidence >= confidence {
				continue
			}
			merged[hit.TableName] = types.CandidateTable{
				TableName:  hit.TableName,
				Confidence: confidence,
				Reason:     q.reason,
				Preview:    preview(hit.Content),
			}
		}
	}

	candidates := make([]types.CandidateTable, 0, len(merged))
	for _, c := range merged {
		if c.Confidence <= r.floor {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].TableName < candidates[j].TableName
	})

	if len(candidates) > r.topK {
		candidates = candidates[:r.topK]
	}

	r.logger.Debug("candidate ranking complete",
		zap.Int("entities", len(entities)),
		zap.Int("candidates", len(candidates)))

	return candidates, nil
}

func preview(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen]) + "..."
}
