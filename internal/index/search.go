package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"sqlpilot/internal/embedding"
)

// Hit is one similarity search result. Distance is cosine distance: 0 is
// identical, larger is less similar.
type Hit struct {
	TableName string
	Content   string
	Distance  float64
}

// SearchByContent embeds the query and returns the topK nearest schema
// documents by cosine distance. When the sqlite-vec extension is loaded
// the KNN runs in SQL; otherwise (or if the vec query fails) a scan over
// the JSON embeddings computes the distances in-process. Ordering is
// deterministic: ties break on table name.
func (x *Index) SearchByContent(ctx context.Context, query string, topK int) ([]Hit, error) {
	if x.engine == nil {
		return nil, fmt.Errorf("no embedding engine configured for similarity search")
	}
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := x.engine.Embed(ctx, query, embedding.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.vecExt {
		hits, err := x.searchVec(ctx, queryVec, topK)
		if err == nil {
			x.logger.Debug("similarity search",
				zap.String("query", query),
				zap.Int("hits", len(hits)),
				zap.Bool("vec", true))
			return hits, nil
		}
		x.logger.Warn("sqlite-vec query failed, using embedding scan", zap.Error(err))
	}

	hits, err := x.searchScan(ctx, queryVec, topK)
	if err != nil {
		return nil, err
	}
	x.logger.Debug("similarity search",
		zap.String("query", query),
		zap.Int("hits", len(hits)))
	return hits, nil
}

// searchVec runs the KNN inside sqlite via vec_distance_cosine. The
// stored embeddings are JSON arrays, which sqlite-vec parses directly, so
// the query vector is passed the same way.
func (x *Index) searchVec(ctx context.Context, queryVec []float32, topK int) ([]Hit, error) {
	queryJSON, err := json.Marshal(queryVec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query embedding: %w", err)
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT table_name, content, vec_distance_cosine(embedding, ?) AS distance
		FROM schema_docs
		WHERE embedding IS NOT NULL
		ORDER BY distance ASC, table_name ASC
		LIMIT ?`,
		string(queryJSON), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.TableName, &hit.Content, &hit.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// searchScan computes cosine distances in-process over all stored
// embeddings. Malformed documents are skipped, not fatal.
func (x *Index) searchScan(ctx context.Context, queryVec []float32, topK int) ([]Hit, error) {
	rows, err := x.db.QueryContext(ctx,
		"SELECT table_name, content, embedding FROM schema_docs WHERE embedding IS NOT NULL",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	skipped := 0
	for rows.Next() {
		var hit Hit
		var embJSON string
		if err := rows.Scan(&hit.TableName, &hit.Content, &embJSON); err != nil {
			skipped++
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			skipped++
			continue
		}

		dist, err := embedding.CosineDistance(queryVec, vec)
		if err != nil {
			skipped++
			continue
		}
		hit.Distance = dist
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		x.logger.Warn("similarity search skipped malformed documents", zap.Int("skipped", skipped))
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].TableName < hits[j].TableName
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
