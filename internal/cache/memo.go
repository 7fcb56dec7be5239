package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Memo wraps a Cache with singleflight so concurrent misses for the same
// key run the compute function once.
type Memo struct {
	cache Cache
	group singleflight.Group
}

// NewMemo wraps the given cache. A nil cache disables memoization: Do
// always computes.
func NewMemo(c Cache) *Memo {
	return &Memo{cache: c}
}

// Do returns the cached value for key, computing and storing it on a
// miss. Cache read/write errors degrade to computing directly; a stale
// cache must never fail a request.
func (m *Memo) Do(ctx context.Context, key string, compute func(ctx context.Context) (string, error)) (string, error) {
	if m == nil || m.cache == nil {
		return compute(ctx)
	}

	if v, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		return v, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		// Re-check: another caller may have filled the entry while this
		// one waited on the flight group.
		if v, ok, err := m.cache.Get(ctx, key); err == nil && ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return "", err
		}
		_ = m.cache.Put(ctx, key, v)
		return v, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
