// Package cache memoizes capability output. Keys are content hashes of
// normalized request inputs, so the cached value is a deterministic
// function of its key: concurrent writes for the same key may race but
// are idempotent, and last-writer-wins is fine.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// Cache is the pluggable key-value memoization store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
}

// Key derives a deterministic cache key from a stage name and its inputs.
// Inputs are normalized (lowercased, whitespace collapsed) before hashing
// so trivially reworded requests share an entry. The stage name keeps
// intent and generation keyspaces apart.
func Key(stage string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(stage))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(normalize(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Memory is an in-process Cache. Used in tests and as the fallback when no
// cache path is configured.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (c *Memory) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *Memory) Put(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

// Len returns the number of cached entries.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
