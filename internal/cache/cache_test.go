package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func TestKeyDeterministic(t *testing.T) {
	a := Key("intent", "show all employees")
	b := Key("intent", "show all employees")
	if a != b {
		t.Error("same inputs produced different keys")
	}
}

func TestKeyNormalization(t *testing.T) {
	// Case and whitespace differences must collapse to the same key.
	a := Key("intent", "Show  All\tEmployees")
	b := Key("intent", "show all employees")
	if a != b {
		t.Error("normalization should make trivially reworded inputs share a key")
	}
}

func TestKeyStageSeparation(t *testing.T) {
	if Key("intent", "x") == Key("generate", "x") {
		t.Error("different stages must not share a keyspace")
	}
}

func TestKeyPartBoundaries(t *testing.T) {
	// ("ab", "c") and ("a", "bc") must not collide.
	if Key("s", "ab", "c") == Key("s", "a", "bc") {
		t.Error("part boundaries must be part of the hash")
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get on empty cache = (%v, %v), want miss", ok, err)
	}

	if err := c.Put(ctx, "k", "v"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get = (%q, %v, %v), want hit with v", v, ok, err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	defer c.Close()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get on empty cache = (%v, %v), want miss", ok, err)
	}

	if err := c.Put(ctx, "k", "v1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put(ctx, "k", "v2"); err != nil {
		t.Fatalf("Put overwrite failed: %v", err)
	}

	v, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get failed: (%v, %v)", ok, err)
	}
	if v != "v2" {
		t.Errorf("Get = %q, want last written value v2", v)
	}

	n, err := c.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Clear removed %d entries, want 1", n)
	}
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("entry survived Clear")
	}
}

func TestMemoComputesOnMiss(t *testing.T) {
	ctx := context.Background()
	m := NewMemo(NewMemory())

	calls := 0
	compute := func(context.Context) (string, error) {
		calls++
		return "result", nil
	}

	for i := 0; i < 3; i++ {
		v, err := m.Do(ctx, "k", compute)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if v != "result" {
			t.Fatalf("Do = %q, want result", v)
		}
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
}

func TestMemoNilCacheAlwaysComputes(t *testing.T) {
	ctx := context.Background()
	m := NewMemo(nil)

	calls := 0
	for i := 0; i < 2; i++ {
		if _, err := m.Do(ctx, "k", func(context.Context) (string, error) {
			calls++
			return "v", nil
		}); err != nil {
			t.Fatalf("Do failed: %v", err)
		}
	}
	if calls != 2 {
		t.Errorf("compute ran %d times, want 2 with no cache", calls)
	}
}

func TestMemoErrorNotCached(t *testing.T) {
	ctx := context.Background()
	m := NewMemo(NewMemory())

	if _, err := m.Do(ctx, "k", func(context.Context) (string, error) {
		return "", fmt.Errorf("transient")
	}); err == nil {
		t.Fatal("expected error from compute")
	}

	v, err := m.Do(ctx, "k", func(context.Context) (string, error) {
		return "recovered", nil
	})
	if err != nil || v != "recovered" {
		t.Fatalf("Do after failure = (%q, %v), want recovered", v, err)
	}
}

func TestMemoSingleflight(t *testing.T) {
	ctx := context.Background()
	m := NewMemo(NewMemory())

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Do(ctx, "same-key", compute)
		}(i)
	}

	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if results[i] != "v" {
			t.Errorf("worker %d got %q, want v", i, results[i])
		}
	}
	// Concurrent misses for the same key must collapse; the re-check
	// inside the flight group allows at most a handful, never one per
	// caller.
	if got := calls.Load(); got > 2 {
		t.Errorf("compute ran %d times for %d concurrent callers", got, workers)
	}
}
