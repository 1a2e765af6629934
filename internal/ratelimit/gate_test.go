package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/attribution/internal/idempotency"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingStore struct{ calls int }

func (s *failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	s.calls++
	return 0, ErrStoreUnavailable
}

var clickKey = idempotency.DedupKey{Operation: idempotency.OpRecordLinkClick, IP: "1.2.3.4", SubjectID: "L1"}

func TestGateAllowsFirstNThenSuppresses(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	gate := NewGate(NewMemoryStore(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if !gate.Allow(ctx, clickKey, 10, time.Hour) {
			t.Fatalf("call %d: expected allowed", i)
		}
	}
	for i := 0; i < 5; i++ {
		if gate.Allow(ctx, clickKey, 10, time.Hour) {
			t.Fatalf("call %d past the limit: expected suppressed", 11+i)
		}
	}

	clock.Advance(59 * time.Minute)
	if gate.Allow(ctx, clickKey, 10, time.Hour) {
		t.Fatal("expected suppression inside the window")
	}

	clock.Advance(time.Minute)
	if !gate.Allow(ctx, clickKey, 10, time.Hour) {
		t.Fatal("expected allowed after the window elapsed")
	}
}

func TestGateKeysAreIndependent(t *testing.T) {
	gate := NewGate(NewMemoryStore(nil))
	ctx := context.Background()

	other := clickKey
	other.SubjectID = "L2"

	if !gate.Allow(ctx, clickKey, 1, time.Hour) {
		t.Fatal("expected first key allowed")
	}
	if gate.Allow(ctx, clickKey, 1, time.Hour) {
		t.Fatal("expected first key suppressed on second call")
	}
	if !gate.Allow(ctx, other, 1, time.Hour) {
		t.Fatal("expected second key allowed")
	}
}

func TestGateConcurrentIncrementsHonorLimit(t *testing.T) {
	gate := NewGate(NewMemoryStore(nil))
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.Allow(ctx, clickKey, 10, time.Hour) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 10 {
		t.Errorf("expected exactly 10 allowed, got %d", allowed.Load())
	}
}

func TestGateFailsClosed(t *testing.T) {
	store := &failingStore{}
	gate := NewGate(store)

	if gate.Allow(context.Background(), clickKey, 10, time.Hour) {
		t.Error("expected suppression when the store fails")
	}
	if store.calls != 1 {
		t.Errorf("expected 1 store call, got %d", store.calls)
	}
}

func TestGateZeroLimitNeverAllows(t *testing.T) {
	store := &failingStore{}
	gate := NewGate(store)
	if gate.Allow(context.Background(), clickKey, 0, time.Hour) {
		t.Error("expected suppression with limit 0")
	}
	if store.calls != 0 {
		t.Errorf("expected no store call, got %d", store.calls)
	}
}

func TestRedisStoreUnreachableFailsClosed(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	store := NewRedisStore(client)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := store.Incr(ctx, "k", time.Second); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if NewGate(store).Allow(ctx, clickKey, 10, time.Hour) {
		t.Error("expected suppression with an unreachable redis")
	}
}
