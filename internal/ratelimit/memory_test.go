package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStoreSweepsExpiredWindowsPeriodically(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := NewMemoryStore(clock.Now)
	ctx := context.Background()

	if _, err := s.Incr(ctx, "old", time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second)

	for i := 1; i < sweepEvery-1; i++ {
		_, _ = s.Incr(ctx, fmt.Sprintf("k%d", i), time.Hour)
	}
	if _, ok := s.windows["old"]; !ok {
		t.Fatal("Expected no sweep before the threshold")
	}

	_, _ = s.Incr(ctx, "last", time.Hour)
	if _, ok := s.windows["old"]; ok {
		t.Error("Expected the expired window to be swept")
	}
	if got := len(s.windows); got != sweepEvery-1 {
		t.Errorf("Expected %d live windows, got %d", sweepEvery-1, got)
	}
}

func TestMemoryStoreRestartsExpiredWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := NewMemoryStore(clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = s.Incr(ctx, "k", time.Second)
	}
	clock.Advance(time.Second)
	n, err := s.Incr(ctx, "k", time.Second)
	if err != nil || n != 1 {
		t.Errorf("Expected a fresh window count of 1, got %d (%v)", n, err)
	}
}
