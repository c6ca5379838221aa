package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Registry) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRegistry(client, "sr", ttl)
}

func TestAddAndContains(t *testing.T) {
	_, reg := newTestRegistry(t, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	if err := reg.Add(ctx, "u1", "hash-a", now); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ok, err := reg.Contains(ctx, "u1", "hash-a", now)
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if !ok {
		t.Fatal("expected hash to be tracked")
	}

	ok, err = reg.Contains(ctx, "u1", "hash-b", now)
	if err != nil {
		t.Fatalf("Contains failed: %v", err)
	}
	if ok {
		t.Fatal("expected unknown hash to be absent")
	}
}

func TestRotateSwapsHash(t *testing.T) {
	_, reg := newTestRegistry(t, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	if err := reg.Add(ctx, "u1", "hash-old", now); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := reg.Rotate(ctx, "u1", "hash-old", "hash-new", now); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	old, _ := reg.Contains(ctx, "u1", "hash-old", now)
	if old {
		t.Fatal("expected old hash to be gone after rotation")
	}
	current, _ := reg.Contains(ctx, "u1", "hash-new", now)
	if !current {
		t.Fatal("expected new hash to be tracked after rotation")
	}
}

func TestRotateUnknownHash(t *testing.T) {
	_, reg := newTestRegistry(t, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	err := reg.Rotate(ctx, "u1", "never-issued", "next", now)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRotateSecondUseFails(t *testing.T) {
	_, reg := newTestRegistry(t, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	if err := reg.Add(ctx, "u1", "hash-1", now); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := reg.Rotate(ctx, "u1", "hash-1", "hash-2", now); err != nil {
		t.Fatalf("first Rotate failed: %v", err)
	}

	err := reg.Rotate(ctx, "u1", "hash-1", "hash-3", now)
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound on replay, got %v", err)
	}

	// The winner's token remains rotatable.
	if err := reg.Rotate(ctx, "u1", "hash-2", "hash-4", now); err != nil {
		t.Fatalf("Rotate of current hash failed: %v", err)
	}
}

func TestRotateExpiredEntry(t *testing.T) {
	_, reg := newTestRegistry(t, time.Hour)
	ctx := context.Background()
	issued := time.Now()

	if err := reg.Add(ctx, "u1", "hash-stale", issued); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	later := issued.Add(2 * time.Hour)
	err := reg.Rotate(ctx, "u1", "hash-stale", "hash-next", later)
	if !errors.Is(err, ErrTokenExpiredEntry) {
		t.Fatalf("expected ErrTokenExpiredEntry, got %v", err)
	}

	// The stale entry is pruned, not left behind.
	ok, _ := reg.Contains(ctx, "u1", "hash-stale", later)
	if ok {
		t.Fatal("expected stale hash to be pruned")
	}
}

func TestRotateConcurrencySingleWinner(t *testing.T) {
	_, reg := newTestRegistry(t, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	if err := reg.Add(ctx, "u1", "contested", now); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		notFound int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			err := reg.Rotate(ctx, "u1", "contested", nextHash(i), now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrTokenNotFound):
				notFound++
			default:
				t.Errorf("unexpected rotate error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if notFound != workers-1 {
		t.Fatalf("expected %d not-found losers, got %d", workers-1, notFound)
	}
}

func nextHash(i int) string {
	return "next-" + string(rune('a'+i))
}

func TestRemoveIsIdempotent(t *testing.T) {
	_, reg := newTestRegistry(t, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	if err := reg.Add(ctx, "u1", "hash-a", now); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := reg.Remove(ctx, "u1", "hash-a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := reg.Remove(ctx, "u1", "hash-a"); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
	if err := reg.Remove(ctx, "u1", "never-there"); err != nil {
		t.Fatalf("Remove of unknown hash failed: %v", err)
	}
}

func TestRemoveAll(t *testing.T) {
	_, reg := newTestRegistry(t, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	for _, h := range []string{"h1", "h2", "h3"} {
		if err := reg.Add(ctx, "u1", h, now); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	n, err := reg.ActiveCount(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveCount failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 tracked tokens, got %d", n)
	}

	if err := reg.RemoveAll(ctx, "u1"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}

	n, err = reg.ActiveCount(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveCount failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected zero tracked tokens, got %d", n)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, reg := newTestRegistry(t, 7*24*time.Hour)
	ctx := context.Background()
	now := time.Now()

	mr.Close()

	if err := reg.Add(ctx, "u1", "h1", now); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Add, got %v", err)
	}
	if err := reg.Rotate(ctx, "u1", "h1", "h2", now); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable from Rotate, got %v", err)
	}
}
