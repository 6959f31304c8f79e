package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreFromClient(client)
}

func TestRoundLock(t *testing.T) {
	ctx := context.Background()
	s := newTestRedis(t)
	day := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

	ok, err := s.AcquireRoundLock(ctx, day, "first")
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, got ok=%v err=%v", ok, err)
	}
	ok, err = s.AcquireRoundLock(ctx, day.Add(3*time.Hour), "second")
	if err != nil || ok {
		t.Fatalf("expected second acquire on same date to fail, got ok=%v err=%v", ok, err)
	}

	// Only the owner can release.
	if err := s.ReleaseRoundLock(ctx, day, "second"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.AcquireRoundLock(ctx, day, "third"); ok {
		t.Fatal("lock released by non-owner")
	}
	if err := s.ReleaseRoundLock(ctx, day, "first"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.AcquireRoundLock(ctx, day, "third"); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestClaimNonce(t *testing.T) {
	ctx := context.Background()
	s := newTestRedis(t)

	fresh, err := s.ClaimNonce(ctx, "operator", "n-1")
	if err != nil || !fresh {
		t.Fatalf("expected fresh nonce, got %v %v", fresh, err)
	}
	fresh, _ = s.ClaimNonce(ctx, "operator", "n-1")
	if fresh {
		t.Fatal("expected replayed nonce to be rejected")
	}
}
