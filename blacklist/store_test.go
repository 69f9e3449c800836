package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, prefix string) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, prefix), mr
}

func TestAddThenContains(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, "")
	now := time.Now()

	if err := store.Add(ctx, now, "jti-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	found, err := store.Contains(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !found {
		t.Fatal("jti-1 must be blacklisted")
	}

	found, err = store.Contains(ctx, "jti-2")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if found {
		t.Fatal("jti-2 was never added")
	}
}

func TestKeyFormatAndSentinel(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, "")
	now := time.Now()

	if err := store.Add(ctx, now, "abc", now.Add(time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	val, err := mr.Get("blacklist:abc")
	if err != nil {
		t.Fatalf("expected key blacklist:abc, got: %v", err)
	}
	if val != "1" {
		t.Fatalf("sentinel = %q, want %q", val, "1")
	}
}

func TestCustomPrefix(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, "deny")
	now := time.Now()

	if err := store.Add(ctx, now, "abc", now.Add(time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := mr.Get("deny:abc"); err != nil {
		t.Fatalf("expected key deny:abc, got: %v", err)
	}
}

func TestTTLMatchesRemainingLifetime(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, "")
	now := time.Now()

	if err := store.Add(ctx, now, "jti-1", now.Add(30*time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ttl := mr.TTL("blacklist:jti-1")
	if ttl <= 29*time.Minute || ttl > 30*time.Minute {
		t.Fatalf("ttl = %v, want about 30m", ttl)
	}
}

func TestTTLFloorForPastExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, "")
	now := time.Now()

	if err := store.Add(ctx, now, "jti-1", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if ttl := mr.TTL("blacklist:jti-1"); ttl != time.Second {
		t.Fatalf("ttl = %v, want 1s floor", ttl)
	}
}

func TestEntryEvaporatesAfterTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, "")
	now := time.Now()

	if err := store.Add(ctx, now, "jti-1", now.Add(time.Minute)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	found, err := store.Contains(ctx, "jti-1")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if found {
		t.Fatal("entry must evaporate once the TTL elapses")
	}
}

func TestUnavailableRedisSurfacesErrUnavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, "")
	now := time.Now()
	mr.Close()

	if err := store.Add(ctx, now, "jti-1", now.Add(time.Minute)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Add error = %v, want ErrUnavailable", err)
	}
	if _, err := store.Contains(ctx, "jti-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Contains error = %v, want ErrUnavailable", err)
	}
}
