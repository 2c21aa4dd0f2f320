package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	return newTestStoreTTL(t, 0)
}

func newTestStoreTTL(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ttl, zap.NewNop()), mr
}

func TestClaimAndCommit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	result, err := store.Claim(ctx, "twitch", "msg-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !result.Acquired {
		t.Fatalf("expected fresh claim")
	}

	result, err = store.Claim(ctx, "twitch", "msg-1")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if result.Acquired || result.Committed {
		t.Fatalf("expected uncommitted duplicate, got %+v", result)
	}

	if err := store.Commit(ctx, "twitch", "msg-1"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	result, err = store.Claim(ctx, "twitch", "msg-1")
	if err != nil {
		t.Fatalf("reclaim after commit: %v", err)
	}
	if !result.Committed {
		t.Fatalf("expected committed duplicate, got %+v", result)
	}
}

func TestClaimsNeverExpireByDefault(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Claim(ctx, "twitch", "ev-old"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Commit(ctx, "twitch", "ev-old"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	mr.FastForward(30 * 24 * time.Hour)

	result, err := store.Claim(ctx, "twitch", "ev-old")
	if err != nil {
		t.Fatalf("replay claim: %v", err)
	}
	if result.Acquired {
		t.Fatalf("replayed delivery re-acquired a committed key, got %+v", result)
	}
	if !result.Committed {
		t.Fatalf("expected committed duplicate, got %+v", result)
	}
}

func TestClaimExpiresWithExplicitTTL(t *testing.T) {
	store, mr := newTestStoreTTL(t, time.Hour)
	ctx := context.Background()

	if _, err := store.Claim(ctx, "trovo", "ev-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	mr.FastForward(2 * time.Hour)

	result, err := store.Claim(ctx, "trovo", "ev-1")
	if err != nil {
		t.Fatalf("claim after expiry: %v", err)
	}
	if !result.Acquired {
		t.Fatalf("expired claim should be reacquirable")
	}
}

func TestClaimIsScopedByProvider(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Claim(ctx, "twitch", "shared-id"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	result, err := store.Claim(ctx, "trovo", "shared-id")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !result.Acquired {
		t.Fatalf("providers must not share claim keyspace")
	}
}

func TestClaimRejectsEmptyKey(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Claim(context.Background(), "", ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}
