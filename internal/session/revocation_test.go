package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*RedisRevocationStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevocationStore(client), s
}

func TestRedisRevocation(t *testing.T) {
	store, s := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("fresh token reported revoked=%v err=%v", revoked, err)
	}

	if err := store.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	revoked, err = store.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked token, got revoked=%v err=%v", revoked, err)
	}
	if ttl := s.TTL("revoked:jti-1"); ttl <= 0 || ttl > time.Hour {
		t.Errorf("unexpected ttl %v", ttl)
	}

	// Entry disappears once the token would have expired.
	s.FastForward(2 * time.Hour)
	revoked, _ = store.IsRevoked(ctx, "jti-1")
	if revoked {
		t.Errorf("expected revocation entry to expire")
	}
}

func TestRedisRevocationIgnoresExpiredTokens(t *testing.T) {
	store, s := setupTestRedis(t)
	if err := store.Revoke(context.Background(), "old", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if s.Exists("revoked:old") {
		t.Errorf("expired token should not be stored")
	}
}

func TestRedisRevocationUnavailable(t *testing.T) {
	store, s := setupTestRedis(t)
	s.Close()
	if _, err := store.IsRevoked(context.Background(), "jti"); err == nil {
		t.Errorf("expected error when redis is down")
	}
}

func TestMemoryRevocation(t *testing.T) {
	store := NewMemoryRevocationStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Revoke(ctx, "a", now.Add(time.Minute))
	if ok, _ := store.IsRevoked(ctx, "a"); !ok {
		t.Fatalf("expected a revoked")
	}
	if ok, _ := store.IsRevoked(ctx, "b"); ok {
		t.Fatalf("b was never revoked")
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := store.IsRevoked(ctx, "a"); ok {
		t.Fatalf("expected a to lapse after expiry")
	}
	_ = store.Revoke(ctx, "c", now.Add(time.Minute))
	if len(store.revoked) != 1 {
		t.Fatalf("expected expired entries pruned, have %d", len(store.revoked))
	}
}
