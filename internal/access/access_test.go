package access

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/codebyanand/streamgate/internal/logging"
)

func setupTestCache(t *testing.T, check CheckFunc, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log, err := logging.NewDefaultLogger()
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	return NewCache(rdb, check, ttl, log), mr
}

func countingCheck(calls *int64, allowed bool) CheckFunc {
	return func(ctx context.Context, userID, assetID string) (bool, error) {
		atomic.AddInt64(calls, 1)
		return allowed, nil
	}
}

func TestHasAccess_ReadThrough(t *testing.T) {
	var calls int64
	cache, _ := setupTestCache(t, countingCheck(&calls, true), 5*time.Minute)
	ctx := context.Background()

	// First call misses and consults the source of truth
	allowed, err := cache.HasAccess(ctx, "user-1", "asset-1")
	if err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if !allowed {
		t.Error("Expected access granted")
	}
	if calls != 1 {
		t.Errorf("Expected 1 source call, got %d", calls)
	}

	// Repeated calls are served from cache
	for i := 0; i < 10; i++ {
		if _, err := cache.HasAccess(ctx, "user-1", "asset-1"); err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected cached answers, got %d source calls", calls)
	}
}

func TestHasAccess_DeniedIsCachedToo(t *testing.T) {
	var calls int64
	cache, _ := setupTestCache(t, countingCheck(&calls, false), 5*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := cache.HasAccess(ctx, "user-1", "asset-1")
		if err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
		if allowed {
			t.Error("Expected access denied")
		}
	}

	if calls != 1 {
		t.Errorf("Expected denial to be cached, got %d source calls", calls)
	}
}

func TestHasAccess_TTLExpiry(t *testing.T) {
	var calls int64
	cache, mr := setupTestCache(t, countingCheck(&calls, true), 5*time.Minute)
	ctx := context.Background()

	if _, err := cache.HasAccess(ctx, "user-1", "asset-1"); err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}

	mr.FastForward(6 * time.Minute)

	if _, err := cache.HasAccess(ctx, "user-1", "asset-1"); err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected re-derivation after TTL, got %d source calls", calls)
	}
}

func TestInvalidate(t *testing.T) {
	var calls int64
	cache, _ := setupTestCache(t, countingCheck(&calls, true), 5*time.Minute)
	ctx := context.Background()

	if _, err := cache.HasAccess(ctx, "user-1", "asset-1"); err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}

	if err := cache.Invalidate(ctx, "user-1", "asset-1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	if _, err := cache.HasAccess(ctx, "user-1", "asset-1"); err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected source re-check after invalidation, got %d calls", calls)
	}
}

func TestInvalidateUser(t *testing.T) {
	var calls int64
	cache, _ := setupTestCache(t, countingCheck(&calls, true), 5*time.Minute)
	ctx := context.Background()

	for _, asset := range []string{"asset-1", "asset-2", "asset-3"} {
		if _, err := cache.HasAccess(ctx, "user-1", asset); err != nil {
			t.Fatalf("HasAccess failed: %v", err)
		}
	}
	if _, err := cache.HasAccess(ctx, "user-2", "asset-1"); err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}

	if err := cache.InvalidateUser(ctx, "user-1"); err != nil {
		t.Fatalf("InvalidateUser failed: %v", err)
	}

	before := calls
	// user-1 entries were dropped
	if _, err := cache.HasAccess(ctx, "user-1", "asset-2"); err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if calls != before+1 {
		t.Error("Expected source re-check for invalidated user")
	}

	// user-2 entry survived
	if _, err := cache.HasAccess(ctx, "user-2", "asset-1"); err != nil {
		t.Fatalf("HasAccess failed: %v", err)
	}
	if calls != before+1 {
		t.Error("Other users' cached entries must survive a per-user flush")
	}
}

func TestHasAccess_CacheDownFallsBack(t *testing.T) {
	var calls int64
	cache, mr := setupTestCache(t, countingCheck(&calls, true), 5*time.Minute)
	ctx := context.Background()

	mr.Close()

	// Redis is gone; the source of truth still answers
	allowed, err := cache.HasAccess(ctx, "user-1", "asset-1")
	if err != nil {
		t.Fatalf("HasAccess should fall back on cache outage: %v", err)
	}
	if !allowed {
		t.Error("Expected access granted via fallback")
	}
	if calls != 1 {
		t.Errorf("Expected direct source call, got %d", calls)
	}
}
