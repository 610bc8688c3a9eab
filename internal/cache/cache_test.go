package cache

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"Friday_1.0/internal/cache/store"
	"Friday_1.0/internal/config"
)

func newTestCache(t *testing.T, cfg config.CacheConfig, withDisk bool) *Cache {
	t.Helper()
	var slow store.Store
	if withDisk {
		disk, err := store.NewDisk(config.DiskStoreConfig{Dir: t.TempDir(), MaxBytes: 1 << 20})
		if err != nil {
			t.Fatalf("NewDisk: %v", err)
		}
		slow = disk
	}
	c, err := New(cfg, slow)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, false)
	ctx := context.Background()

	c.Set(ctx, "abc123", []byte("hello"), "fp-1")

	content, fp, ok := c.Get(ctx, "abc123")
	if !ok {
		t.Fatal("expected a hit")
	}
	if string(content) != "hello" {
		t.Errorf("content = %q, want %q", content, "hello")
	}
	if fp != "fp-1" {
		t.Errorf("fingerprint = %q, want %q", fp, "fp-1")
	}
}

func TestCacheMissUnknownKey(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, true)

	if _, _, ok := c.Get(context.Background(), "deadbeef"); ok {
		t.Fatal("expected a miss for an unknown key")
	}
	if stats := c.Stats(context.Background()); stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
}

func TestMaybeCompress(t *testing.T) {
	short := []byte("tiny")
	if _, ok := maybeCompress(short); ok {
		t.Error("content below the threshold should not be compressed")
	}

	repetitive := bytes.Repeat([]byte("the same line over and over\n"), 200)
	data, ok := maybeCompress(repetitive)
	if !ok {
		t.Fatal("repetitive content above the threshold should compress")
	}
	if len(data) >= len(repetitive) {
		t.Errorf("compressed size %d not smaller than original %d", len(data), len(repetitive))
	}
}

func TestCacheCompressedRoundTrip(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, true)
	ctx := context.Background()

	original := []byte(strings.Repeat("alpha beta gamma delta\n", 300))
	c.Set(ctx, "bigentry", original, "fp-big")

	content, _, ok := c.Get(ctx, "bigentry")
	if !ok {
		t.Fatal("expected a hit")
	}
	if !bytes.Equal(content, original) {
		t.Error("round-tripped content differs from original")
	}
	if stats := c.Stats(ctx); stats.CompressionSavedBytes <= 0 {
		t.Errorf("CompressionSavedBytes = %d, want > 0", stats.CompressionSavedBytes)
	}
}

func TestCachePromotionFromStore(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, true)
	ctx := context.Background()

	c.Set(ctx, "promoted", []byte("persisted content"), "fp-p")

	// Drop the fast-tier copy so the next read must come from the store.
	c.fast.Remove("promoted")

	content, _, ok := c.Get(ctx, "promoted")
	if !ok {
		t.Fatal("expected a hit served from the persisted tier")
	}
	if string(content) != "persisted content" {
		t.Errorf("content = %q", content)
	}

	stats := c.Stats(ctx)
	if stats.Promotions != 1 {
		t.Errorf("Promotions = %d, want 1", stats.Promotions)
	}
	// The promoted entry must now be in the fast tier.
	if _, ok := c.fast.Peek("promoted"); !ok {
		t.Error("promoted entry missing from the fast tier")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, true)
	ctx := context.Background()

	c.Set(ctx, "gone", []byte("x"), "fp")
	c.Invalidate(ctx, "gone")

	if _, _, ok := c.Get(ctx, "gone"); ok {
		t.Fatal("invalidated key should miss")
	}
	if stats := c.Stats(ctx); stats.Invalidations != 1 {
		t.Errorf("Invalidations = %d, want 1", stats.Invalidations)
	}
}

func TestCacheTTLSweep(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10, TTL: "20ms"}, true)
	ctx := context.Background()

	c.Set(ctx, "shortlived", []byte("soon gone"), "fp")
	time.Sleep(40 * time.Millisecond)

	if removed := c.SweepExpired(ctx); removed < 1 {
		t.Errorf("SweepExpired removed %d entries, want at least 1", removed)
	}
	if _, _, ok := c.Get(ctx, "shortlived"); ok {
		t.Fatal("expired entry should miss")
	}
}

func TestCacheStatsHitRate(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, false)
	ctx := context.Background()

	c.Set(ctx, "known", []byte("v"), "fp")
	c.Get(ctx, "known")
	c.Get(ctx, "unknown")

	stats := c.Stats(ctx)
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("Hits = %d, Misses = %d, want 1 and 1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", stats.HitRate)
	}
}

func TestCacheInvalidTTL(t *testing.T) {
	if _, err := New(config.CacheConfig{MaxEntries: 10, TTL: "never"}, nil); err == nil {
		t.Fatal("expected an error for an unparseable ttl")
	}
}
