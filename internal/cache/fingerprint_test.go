package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Friday_1.0/internal/config"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFingerprintStable(t *testing.T) {
	path := writeTemp(t, "stable.txt", "unchanged")

	first, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	second, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if first != second {
		t.Errorf("fingerprints differ for an untouched file: %q vs %q", first, second)
	}
	if len(first) != keyLength {
		t.Errorf("fingerprint length = %d, want %d", len(first), keyLength)
	}
}

func TestFingerprintChangesOnRewrite(t *testing.T) {
	path := writeTemp(t, "rewritten.txt", "version one")

	before, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if err := os.WriteFile(path, []byte("version two, longer than before"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	after, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if before == after {
		t.Error("fingerprint unchanged after a rewrite")
	}
}

func TestFingerprintChangesOnTouch(t *testing.T) {
	path := writeTemp(t, "touched.txt", "same bytes")

	before, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	newTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, newTime, newTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	after, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if before == after {
		t.Error("fingerprint unchanged after mtime moved")
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestContextKeyShape(t *testing.T) {
	key := ContextKey("/some/context/file.md")
	if len(key) != keyLength {
		t.Fatalf("key length = %d, want %d", len(key), keyLength)
	}
	for _, r := range key {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("key %q contains non-hex rune %q", key, r)
		}
	}
	if ContextKey("/some/context/file.md") != key {
		t.Error("key is not deterministic")
	}
	if ContextKey("/another/file.md") == key {
		t.Error("distinct paths produced the same key")
	}
}

func TestGetContextRoundTrip(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, true)
	ctx := context.Background()
	path := writeTemp(t, "ctx.md", "context body")

	if err := c.PutContext(ctx, path, []byte("context body")); err != nil {
		t.Fatalf("PutContext: %v", err)
	}

	content, ok := c.GetContext(ctx, path)
	if !ok {
		t.Fatal("expected a context hit")
	}
	if string(content) != "context body" {
		t.Errorf("content = %q", content)
	}
}

func TestGetContextStaleFile(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, true)
	ctx := context.Background()
	path := writeTemp(t, "ctx.md", "original content")

	if err := c.PutContext(ctx, path, []byte("original content")); err != nil {
		t.Fatalf("PutContext: %v", err)
	}
	// A different size guarantees the fingerprint moves even on coarse
	// timestamp filesystems.
	if err := os.WriteFile(path, []byte("changed and noticeably longer content"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, ok := c.GetContext(ctx, path); ok {
		t.Fatal("stale context entry should miss")
	}

	stats := c.Stats(ctx)
	if stats.Invalidations < 1 {
		t.Errorf("Invalidations = %d, want at least 1", stats.Invalidations)
	}
	// The stale entry must be gone from both tiers, not just skipped.
	if _, _, ok := c.Get(ctx, ContextKey(path)); ok {
		t.Error("stale entry still retrievable after invalidation")
	}
}

func TestGetContextMissingFile(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, false)
	ctx := context.Background()
	path := writeTemp(t, "ctx.md", "here then gone")

	if err := c.PutContext(ctx, path, []byte("here then gone")); err != nil {
		t.Fatalf("PutContext: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, ok := c.GetContext(ctx, path); ok {
		t.Fatal("deleted file should miss")
	}
}

func TestPutContextMissingFile(t *testing.T) {
	c := newTestCache(t, config.CacheConfig{MaxEntries: 10}, false)

	err := c.PutContext(context.Background(), filepath.Join(t.TempDir(), "absent"), []byte("x"))
	if err == nil {
		t.Fatal("expected an error when the file cannot be fingerprinted")
	}
}
