package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"Friday_1.0/internal/cache/store"
	"Friday_1.0/internal/config"
	"Friday_1.0/pkg/logger"
	"Friday_1.0/pkg/util"
)

const (
	// compressionThreshold is the smallest content size considered for gzip.
	compressionThreshold = 1024
	// compressionKeepRatio keeps the compressed form only when it saves
	// at least a fifth of the original size.
	compressionKeepRatio = 0.8
)

// Entry is one fast-tier cache entry. Data may be gzip-compressed.
type Entry struct {
	Key         string
	Data        []byte
	Compressed  bool
	SizeBytes   int // uncompressed content size
	Fingerprint string
	CreatedAt   time.Time
}

// Content returns the uncompressed content of the entry.
func (e *Entry) Content() ([]byte, error) {
	if !e.Compressed {
		return e.Data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(e.Data))
	if err != nil {
		return nil, fmt.Errorf("open compressed entry: %w", err)
	}
	defer zr.Close()
	content, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress entry: %w", err)
	}
	return content, nil
}

// weight is the fast-tier accounting size: the stored (possibly
// compressed) bytes, so the byte ceiling reflects real memory use.
func (e *Entry) weight() int {
	if len(e.Data) == 0 {
		return 1
	}
	return len(e.Data)
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Hits                  int64   `json:"hits"`
	Misses                int64   `json:"misses"`
	Evictions             int64   `json:"evictions"`
	Promotions            int64   `json:"promotions"`
	Invalidations         int64   `json:"invalidations"`
	CompressionSavedBytes int64   `json:"compressionSavedBytes"`
	FastEntries           int     `json:"fastEntries"`
	FastBytes             int     `json:"fastBytes"`
	StoreEntries          int     `json:"storeEntries"`
	StoreBytes            int64   `json:"storeBytes"`
	HitRate               float64 `json:"hitRate"`
}

// Cache is the two-tier bounded content cache. The fast tier is an
// in-process LRU with count, byte and TTL ceilings; the persisted tier
// survives restarts. A miss anywhere is never an error: callers always
// fall back to recomputation.
type Cache struct {
	fast *util.LRUCache[string, *Entry]
	slow store.Store // nil when persistence is disabled
	ttl  time.Duration

	// counters are guarded by statsMu alone; no cache lock is ever
	// taken while holding it.
	statsMu       sync.Mutex
	hits          int64
	misses        int64
	evictions     int64
	promotions    int64
	invalidations int64
	saved         int64

	log *logger.Logger
}

// New builds the cache from configuration. The persisted tier may be nil.
func New(cfg config.CacheConfig, slow store.Store) (*Cache, error) {
	var ttl time.Duration
	if cfg.TTL != "" {
		parsed, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid cache ttl: %w", err)
		}
		ttl = parsed
	}

	c := &Cache{
		slow: slow,
		ttl:  ttl,
		log:  logger.New("Cache", ""),
	}

	fast, err := util.NewWithConfig(util.CacheConfig[string, *Entry]{
		Capacity:  cfg.MaxEntries,
		MaxWeight: cfg.MaxBytes,
		TTL:       ttl,
		OnEvict: func(string, *Entry) {
			c.bump(&c.evictions)
		},
	})
	if err != nil {
		return nil, err
	}
	c.fast = fast
	return c, nil
}

// Get returns the content and stored fingerprint for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, string, bool) {
	entry, ok := c.lookup(ctx, key)
	if !ok {
		c.bump(&c.misses)
		return nil, "", false
	}
	content, err := entry.Content()
	if err != nil {
		// A record that cannot be decompressed is useless in both tiers.
		c.Invalidate(ctx, key)
		c.bump(&c.misses)
		return nil, "", false
	}
	c.bump(&c.hits)
	return content, entry.Fingerprint, true
}

// Set stores content under key in both tiers. Content above the
// compression threshold is gzipped when that actually saves space.
// Persisted-tier failures are logged and ignored: the fast tier alone
// still serves the entry.
func (c *Cache) Set(ctx context.Context, key string, content []byte, fingerprint string) {
	data, compressed := maybeCompress(content)
	if compressed {
		c.addSaved(int64(len(content) - len(data)))
	}

	entry := &Entry{
		Key:         key,
		Data:        data,
		Compressed:  compressed,
		SizeBytes:   len(content),
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
	}
	c.fast.Put(key, entry, entry.weight())

	if c.slow != nil {
		if err := c.slow.Set(ctx, key, c.toRecord(entry)); err != nil {
			c.log.WithError(err).Warn("Persisted cache write failed")
		}
	}
}

// Invalidate removes key from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	removed := c.fast.Remove(key)
	if c.slow != nil {
		if err := c.slow.Delete(ctx, key); err != nil {
			c.log.WithError(err).Warn("Persisted cache delete failed")
		} else {
			removed = true
		}
	}
	if removed {
		c.bump(&c.invalidations)
	}
}

// SweepExpired purges expired entries from both tiers and returns how
// many were removed.
func (c *Cache) SweepExpired(ctx context.Context) int {
	removed := c.fast.ExpireNow()
	if c.slow != nil {
		pruned, err := c.slow.PruneExpired(ctx)
		if err != nil {
			c.log.WithError(err).Warn("Persisted cache prune failed")
		}
		removed += pruned
	}
	return removed
}

// Stats assembles a point-in-time snapshot of the cache counters and sizes.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.statsMu.Lock()
	s := Stats{
		Hits:                  c.hits,
		Misses:                c.misses,
		Evictions:             c.evictions,
		Promotions:            c.promotions,
		Invalidations:         c.invalidations,
		CompressionSavedBytes: c.saved,
	}
	c.statsMu.Unlock()

	s.FastEntries = c.fast.Len()
	s.FastBytes = c.fast.Weight()
	if c.slow != nil {
		if n, err := c.slow.Len(ctx); err == nil {
			s.StoreEntries = n
		}
		if b, err := c.slow.SizeBytes(ctx); err == nil {
			s.StoreBytes = b
		}
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Close releases the persisted tier, if any.
func (c *Cache) Close() error {
	if c.slow == nil {
		return nil
	}
	return c.slow.Close()
}

// lookup checks the fast tier, then the persisted tier, promoting a
// persisted hit into the fast tier. It does not touch the counters.
func (c *Cache) lookup(ctx context.Context, key string) (*Entry, bool) {
	if entry, ok := c.fast.Get(key); ok {
		return entry, true
	}

	if c.slow == nil {
		return nil, false
	}
	rec, err := c.slow.Get(ctx, key)
	if err != nil {
		if err != store.ErrNotFound {
			c.log.WithError(err).Warn("Persisted cache read failed; treating as miss")
		}
		return nil, false
	}

	entry := c.fromRecord(rec)
	c.fast.Put(key, entry, entry.weight())
	c.bump(&c.promotions)
	return entry, true
}

func (c *Cache) toRecord(entry *Entry) *store.Record {
	rec := &store.Record{
		Key:         entry.Key,
		Content:     entry.Data,
		Compressed:  entry.Compressed,
		SizeBytes:   entry.SizeBytes,
		Fingerprint: entry.Fingerprint,
		CreatedAt:   entry.CreatedAt,
	}
	if c.ttl > 0 {
		rec.ExpiresAt = entry.CreatedAt.Add(c.ttl)
	}
	return rec
}

func (c *Cache) fromRecord(rec *store.Record) *Entry {
	return &Entry{
		Key:         rec.Key,
		Data:        rec.Content,
		Compressed:  rec.Compressed,
		SizeBytes:   rec.SizeBytes,
		Fingerprint: rec.Fingerprint,
		CreatedAt:   rec.CreatedAt,
	}
}

func (c *Cache) bump(counter *int64) {
	c.statsMu.Lock()
	*counter++
	c.statsMu.Unlock()
}

func (c *Cache) addSaved(n int64) {
	c.statsMu.Lock()
	c.saved += n
	c.statsMu.Unlock()
}

// maybeCompress gzips content above the threshold, keeping the compressed
// form only when it is meaningfully smaller.
func maybeCompress(content []byte) ([]byte, bool) {
	if len(content) < compressionThreshold {
		return content, false
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		zw.Close()
		return content, false
	}
	if err := zw.Close(); err != nil {
		return content, false
	}

	if float64(buf.Len()) >= float64(len(content))*compressionKeepRatio {
		return content, false
	}
	return buf.Bytes(), true
}
