package cache

import "context"

// GetContext returns cached content for a context file, verifying the
// stored fingerprint against the file's current state. A stale or
// unreadable file evicts the entry from both tiers and reports a miss.
func (c *Cache) GetContext(ctx context.Context, path string) ([]byte, bool) {
	key := ContextKey(path)
	entry, ok := c.lookup(ctx, key)
	if !ok {
		c.bump(&c.misses)
		return nil, false
	}

	current, err := Fingerprint(path)
	if err != nil || current != entry.Fingerprint {
		c.Invalidate(ctx, key)
		c.bump(&c.misses)
		return nil, false
	}

	content, err := entry.Content()
	if err != nil {
		c.Invalidate(ctx, key)
		c.bump(&c.misses)
		return nil, false
	}
	c.bump(&c.hits)
	return content, true
}

// PutContext caches content read from a context file, keyed by path and
// fingerprinted against its current on-disk state.
func (c *Cache) PutContext(ctx context.Context, path string, content []byte) error {
	fp, err := Fingerprint(path)
	if err != nil {
		return err
	}
	c.Set(ctx, ContextKey(path), content, fp)
	return nil
}
