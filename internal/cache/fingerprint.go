package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/djherbis/times"
)

// keyLength is the hex length of cache keys and fingerprints.
const keyLength = 32

// Fingerprint returns a short signature of a file's current on-disk state.
// It folds in the path, size, mtime and, where the platform exposes it,
// the inode change time, so a rewrite that restores the old mtime still
// changes the fingerprint.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())

	ts := times.Get(info)
	if ts.HasChangeTime() {
		fmt.Fprintf(h, "|%d", ts.ChangeTime().UnixNano())
	}

	return hex.EncodeToString(h.Sum(nil))[:keyLength], nil
}

// ContextKey derives the stable cache key for a context file path. The
// key identifies the path; the fingerprint decides whether the cached
// content is still current.
func ContextKey(path string) string {
	sum := sha256.Sum256([]byte("context|" + path))
	return hex.EncodeToString(sum[:])[:keyLength]
}
