package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryTier is the fast bounded in-process tier. Ristretto gives
// cost-based bounded storage with LRU-flavored eviction and per-shard
// locking, so unrelated persona builds never serialize on it.
type MemoryTier struct {
	cache *ristretto.Cache[string, []byte]
}

// NewMemoryTier creates a memory tier bounded to maxBytes of cached
// output.
func NewMemoryTier(maxBytes int64) (*MemoryTier, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("memory tier size must be positive, got %d", maxBytes)
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create memory tier: %w", err)
	}
	return &MemoryTier{cache: c}, nil
}

func (t *MemoryTier) Name() string { return "memory" }

func (t *MemoryTier) Get(key Key) ([]byte, bool, error) {
	value, ok := t.cache.Get(string(key))
	return value, ok, nil
}

func (t *MemoryTier) Set(key Key, value []byte) error {
	t.cache.Set(string(key), value, int64(len(value)))
	// Ristretto admits asynchronously; waiting keeps lookups that
	// immediately follow a store deterministic.
	t.cache.Wait()
	return nil
}

func (t *MemoryTier) Close() error {
	t.cache.Close()
	return nil
}
