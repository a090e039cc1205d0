package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DiskTier is the persistent on-disk tier, backed by BadgerDB with a
// per-entry TTL. The cache directory is disposable: deleting it at any
// time is equivalent to forcing a cold rebuild.
type DiskTier struct {
	db  *badger.DB
	ttl time.Duration
}

// NewDiskTier opens (or creates) the disk tier at dir. ttl of zero
// keeps entries until evicted by Badger's own garbage collection.
func NewDiskTier(dir string, ttl time.Duration) (*DiskTier, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithSyncWrites(false)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache db at %s: %w", dir, err)
	}
	return &DiskTier{db: db, ttl: ttl}, nil
}

func (t *DiskTier) Name() string { return "disk" }

func (t *DiskTier) Get(key Key) ([]byte, bool, error) {
	var value []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set writes one entry in a single transaction; Badger commits are
// atomic per key, so a partial render never becomes visible.
func (t *DiskTier) Set(key Key, value []byte) error {
	return t.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if t.ttl > 0 {
			entry = entry.WithTTL(t.ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (t *DiskTier) Close() error {
	return t.db.Close()
}
