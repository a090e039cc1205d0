package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// SharedTier is the optional cross-machine tier: a plain directory of
// content-addressed files, typically on a mounted share. The engine
// performs no network I/O itself; reachability of the directory is the
// operator's concern.
type SharedTier struct {
	dir string
}

// NewSharedTier creates a shared tier rooted at dir.
func NewSharedTier(dir string) (*SharedTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create shared cache dir: %w", err)
	}
	return &SharedTier{dir: dir}, nil
}

func (t *SharedTier) Name() string { return "shared" }

// path fans entries out by key prefix to keep directories small.
func (t *SharedTier) path(key Key) string {
	k := string(key)
	return filepath.Join(t.dir, k[:2], k)
}

func (t *SharedTier) Get(key Key) ([]byte, bool, error) {
	data, err := os.ReadFile(t.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set writes atomically: temp file in the same directory, then rename.
// Readers on other machines see either nothing or the full entry.
func (t *SharedTier) Set(key Key, value []byte) error {
	dest := t.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (t *SharedTier) Close() error { return nil }
