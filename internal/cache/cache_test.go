package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTier is an in-memory tier with injectable failures.
type fakeTier struct {
	name   string
	data   map[Key][]byte
	getErr error
	setErr error
}

func newFakeTier(name string) *fakeTier {
	return &fakeTier{name: name, data: make(map[Key][]byte)}
}

func (t *fakeTier) Name() string { return t.name }

func (t *fakeTier) Get(key Key) ([]byte, bool, error) {
	if t.getErr != nil {
		return nil, false, t.getErr
	}
	v, ok := t.data[key]
	return v, ok, nil
}

func (t *fakeTier) Set(key Key, value []byte) error {
	if t.setErr != nil {
		return t.setErr
	}
	t.data[key] = value
	return nil
}

func (t *fakeTier) Close() error { return nil }

func testEntry(output string) Entry {
	return Entry{Output: []byte(output), StoredAt: time.Unix(0, 1000)}
}

func TestManager_Lookup(t *testing.T) {
	key := ComputeKey("p", []string{"t1"}, "tpl")

	t.Run("miss on empty tiers", func(t *testing.T) {
		m := NewManager(newFakeTier("fast"), newFakeTier("slow"))
		_, ok := m.Lookup(key)
		assert.False(t, ok)

		stats := m.Stats()
		assert.Equal(t, uint64(1), stats.Misses)
		assert.Equal(t, []uint64{0, 0}, stats.Hits)
	})

	t.Run("hit in first tier", func(t *testing.T) {
		fast := newFakeTier("fast")
		m := NewManager(fast, newFakeTier("slow"))
		m.Store(key, testEntry("out"))

		entry, ok := m.Lookup(key)
		require.True(t, ok)
		assert.Equal(t, []byte("out"), entry.Output)
		assert.Equal(t, []uint64{1, 0}, m.Stats().Hits)
	})

	t.Run("hit in slow tier promotes to fast", func(t *testing.T) {
		fast := newFakeTier("fast")
		slow := newFakeTier("slow")
		m := NewManager(fast, slow)

		slow.data[key] = encodeEntry(testEntry("out"))
		require.Empty(t, fast.data)

		entry, ok := m.Lookup(key)
		require.True(t, ok)
		assert.Equal(t, []byte("out"), entry.Output)
		assert.Contains(t, fast.data, key)
		assert.Equal(t, []uint64{0, 1}, m.Stats().Hits)

		// Next lookup lands in the fast tier.
		_, ok = m.Lookup(key)
		require.True(t, ok)
		assert.Equal(t, []uint64{1, 1}, m.Stats().Hits)
	})

	t.Run("failing tier degrades to the next one", func(t *testing.T) {
		broken := newFakeTier("broken")
		broken.getErr = errors.New("disk on fire")
		slow := newFakeTier("slow")
		slow.data[key] = encodeEntry(testEntry("out"))

		m := NewManager(broken, slow)
		entry, ok := m.Lookup(key)
		require.True(t, ok)
		assert.Equal(t, []byte("out"), entry.Output)

		warnings := m.DrainWarnings()
		require.NotEmpty(t, warnings)
		assert.Contains(t, warnings[0], "broken")
		assert.Contains(t, warnings[0], "disk on fire")
	})

	t.Run("all tiers failing is a miss not an error", func(t *testing.T) {
		broken := newFakeTier("broken")
		broken.getErr = errors.New("nope")
		m := NewManager(broken)

		_, ok := m.Lookup(key)
		assert.False(t, ok)
		assert.Equal(t, uint64(1), m.Stats().Misses)
		assert.NotEmpty(t, m.DrainWarnings())
	})

	t.Run("corrupt entry degrades to miss", func(t *testing.T) {
		tier := newFakeTier("corrupt")
		tier.data[key] = []byte{1, 2}
		m := NewManager(tier)

		_, ok := m.Lookup(key)
		assert.False(t, ok)
		assert.NotEmpty(t, m.DrainWarnings())
	})

	t.Run("zero tiers always miss", func(t *testing.T) {
		m := NewManager()
		_, ok := m.Lookup(key)
		assert.False(t, ok)
		m.Store(key, testEntry("out"))
		_, ok = m.Lookup(key)
		assert.False(t, ok)
	})
}

func TestManager_Store(t *testing.T) {
	key := ComputeKey("p", nil, "tpl")

	t.Run("writes every tier", func(t *testing.T) {
		fast := newFakeTier("fast")
		slow := newFakeTier("slow")
		m := NewManager(fast, slow)

		m.Store(key, testEntry("out"))
		assert.Contains(t, fast.data, key)
		assert.Contains(t, slow.data, key)
		assert.Equal(t, uint64(1), m.Stats().Stores)
	})

	t.Run("a failing tier does not block the others", func(t *testing.T) {
		broken := newFakeTier("broken")
		broken.setErr = errors.New("full")
		slow := newFakeTier("slow")
		m := NewManager(broken, slow)

		m.Store(key, testEntry("out"))
		assert.Contains(t, slow.data, key)
		assert.NotEmpty(t, m.DrainWarnings())
	})
}

func TestManager_DrainWarnings(t *testing.T) {
	broken := newFakeTier("broken")
	broken.getErr = errors.New("x")
	m := NewManager(broken)

	m.Lookup(ComputeKey("p", nil, "t"))
	assert.NotEmpty(t, m.DrainWarnings())
	assert.Empty(t, m.DrainWarnings())
}

func TestManager_TierNames(t *testing.T) {
	m := NewManager(newFakeTier("memory"), newFakeTier("disk"), newFakeTier("shared"))
	assert.Equal(t, []string{"memory", "disk", "shared"}, m.TierNames())
}

// lockedTier wraps a fakeTier for use from multiple goroutines.
type lockedTier struct {
	mu    sync.Mutex
	inner *fakeTier
}

func (t *lockedTier) Name() string { return t.inner.name }

func (t *lockedTier) Get(key Key) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Get(key)
}

func (t *lockedTier) Set(key Key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.Set(key, value)
}

func (t *lockedTier) Close() error { return nil }

func TestManager_Concurrent(t *testing.T) {
	m := NewManager(&lockedTier{inner: newFakeTier("locked")})
	key := ComputeKey("p", nil, "t")
	entry := testEntry("out")

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				m.Store(key, entry)
				if got, ok := m.Lookup(key); ok {
					if string(got.Output) != "out" {
						t.Error("unexpected cached output")
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	stats := m.Stats()
	assert.Equal(t, uint64(800), stats.Stores)
}
