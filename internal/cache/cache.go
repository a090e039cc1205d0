package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"personaforge/internal/logging"
)

// Tier is one cache storage layer. Tiers never fail a build: the
// manager converts tier errors into misses.
type Tier interface {
	Name() string
	Get(key Key) ([]byte, bool, error)
	Set(key Key, value []byte) error
	Close() error
}

// IOError wraps a tier failure. Recoverable: the affected lookup or
// store degrades to a miss and the warning surfaces in the report.
type IOError struct {
	Tier string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache tier %s: %s failed: %v", e.Tier, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Stats counts cache activity across a run. Hit counters are per-tier,
// indexed the same as the manager's tier list.
type Stats struct {
	Hits   []uint64
	Misses uint64
	Stores uint64
}

// Manager probes tiers fastest-first and promotes hits upward. Safe
// for concurrent use: tiers shard internally and the manager itself
// only touches atomic counters and a warning list.
type Manager struct {
	tiers []Tier

	hits   []atomic.Uint64
	misses atomic.Uint64
	stores atomic.Uint64

	warnMu   sync.Mutex
	warnings []string
}

// NewManager builds a manager over the given tiers, ordered fastest
// first. Zero tiers is valid and behaves as always-miss.
func NewManager(tiers ...Tier) *Manager {
	return &Manager{
		tiers: tiers,
		hits:  make([]atomic.Uint64, len(tiers)),
	}
}

// Lookup probes each tier in order. A hit in a slower tier is written
// back to every faster tier before returning. Tier errors degrade to
// misses.
func (m *Manager) Lookup(key Key) (Entry, bool) {
	for i, tier := range m.tiers {
		data, ok, err := tier.Get(key)
		if err != nil {
			m.warn(&IOError{Tier: tier.Name(), Op: "get", Err: err})
			continue
		}
		if !ok {
			continue
		}

		entry, err := decodeEntry(data)
		if err != nil {
			m.warn(&IOError{Tier: tier.Name(), Op: "decode", Err: err})
			continue
		}

		m.hits[i].Add(1)
		logging.Get(logging.CategoryCache).Debug("Hit in tier %s for %s", tier.Name(), short(key))

		// Promote into faster tiers.
		for j := 0; j < i; j++ {
			if err := m.tiers[j].Set(key, data); err != nil {
				m.warn(&IOError{Tier: m.tiers[j].Name(), Op: "promote", Err: err})
			}
		}
		return entry, true
	}

	m.misses.Add(1)
	logging.Get(logging.CategoryCache).Debug("Miss for %s", short(key))
	return Entry{}, false
}

// Store writes an entry to every tier. Writes to distinct keys are
// independent; a duplicate store carries identical bytes by
// construction of the key, so races between workers are harmless.
func (m *Manager) Store(key Key, entry Entry) {
	data := encodeEntry(entry)
	for _, tier := range m.tiers {
		if err := tier.Set(key, data); err != nil {
			m.warn(&IOError{Tier: tier.Name(), Op: "set", Err: err})
		}
	}
	m.stores.Add(1)
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		Hits:   make([]uint64, len(m.tiers)),
		Misses: m.misses.Load(),
		Stores: m.stores.Load(),
	}
	for i := range m.hits {
		s.Hits[i] = m.hits[i].Load()
	}
	return s
}

// TierNames returns tier names in probe order.
func (m *Manager) TierNames() []string {
	names := make([]string, len(m.tiers))
	for i, t := range m.tiers {
		names[i] = t.Name()
	}
	return names
}

// DrainWarnings returns and clears accumulated tier warnings.
func (m *Manager) DrainWarnings() []string {
	m.warnMu.Lock()
	defer m.warnMu.Unlock()
	out := m.warnings
	m.warnings = nil
	return out
}

// Close closes every tier, returning the first error.
func (m *Manager) Close() error {
	var first error
	for _, tier := range m.tiers {
		if err := tier.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) warn(err *IOError) {
	logging.Get(logging.CategoryCache).Warn("%v", err)
	m.warnMu.Lock()
	m.warnings = append(m.warnings, err.Error())
	m.warnMu.Unlock()
}

func short(key Key) string {
	if len(key) > 12 {
		return string(key[:12])
	}
	return string(key)
}
