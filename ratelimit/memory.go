package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	hits []time.Time
	size time.Duration
}

// Memory keeps request timestamps per key in process.
type Memory struct {
	mu   sync.Mutex
	keys map[string]*window
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{keys: map[string]*window{}, now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, size time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w := m.keys[key]
	if w == nil {
		w = &window{}
		m.keys[key] = w
	}
	w.size = size
	w.hits = recent(w.hits, now.Add(-size))
	if len(w.hits) >= limit {
		return false, nil
	}
	w.hits = append(w.hits, now)
	return true, nil
}

// Sweep forgets keys whose hits have all left their window and returns how
// many went.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, w := range m.keys {
		w.hits = recent(w.hits, now.Add(-w.size))
		if len(w.hits) == 0 {
			delete(m.keys, key)
			removed++
		}
	}
	return removed
}

// Len is the number of keys being tracked.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func recent(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
