package rate

import (
	"context"
	"sync"
	"time"
)

// DefaultRetention is how long an idle bucket survives a sweep.
const DefaultRetention = 5 * time.Minute

type bucket struct {
	attempts []time.Time
	window   time.Duration
}

// Memory is an in-process Limiter. It is safe for concurrent use; each check
// runs as a single critical section.
type Memory struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	retention time.Duration
}

// NewMemory returns an empty limiter. A nil clock selects time.Now and a
// non-positive retention selects DefaultRetention.
func NewMemory(now func() time.Time, retention time.Duration) *Memory {
	if now == nil {
		now = time.Now
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{
		buckets:   make(map[string]*bucket),
		now:       now,
		retention: retention,
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, action, identifier string, rule Rule) error {
	if !rule.valid() {
		return ErrInvalidRule
	}

	key := bucketKey(action, identifier)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.buckets[key]
	if b == nil {
		b = &bucket{}
		m.buckets[key] = b
	}
	b.window = rule.Window

	kept := b.attempts[:0]
	for _, ts := range b.attempts {
		if now.Sub(ts) < rule.Window {
			kept = append(kept, ts)
		}
	}
	b.attempts = kept

	if len(b.attempts) >= rule.MaxAttempts {
		oldest := b.attempts[0]
		return newLimitError(action, oldest.Add(rule.Window).Sub(now))
	}

	b.attempts = append(b.attempts, now)
	return nil
}

// Sweep drops buckets that are empty or whose newest attempt is older than
// both the retention period and the bucket's own window. It returns the
// number of buckets removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, b := range m.buckets {
		if len(b.attempts) == 0 {
			delete(m.buckets, key)
			removed++
			continue
		}
		idle := now.Sub(b.attempts[len(b.attempts)-1])
		if idle > max(m.retention, b.window) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Run sweeps every interval until ctx is cancelled.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
