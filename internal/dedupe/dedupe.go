// Package dedupe remembers external message ids so webhook redeliveries are
// processed once.
package dedupe

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultTTL is how long an id is remembered when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// ErrEmptyKey is returned when claiming an empty id.
var ErrEmptyKey = errors.New("dedupe: empty key")

// Store claims ids. Claim returns true the first time a key is seen within the TTL.
// Release forgets a claimed key so a later redelivery is processed again.
type Store interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Memory is an in-process Store. Expired ids are swept lazily.
type Memory struct {
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
	seen map[string]time.Time // key -> expiry
	ops  int
}

// NewMemory returns a Memory store remembering ids for ttl (DefaultTTL if <= 0).
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *Memory) Claim(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.ops++
	if m.ops%1024 == 0 {
		m.sweep(now)
	}
	if exp, ok := m.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[key] = now.Add(m.ttl)
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.seen, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) sweep(now time.Time) {
	for k, exp := range m.seen {
		if !now.Before(exp) {
			delete(m.seen, k)
		}
	}
}

// Len returns the number of remembered ids, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
