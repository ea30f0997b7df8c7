package dedup

import (
	"context"
	"sync"
	"time"
)

// Memory is the single-process fallback used when no redis address is configured.
type Memory struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[string]time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[string]time.Time),
	}
}

func (m *Memory) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if expires, ok := m.claims[key]; ok && (m.ttl <= 0 || now.Before(expires)) {
		return false, nil
	}

	m.claims[key] = now.Add(m.ttl)

	return true, nil
}

func (m *Memory) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.claims, key)

	return nil
}
