package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type window struct {
	start time.Time
	count int
}

// Memory is a process-local limiter. The LRU bounds memory under key churn;
// Sweep drops windows that have already expired.
type Memory struct {
	mu     sync.Mutex
	cache  *lru.Cache
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewMemory(limit int, per time.Duration, maxKeys int) (*Memory, error) {
	cache, err := lru.New(maxKeys)
	if err != nil {
		return nil, err
	}
	return &Memory{cache: cache, limit: limit, window: per, now: time.Now}, nil
}

var _ Limiter = (*Memory)(nil)

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	w := &window{start: now}
	if v, ok := m.cache.Get(key); ok {
		if cur := v.(*window); now.Sub(cur.start) < m.window {
			w = cur
		}
	}
	w.count++
	m.cache.Add(key, w)
	return w.count <= m.limit, nil
}

// Sweep removes expired windows and returns how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, k := range m.cache.Keys() {
		v, ok := m.cache.Peek(k)
		if !ok {
			continue
		}
		if now.Sub(v.(*window).start) >= m.window {
			m.cache.Remove(k)
			n++
		}
	}
	return n
}

// Run sweeps on every tick until ctx is done.
func (m *Memory) Run(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *Memory) Len() int { return m.cache.Len() }
