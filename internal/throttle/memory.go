package throttle

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	failures int
	expires  time.Time
}

type Memory struct {
	mu        sync.Mutex
	opts      Options
	counters  map[string]counter
	lastSweep time.Time
	now       func() time.Time
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:     opts.normalized(),
		counters: map[string]counter{},
		now:      time.Now,
	}
}

func (m *Memory) Check(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.current(key)
	if ok && c.failures >= m.opts.MaxAttempts {
		return ErrLocked
	}
	return nil
}

func (m *Memory) Fail(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	c, ok := m.current(key)
	if !ok {
		c = counter{expires: m.now().Add(m.opts.Window)}
	}
	c.failures++
	m.counters[key] = c
	return nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.counters, key)
	m.mu.Unlock()
	return nil
}

// sweep removes expired counters at most once per window.
func (m *Memory) sweep() {
	now := m.now()
	if now.Sub(m.lastSweep) < m.opts.Window {
		return
	}
	for key, c := range m.counters {
		if !now.Before(c.expires) {
			delete(m.counters, key)
		}
	}
	m.lastSweep = now
}

func (m *Memory) current(key string) (counter, bool) {
	c, ok := m.counters[key]
	if !ok {
		return counter{}, false
	}
	if !m.now().Before(c.expires) {
		delete(m.counters, key)
		return counter{}, false
	}
	return c, true
}
