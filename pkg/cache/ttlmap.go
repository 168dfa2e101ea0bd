package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type ttlEntry struct {
	value     string
	expiresAt time.Time
}

func (e ttlEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// TTLMap is an in-process Store with per-entry expiry. Expired entries are
// dropped lazily on access and periodically by a sweeper.
type TTLMap struct {
	mu   sync.RWMutex
	data map[string]ttlEntry
	now  func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTTLMap creates a map and starts a sweeper running every sweepEvery.
// A non-positive sweepEvery disables the sweeper.
func NewTTLMap(sweepEvery time.Duration) *TTLMap {
	m := &TTLMap{
		data: make(map[string]ttlEntry),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	if sweepEvery > 0 {
		go m.sweep(sweepEvery)
	}
	return m
}

func (m *TTLMap) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return "", ErrNotFound
	}
	if entry.expired(m.now()) {
		m.mu.Lock()
		if current, ok := m.data[key]; ok && current.expired(m.now()) {
			delete(m.data, key)
		}
		m.mu.Unlock()
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *TTLMap) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = ttlEntry{value: value, expiresAt: m.expiry(expiration)}
	return nil
}

func (m *TTLMap) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Incr bumps an integer counter, creating it with the given expiration.
func (m *TTLMap) Incr(_ context.Context, key string, expiration time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, exists := m.data[key]
	if !exists || entry.expired(now) {
		m.data[key] = ttlEntry{value: "1", expiresAt: m.expiry(expiration)}
		return 1, nil
	}

	count, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, err
	}
	count++
	entry.value = strconv.FormatInt(count, 10)
	m.data[key] = entry
	return count, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *TTLMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Stop terminates the sweeper.
func (m *TTLMap) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *TTLMap) expiry(expiration time.Duration) time.Time {
	if expiration <= 0 {
		return time.Time{}
	}
	return m.now().Add(expiration)
}

func (m *TTLMap) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := m.now()
			m.mu.Lock()
			for k, e := range m.data {
				if e.expired(now) {
					delete(m.data, k)
				}
			}
			m.mu.Unlock()
		}
	}
}
