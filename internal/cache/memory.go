package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vprism/vprism/internal/models"
)

// Memory is the in-process TTL cache tier. Entries expire by TTL band and
// are evicted least-recently-accessed first when the entry bound is hit.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	maxEntries int
	hits       int64
	misses     int64
	clock      func() time.Time
	stopCh     chan struct{}
	stopOnce   sync.Once
}

type memoryEntry struct {
	points   []models.DataPoint
	expires  time.Time
	accessed time.Time
}

// DefaultMaxEntries bounds the in-memory tier.
const DefaultMaxEntries = 10000

// NewMemory builds the in-memory tier and starts its expiry sweeper.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	m := &Memory{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		clock:      time.Now,
		stopCh:     make(chan struct{}),
	}
	go m.sweep()
	return m
}

// SetClock injects a timestamp source for tests.
func (m *Memory) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

func (m *Memory) Get(_ context.Context, q models.DataQuery) ([]models.DataPoint, bool) {
	key := Fingerprint(q)
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || m.clock().After(entry.expires) {
		m.misses++
		return nil, false
	}
	entry.accessed = m.clock()
	m.hits++
	out := make([]models.DataPoint, len(entry.points))
	copy(out, entry.points)
	return out, true
}

func (m *Memory) Set(_ context.Context, q models.DataQuery, points []models.DataPoint) {
	key := Fingerprint(q)
	stored := make([]models.DataPoint, len(points))
	copy(stored, points)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.maxEntries {
		m.evictLRU()
	}
	now := m.clock()
	m.entries[key] = &memoryEntry{
		points:   stored,
		expires:  now.Add(TTLFor(q.Timeframe)),
		accessed: now,
	}
}

func (m *Memory) Invalidate(_ context.Context, q models.DataQuery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, Fingerprint(q))
}

// Stats returns hit/miss counters and the live entry count.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Hits: m.hits, Misses: m.misses, Entries: len(m.entries)}
}

// Stop terminates the sweeper goroutine.
func (m *Memory) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// evictLRU removes the least recently accessed entry; caller holds the lock.
func (m *Memory) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for key, entry := range m.entries {
		if first || entry.accessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.accessed
			first = false
		}
	}
	if oldestKey != "" {
		delete(m.entries, oldestKey)
	}
}

func (m *Memory) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *Memory) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	for key, entry := range m.entries {
		if now.After(entry.expires) {
			delete(m.entries, key)
		}
	}
}
