// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package cache provides the TTL payload cache backing the event
// aggregator. Keys are opaque strings, payloads are serialized candidate
// lists, and every entry carries its own TTL so the aggregator can
// randomize expiry across entries (thundering-herd avoidance).
package cache

import (
	"sync"
	"time"

	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
)

// Store is the cache contract the aggregator depends on. Memory is the
// in-process implementation; tests substitute failing or pre-seeded fakes.
type Store interface {
	// Get returns the payload for key, or false when absent or expired.
	Get(key string) ([]byte, bool)

	// SetWithTTL stores payload under key, expiring after ttl.
	SetWithTTL(key string, payload []byte, ttl time.Duration)

	// TTLRemaining returns the time until key expires, or false when the
	// key is absent or already expired.
	TTLRemaining(key string) (time.Duration, bool)

	// Delete removes key. No-op when absent.
	Delete(key string)
}

// entry is a cached payload with its expiry.
type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// Memory is a thread-safe in-memory TTL cache. A background janitor
// removes expired entries on a fixed interval; expired entries are also
// dropped lazily on read, so correctness never depends on the janitor.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	statsMu sync.Mutex
	stats   Stats

	cleanupInterval time.Duration
	stop            chan struct{}
}

const defaultCleanupInterval = 5 * time.Minute

// NewMemory creates a Memory cache and starts its cleanup goroutine.
// A non-positive cleanupInterval takes the 5-minute default. Call Close
// when the cache is no longer needed.
func NewMemory(cleanupInterval time.Duration) *Memory {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	m := &Memory{
		entries:         make(map[string]entry),
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the payload for key if present and unexpired.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		m.recordMiss()
		return nil, false
	}

	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		m.recordMiss()
		m.recordEviction(1)
		return nil, false
	}

	m.recordHit()
	return e.payload, true
}

// SetWithTTL stores payload under key with the given TTL.
func (m *Memory) SetWithTTL(key string, payload []byte, ttl time.Duration) {
	m.mu.Lock()
	m.entries[key] = entry{
		payload:   payload,
		expiresAt: time.Now().Add(ttl),
	}
	total := int64(len(m.entries))
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.TotalKeys = total
	m.statsMu.Unlock()
	metrics.CacheEntries.Set(float64(total))
}

// TTLRemaining returns how long key has left before expiry.
func (m *Memory) TTLRemaining(key string) (time.Duration, bool) {
	m.mu.RLock()
	e, exists := m.entries[key]
	m.mu.RUnlock()

	if !exists {
		return 0, false
	}
	remaining := time.Until(e.expiresAt)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// Delete removes key from the cache.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	_, existed := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()

	if existed {
		m.recordEviction(1)
	}
}

// Clear removes all entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	evicted := int64(len(m.entries))
	m.entries = make(map[string]entry)
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Evictions += evicted
	m.stats.TotalKeys = 0
	m.statsMu.Unlock()
	metrics.CacheEntries.Set(0)
}

// GetStats returns a snapshot of the cache counters.
func (m *Memory) GetStats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// HitRate returns the hit percentage, or 0 before any lookups.
func (m *Memory) HitRate() float64 {
	s := m.GetStats()
	lookups := s.Hits + s.Misses
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(lookups) * 100
}

// Close stops the cleanup goroutine.
func (m *Memory) Close() {
	close(m.stop)
}

func (m *Memory) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

// cleanup removes all expired entries.
func (m *Memory) cleanup() {
	now := time.Now()
	var evicted int64

	m.mu.Lock()
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			evicted++
		}
	}
	total := int64(len(m.entries))
	m.mu.Unlock()

	m.statsMu.Lock()
	m.stats.Evictions += evicted
	m.stats.TotalKeys = total
	m.statsMu.Unlock()
	metrics.CacheEntries.Set(float64(total))
}

func (m *Memory) recordHit() {
	m.statsMu.Lock()
	m.stats.Hits++
	m.statsMu.Unlock()
	metrics.CacheHits.Inc()
}

func (m *Memory) recordMiss() {
	m.statsMu.Lock()
	m.stats.Misses++
	m.statsMu.Unlock()
	metrics.CacheMisses.Inc()
}

func (m *Memory) recordEviction(n int64) {
	m.statsMu.Lock()
	m.stats.Evictions += n
	m.statsMu.Unlock()
}
