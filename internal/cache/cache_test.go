// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestCacheRoundTrip(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	payload := []byte(`[{"provider":"ticketmaster","providerId":"tm-1"}]`)
	m.SetWithTTL("events:37.7749:-122.4194:5000", payload, time.Minute)

	got, ok := m.Get("events:37.7749:-122.4194:5000")
	if !ok {
		t.Fatal("expected cache hit within TTL")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %q, want %q", got, payload)
	}
}

func TestCacheMissOnAbsentKey(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	if _, ok := m.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCacheExpiry(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.SetWithTTL("key", []byte("payload"), 50*time.Millisecond)

	if _, ok := m.Get("key"); !ok {
		t.Fatal("expected hit immediately after set")
	}

	time.Sleep(80 * time.Millisecond)

	if _, ok := m.Get("key"); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestTTLRemaining(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.SetWithTTL("key", []byte("payload"), time.Minute)

	remaining, ok := m.TTLRemaining("key")
	if !ok {
		t.Fatal("expected TTL for live key")
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Errorf("remaining TTL out of range: %v", remaining)
	}

	if _, ok := m.TTLRemaining("absent"); ok {
		t.Error("expected no TTL for absent key")
	}
}

func TestTTLRemainingExpired(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.SetWithTTL("key", []byte("payload"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := m.TTLRemaining("key"); ok {
		t.Error("expected no TTL once entry expired")
	}
}

func TestDelete(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.SetWithTTL("key", []byte("payload"), time.Minute)
	m.Delete("key")

	if _, ok := m.Get("key"); ok {
		t.Error("expected miss after delete")
	}

	// Deleting an absent key must not panic.
	m.Delete("absent")
}

func TestClear(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.SetWithTTL("a", []byte("1"), time.Minute)
	m.SetWithTTL("b", []byte("2"), time.Minute)
	m.Clear()

	if _, ok := m.Get("a"); ok {
		t.Error("expected miss after clear")
	}
	if stats := m.GetStats(); stats.TotalKeys != 0 {
		t.Errorf("expected 0 keys after clear, got %d", stats.TotalKeys)
	}
}

func TestStatsAndHitRate(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.SetWithTTL("key", []byte("payload"), time.Minute)
	m.Get("key")    // hit
	m.Get("absent") // miss

	stats := m.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit and 1 miss", stats)
	}
	if rate := m.HitRate(); rate != 50 {
		t.Errorf("HitRate() = %v, want 50", rate)
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	m.SetWithTTL("stale", []byte("payload"), time.Millisecond)
	m.SetWithTTL("fresh", []byte("payload"), time.Minute)
	time.Sleep(10 * time.Millisecond)

	m.cleanup()

	stats := m.GetStats()
	if stats.TotalKeys != 1 {
		t.Errorf("expected 1 key after cleanup, got %d", stats.TotalKeys)
	}
}

func TestCleanupIntervalConfigurable(t *testing.T) {
	m := NewMemory(20 * time.Millisecond)
	defer m.Close()

	if m.cleanupInterval != 20*time.Millisecond {
		t.Errorf("cleanupInterval = %v, want 20ms", m.cleanupInterval)
	}

	m.SetWithTTL("stale", []byte("payload"), time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		m.mu.RLock()
		_, exists := m.entries["stale"]
		m.mu.RUnlock()
		if !exists {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("janitor did not remove the expired entry")
}

func TestCleanupIntervalDefault(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	if m.cleanupInterval != defaultCleanupInterval {
		t.Errorf("cleanupInterval = %v, want %v", m.cleanupInterval, defaultCleanupInterval)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				m.SetWithTTL("shared", []byte("payload"), time.Minute)
				m.Get("shared")
				m.TTLRemaining("shared")
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
