// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package store persists unified events in BadgerDB so a region with
// every live source down can still serve recently seen results. It is a
// fallback tier, not a primary index: region queries scan the event
// keyspace and filter in memory, which is fine at fallback scale.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/fieldtrip-app/fieldtrip/internal/logging"
	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
	"github.com/fieldtrip-app/fieldtrip/internal/models"
)

const eventKeyPrefix = "event:"

// Store is a durable event store backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store. Used in tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes events keyed by provider identity, stamping each with
// the current time so freshness filtering works on read. Events without
// a venue are skipped; a fallback hit is only useful if it can be placed
// on the map.
func (s *Store) Upsert(ctx context.Context, events []models.UnifiedEvent) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now().UTC()

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			ev := events[i]
			if ev.Venue == nil {
				continue
			}
			ev.UpdatedAt = now

			data, err := json.Marshal(&ev)
			if err != nil {
				return fmt.Errorf("marshal event %s: %w", ev.Key(), err)
			}
			if err := txn.Set([]byte(eventKeyPrefix+ev.Key()), data); err != nil {
				return fmt.Errorf("set event %s: %w", ev.Key(), err)
			}
		}
		return nil
	})
}

// QueryRegion returns stored events inside bbox that were updated within
// the freshness window, ordered by popularity descending with unknown
// popularity last. Ties order by provider key so results are stable.
func (s *Store) QueryRegion(ctx context.Context, bbox models.BoundingBox, freshness time.Duration) ([]models.UnifiedEvent, error) {
	cutoff := time.Now().UTC().Add(-freshness)

	var results []models.UnifiedEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var ev models.UnifiedEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			})
			if err != nil {
				logging.Warn().Err(err).
					Str("key", string(it.Item().Key())).
					Msg("skipping unreadable stored event")
				continue
			}

			if ev.UpdatedAt.Before(cutoff) {
				continue
			}
			if ev.Venue == nil || !bbox.Contains(ev.Venue.Lat, ev.Venue.Lon) {
				continue
			}
			results = append(results, ev)
		}
		return nil
	})
	if err != nil {
		metrics.StoreFallbackQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("query region: %w", err)
	}
	if len(results) == 0 {
		metrics.StoreFallbackQueries.WithLabelValues("empty").Inc()
	} else {
		metrics.StoreFallbackQueries.WithLabelValues("hit").Inc()
	}

	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := results[i].Popularity, results[j].Popularity
		switch {
		case pi != nil && pj != nil && *pi != *pj:
			return *pi > *pj
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		default:
			return results[i].Key() < results[j].Key()
		}
	})
	return results, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// Prune deletes events whose last update is older than the retention
// window. Returns the number of deleted events.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var ev models.UnifiedEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			})
			if err != nil || ev.UpdatedAt.Before(cutoff) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan for stale events: %w", err)
	}

	count := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// StartMaintenanceRoutine prunes stale events and runs value-log GC on a
// timer until ctx is cancelled.
func (s *Store) StartMaintenanceRoutine(ctx context.Context, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.Prune(ctx, retention); err != nil {
					logging.Warn().Err(err).Msg("store prune failed")
				} else if n > 0 {
					logging.Debug().Int("pruned", n).Msg("pruned stale stored events")
				}
				// ErrNoRewrite just means there was nothing to collect.
				if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					logging.Warn().Err(err).Msg("badger value log GC failed")
				}
			}
		}
	}()
}
