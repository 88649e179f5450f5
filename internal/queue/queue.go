// Fieldtrip - Hyperlocal Event and Place Suggestions
// Copyright 2026 Fieldtrip Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fieldtrip-app/fieldtrip

// Package queue publishes background refresh jobs over Watermill when a
// region's live fan-out comes back empty. A worker elsewhere consumes
// the jobs and re-pulls sources once they recover, warming the store
// for the next request.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/fieldtrip-app/fieldtrip/internal/config"
	"github.com/fieldtrip-app/fieldtrip/internal/metrics"
)

// RefreshJob asks a background worker to re-pull every source for a
// region once sources recover.
type RefreshJob struct {
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	RadiusMeters int       `json:"radiusMeters"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// regionKey collapses nearby coordinates onto a ~11m grid so repeated
// requests for the same spot dedup to one job.
func regionKey(lat, lon float64, radiusMeters int) string {
	return fmt.Sprintf("%.4f:%.4f:%d", lat, lon, radiusMeters)
}

// Enqueuer publishes refresh jobs with per-region suppression: at most
// one job per region key within the dedup window.
type Enqueuer struct {
	publisher message.Publisher
	topic     string
	window    time.Duration

	mu     sync.Mutex
	recent map[string]time.Time
}

// NewEnqueuer wraps a Watermill publisher with region deduplication.
func NewEnqueuer(publisher message.Publisher, topic string, dedupWindow time.Duration) *Enqueuer {
	return &Enqueuer{
		publisher: publisher,
		topic:     topic,
		window:    dedupWindow,
		recent:    make(map[string]time.Time),
	}
}

// Enqueue publishes a refresh job for the region unless one was already
// published within the dedup window. Returns true when a job was sent.
func (e *Enqueuer) Enqueue(ctx context.Context, lat, lon float64, radiusMeters int) (bool, error) {
	key := regionKey(lat, lon, radiusMeters)
	now := time.Now()

	e.mu.Lock()
	if at, ok := e.recent[key]; ok && now.Sub(at) < e.window {
		e.mu.Unlock()
		metrics.RefreshJobsSuppressed.Inc()
		return false, nil
	}
	e.recent[key] = now
	// Drop expired entries while we hold the lock so the map does not
	// grow with every unique region ever seen.
	for k, at := range e.recent {
		if now.Sub(at) >= e.window {
			delete(e.recent, k)
		}
	}
	e.mu.Unlock()

	job := RefreshJob{
		Lat:          lat,
		Lon:          lon,
		RadiusMeters: radiusMeters,
		RequestedAt:  now.UTC(),
	}
	data, err := json.Marshal(&job)
	if err != nil {
		return false, fmt.Errorf("marshal refresh job: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set("region", key)
	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	if err := e.publisher.Publish(e.topic, msg); err != nil {
		// Let the next request retry instead of suppressing it.
		e.mu.Lock()
		delete(e.recent, key)
		e.mu.Unlock()
		return false, fmt.Errorf("publish refresh job for %s: %w", key, err)
	}

	metrics.RefreshJobsEnqueued.Inc()
	return true, nil
}

// Close closes the underlying publisher.
func (e *Enqueuer) Close() error {
	return e.publisher.Close()
}

// NewNATSPublisher creates a Watermill NATS publisher with reconnection
// handling and JetStream message-id deduplication.
func NewNATSPublisher(cfg config.QueueConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}

// DecodeJob unmarshals a refresh job from a Watermill message. Workers
// use it on the consuming side.
func DecodeJob(msg *message.Message) (RefreshJob, error) {
	var job RefreshJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return RefreshJob{}, fmt.Errorf("decode refresh job %s: %w", msg.UUID, err)
	}
	return job, nil
}
