// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file implements the reconciliation syncer: the recurring background
// task that drains fast-store buffers into durable storage and republishes
// authoritative totals.
package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"engage/internal/engagement/relay"
	"engage/internal/engagement/telemetry"
)

const (
	DefaultViewSyncInterval = 30 * time.Second
	DefaultLikeSyncInterval = 60 * time.Second
)

// Syncer periodically flushes buffered counter deltas to durable storage.
//
// No cross-process lock coordinates multiple syncer instances. Two
// instances flushing the same key concurrently is safe for correctness
// because every durable write is a relative delta and the buffer is
// decremented by exactly the amount flushed; the only effect of a double
// flush is that each instance drains part of the buffer.
type Syncer struct {
	records RecordStore
	fast    CounterStore
	pub     relay.Publisher
	log     *slog.Logger

	viewInterval time.Duration
	likeInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
}

func NewSyncer(records RecordStore, fast CounterStore, pub relay.Publisher, log *slog.Logger, viewInterval, likeInterval time.Duration) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	if viewInterval <= 0 {
		viewInterval = DefaultViewSyncInterval
	}
	if likeInterval <= 0 {
		likeInterval = DefaultLikeSyncInterval
	}
	return &Syncer{
		records:      records,
		fast:         fast,
		pub:          pub,
		log:          log,
		viewInterval: viewInterval,
		likeInterval: likeInterval,
		stopChan:     make(chan struct{}),
	}
}

// Start launches one flush loop per counter kind.
func (s *Syncer) Start() {
	s.log.Info("starting reconciliation syncer",
		slog.Duration("view_interval", s.viewInterval),
		slog.Duration("like_interval", s.likeInterval),
	)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.loop(KindViews, s.viewInterval)
	}()
	go func() {
		defer s.wg.Done()
		s.loop(KindLikes, s.likeInterval)
	}()
}

// Stop cancels the loops cooperatively. An in-flight per-key flush runs to
// completion, and each loop performs one final drain so sub-interval
// remainders are not stranded in the buffers.
func (s *Syncer) Stop() {
	if !atomic.CompareAndSwapUint32(&s.stopped, 0, 1) {
		return
	}
	s.log.Info("stopping reconciliation syncer")
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Syncer) loop(kind string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.syncCounters(context.Background(), kind); err != nil {
				s.log.Error("sync cycle failed",
					slog.String("kind", kind),
					slog.String("error", err.Error()),
				)
			}
		case <-s.stopChan:
			// Final drain on shutdown.
			if err := s.syncCounters(context.Background(), kind); err != nil {
				s.log.Error("final sync failed",
					slog.String("kind", kind),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// SyncViewCounts runs one view flush cycle. Exported as the manual trigger
// hook for tests and operational tooling.
func (s *Syncer) SyncViewCounts(ctx context.Context) error {
	return s.syncCounters(ctx, KindViews)
}

// SyncLikeCounts runs one like flush cycle.
func (s *Syncer) SyncLikeCounts(ctx context.Context) error {
	return s.syncCounters(ctx, KindLikes)
}

// syncCounters scans every buffer key in the kind's namespace and flushes
// non-zero deltas. A per-key failure (store unavailable, malformed key,
// vanished entity) is logged and the scan continues; only a failure to
// enumerate keys aborts the cycle.
func (s *Syncer) syncCounters(ctx context.Context, kind string) error {
	start := time.Now()
	keys, err := s.fast.Keys(ctx, BufferPattern(kind))
	if err != nil {
		return err
	}

	var flushed, failed int
	for _, key := range keys {
		entityID, err := EntityFromBufferKey(kind, key)
		if err != nil {
			s.log.Warn("skipping malformed buffer key", slog.String("key", key))
			failed++
			continue
		}
		delta, found, err := s.fast.Get(ctx, key)
		if err != nil {
			s.log.Warn("buffer read failed", slog.String("key", key), slog.String("error", err.Error()))
			failed++
			continue
		}
		if !found || delta == 0 {
			continue
		}

		// The durable delta MUST land before the buffer reset. A crash
		// between the two leaves the delta in both places; the next cycle
		// (or a concurrent syncer) re-applies nothing because the buffer is
		// drained by exactly the flushed amount below. Resetting first
		// would silently drop the delta instead.
		if err := s.records.ApplyDelta(ctx, entityID, kind, delta); err != nil {
			telemetry.FlushErrors.WithLabelValues(kind).Inc()
			s.log.Warn("durable delta failed",
				slog.String("entity", entityID),
				slog.String("kind", kind),
				slog.Int64("delta", delta),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		total, err := s.records.GetCounter(ctx, entityID, kind)
		if err != nil {
			s.log.Warn("durable read-back failed", slog.String("entity", entityID), slog.String("error", err.Error()))
			failed++
			continue
		}
		if err := s.fast.Set(ctx, BaseKey(kind, entityID), total); err != nil {
			s.log.Warn("base refresh failed", slog.String("entity", entityID), slog.String("error", err.Error()))
			failed++
			continue
		}
		// Decrement by the flushed amount instead of overwriting with zero:
		// an increment that raced in after our read survives in the buffer
		// and lands next cycle, delayed but never lost.
		if _, err := s.fast.IncrBy(ctx, key, -delta); err != nil {
			s.log.Warn("buffer drain failed", slog.String("key", key), slog.String("error", err.Error()))
			failed++
			continue
		}

		ev := s.authoritativeEvent(kind, entityID, total)
		topic := s.topicFor(kind, entityID)
		if err := s.pub.Publish(ctx, topic, ev); err != nil {
			telemetry.PublishFailures.Inc()
			s.log.Warn("authoritative publish failed", slog.String("topic", topic), slog.String("error", err.Error()))
		}
		flushed++
	}

	telemetry.FlushKeys.WithLabelValues(kind).Add(float64(flushed))
	telemetry.FlushDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if flushed > 0 || failed > 0 {
		s.log.Info("sync cycle complete",
			slog.String("kind", kind),
			slog.Int("flushed", flushed),
			slog.Int("failed", failed),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}

func (s *Syncer) authoritativeEvent(kind, entityID string, total int64) relay.Event {
	if kind == KindLikes {
		return relay.NewLikeCount(entityID, total, false)
	}
	return relay.NewViewCount(entityID, total)
}

func (s *Syncer) topicFor(kind, entityID string) string {
	if kind == KindLikes {
		return relay.LikeTopic(entityID)
	}
	return relay.ViewTopic(entityID)
}
