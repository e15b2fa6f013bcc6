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

// This file implements the counter aggregation service: the increment,
// toggle and query operations the (out-of-scope) HTTP layer calls into.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"engage/internal/engagement/relay"
	"engage/internal/engagement/telemetry"
)

// LikeResult is the outcome of a toggle. Success=false marks a benign
// conflict race, not a failure: the returned IsLiked/LikeCount reflect the
// state re-queried after the lost write.
type LikeResult struct {
	IsLiked   bool  `json:"isLiked"`
	LikeCount int64 `json:"likeCount"`
	Success   bool  `json:"success"`
}

// Service aggregates view and like counters.
//
// Views are extremely high-frequency and tolerate eventual consistency, so
// they are fully buffered in the fast store and flushed by the Syncer.
// Likes are lower-frequency and need existence queries, so they hit durable
// storage directly; the fast store only carries their broadcast base.
type Service struct {
	records RecordStore
	likes   LikeStore
	fast    CounterStore
	vips    SetStore
	pub     relay.Publisher
	log     *slog.Logger
}

func NewService(records RecordStore, likes LikeStore, fast CounterStore, vips SetStore, pub relay.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{records: records, likes: likes, fast: fast, vips: vips, pub: pub, log: log}
}

// IncrementView buffers one view for the entity and returns the computed
// total (base + buffer). The hot path never writes durable storage; the
// Syncer drains the buffer later.
func (s *Service) IncrementView(ctx context.Context, entityID string) (int64, error) {
	baseKey := BaseKey(KindViews, entityID)
	base, found, err := s.fast.Get(ctx, baseKey)
	if err != nil {
		return 0, fmt.Errorf("read view base for %s: %w", entityID, err)
	}
	if !found {
		// First sight of this entity since the base was last dropped: seed
		// the cache from the durable record. A racing seed writes the same
		// value, so last-write-wins is harmless.
		base, err = s.records.GetCounter(ctx, entityID, KindViews)
		if err != nil {
			return 0, err
		}
		if err := s.fast.Set(ctx, baseKey, base); err != nil {
			return 0, fmt.Errorf("seed view base for %s: %w", entityID, err)
		}
	}

	buffered, err := s.fast.IncrBy(ctx, BufferKey(KindViews, entityID), 1)
	if err != nil {
		return 0, fmt.Errorf("buffer view for %s: %w", entityID, err)
	}
	total := base + buffered
	telemetry.ViewIncrements.Inc()

	s.publish(ctx, relay.ViewTopic(entityID), relay.NewViewCount(entityID, total))
	return total, nil
}

// ToggleLike flips the like relation for (entityID, userID) and keeps the
// durable like counter in step. A concurrent double-toggle losing the
// uniqueness race reports Success=false with the re-queried state; it never
// raises.
func (s *Service) ToggleLike(ctx context.Context, entityID, userID string) (LikeResult, error) {
	var res LikeResult

	liked, err := s.likes.Exists(ctx, entityID, userID)
	if err != nil {
		return res, fmt.Errorf("query like %s/%s: %w", entityID, userID, err)
	}

	if liked {
		switch err := s.likes.Delete(ctx, entityID, userID); {
		case errors.Is(err, ErrNotFound):
			// Another toggle deleted it first. Resolve by re-query.
			if res.IsLiked, err = s.likes.Exists(ctx, entityID, userID); err != nil {
				return res, err
			}
			telemetry.LikeToggles.WithLabelValues("conflict").Inc()
		case err != nil:
			return res, err
		default:
			if err := s.records.ApplyDelta(ctx, entityID, KindLikes, -1); err != nil {
				return res, err
			}
			res.IsLiked = false
			res.Success = true
			telemetry.LikeToggles.WithLabelValues("off").Inc()
		}
	} else {
		switch err := s.likes.Create(ctx, entityID, userID); {
		case errors.Is(err, ErrConflict):
			if res.IsLiked, err = s.likes.Exists(ctx, entityID, userID); err != nil {
				return res, err
			}
			telemetry.LikeToggles.WithLabelValues("conflict").Inc()
		case err != nil:
			return res, err
		default:
			if err := s.records.ApplyDelta(ctx, entityID, KindLikes, 1); err != nil {
				return res, err
			}
			// Liking an entity earns a seat in its VIP set. Failure here
			// must not undo the like; notifications are advisory.
			if _, err := s.vips.AddIfAbsent(ctx, VIPKey(entityID), userID); err != nil {
				s.log.Warn("vip add failed",
					slog.String("entity", entityID),
					slog.String("user", userID),
					slog.String("error", err.Error()),
				)
			}
			res.IsLiked = true
			res.Success = true
			telemetry.LikeToggles.WithLabelValues("on").Inc()
		}
	}

	res.LikeCount, err = s.records.GetCounter(ctx, entityID, KindLikes)
	if err != nil {
		return res, err
	}

	// Refresh the broadcast base. The fast store is not the source of truth
	// for likes, so a failed refresh only staggers the live count.
	if err := s.fast.Set(ctx, BaseKey(KindLikes, entityID), res.LikeCount); err != nil {
		s.log.Warn("like base refresh failed",
			slog.String("entity", entityID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, relay.LikeTopic(entityID), relay.NewLikeCount(entityID, res.LikeCount, res.IsLiked))
	return res, nil
}

// IsLikedByUser is a pure durable read; likes are low-frequency enough that
// no caching is warranted.
func (s *Service) IsLikedByUser(ctx context.Context, entityID, userID string) (bool, error) {
	return s.likes.Exists(ctx, entityID, userID)
}

// GetLikeCount returns the authoritative like count.
func (s *Service) GetLikeCount(ctx context.Context, entityID string) (int64, error) {
	return s.records.GetCounter(ctx, entityID, KindLikes)
}

// publish is the best-effort broadcast: a transport failure is logged and
// counted, never returned to the mutation that triggered it.
func (s *Service) publish(ctx context.Context, topic string, ev relay.Event) {
	if err := s.pub.Publish(ctx, topic, ev); err != nil {
		telemetry.PublishFailures.Inc()
		s.log.Warn("publish failed",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}
