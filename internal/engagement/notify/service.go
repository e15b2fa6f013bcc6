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

// Package notify implements activity-notification fan-out: each entity
// keeps a VIP set of users who interacted with it, and qualifying events
// append a record to every VIP's bounded recent-history list plus a publish
// on their personal topic.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"engage/internal/engagement/core"
	"engage/internal/engagement/relay"
	"engage/internal/engagement/telemetry"
)

// DefaultMaxHistory bounds a recipient's notification list.
const DefaultMaxHistory = 50

// Notification is one per-recipient activity record. JSON field names are
// the stored/wire format consumed by existing clients.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	EntityID  string    `json:"videoId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Service fans events out to interested users.
type Service struct {
	vips       core.SetStore
	lists      core.ListStore
	pub        relay.Publisher
	log        *slog.Logger
	maxHistory int64
}

func NewService(vips core.SetStore, lists core.ListStore, pub relay.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{vips: vips, lists: lists, pub: pub, log: log, maxHistory: DefaultMaxHistory}
}

// NotifyInterestedUsers delivers message to every VIP of the entity except
// the acting user. It returns how many recipients were notified. A failure
// for one recipient (serialization, store write) is logged and the loop
// continues; fan-out is advisory and never aborts.
func (s *Service) NotifyInterestedUsers(ctx context.Context, entityID, actorID, message string) (int, error) {
	members, err := s.vips.Members(ctx, core.VIPKey(entityID))
	if err != nil {
		return 0, fmt.Errorf("read vip set for %s: %w", entityID, err)
	}

	sent := 0
	for _, userID := range members {
		if userID == actorID {
			continue
		}
		n := Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			EntityID:  entityID,
			Message:   message,
			Timestamp: time.Now().UTC(),
			Read:      false,
		}
		raw, err := json.Marshal(n)
		if err != nil {
			telemetry.FanoutErrors.Inc()
			s.log.Warn("notification marshal failed", slog.String("user", userID), slog.String("error", err.Error()))
			continue
		}
		listKey := core.NotificationsKey(userID)
		if err := s.lists.Append(ctx, listKey, string(raw)); err != nil {
			telemetry.FanoutErrors.Inc()
			s.log.Warn("notification append failed", slog.String("user", userID), slog.String("error", err.Error()))
			continue
		}
		if err := s.lists.Trim(ctx, listKey, -s.maxHistory, -1); err != nil {
			// The record landed; an over-long list self-corrects on the
			// next trim.
			s.log.Warn("notification trim failed", slog.String("user", userID), slog.String("error", err.Error()))
		}
		if err := s.pub.Publish(ctx, relay.UserTopic(userID), relay.NewNotification(userID, entityID, message)); err != nil {
			telemetry.PublishFailures.Inc()
			s.log.Warn("notification publish failed", slog.String("user", userID), slog.String("error", err.Error()))
		}
		telemetry.NotificationsSent.Inc()
		sent++
	}
	return sent, nil
}

// RecordComment handles the engagement side of a new comment: broadcast the
// comment event, add the commenter to the entity's VIP set, then notify the
// existing VIPs. Comment persistence itself belongs to the relational layer
// outside this core.
func (s *Service) RecordComment(ctx context.Context, entityID, userID, preview string) error {
	if err := s.pub.Publish(ctx, relay.CommentTopic(entityID), relay.NewComment(entityID, userID, preview)); err != nil {
		telemetry.PublishFailures.Inc()
		s.log.Warn("comment publish failed", slog.String("entity", entityID), slog.String("error", err.Error()))
	}

	wasNew, err := s.vips.AddIfAbsent(ctx, core.VIPKey(entityID), userID)
	if err != nil {
		return fmt.Errorf("vip add for %s: %w", entityID, err)
	}
	if wasNew {
		s.log.Debug("user added to vip set", slog.String("entity", entityID), slog.String("user", userID))
	}

	message := fmt.Sprintf("User %s commented on video %s", userID, entityID)
	_, err = s.NotifyInterestedUsers(ctx, entityID, userID, message)
	return err
}

// Notifications returns the recipient's recent history, oldest first. An
// entry that fails to parse yields a placeholder record rather than failing
// the whole read.
func (s *Service) Notifications(ctx context.Context, userID string) ([]Notification, error) {
	raws, err := s.lists.RangeAll(ctx, core.NotificationsKey(userID))
	if err != nil {
		return nil, fmt.Errorf("read notifications for %s: %w", userID, err)
	}
	out := make([]Notification, 0, len(raws))
	for _, raw := range raws {
		var n Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			s.log.Warn("notification parse failed", slog.String("user", userID), slog.String("error", err.Error()))
			out = append(out, Notification{Message: "Error parsing notification"})
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkRead flips the read flag of the notification at the given position.
//
// Known race, preserved deliberately: the index is positional into a list
// that concurrent appends and trims may shift between our read and the
// write-back, so under contention the flag can land on a neighboring (or
// no) record. Fixing this needs an id-addressed store, which changes the
// client contract.
func (s *Service) MarkRead(ctx context.Context, userID string, index int64) error {
	listKey := core.NotificationsKey(userID)
	raws, err := s.lists.RangeAll(ctx, listKey)
	if err != nil {
		return fmt.Errorf("read notifications for %s: %w", userID, err)
	}
	if index < 0 || index >= int64(len(raws)) {
		return fmt.Errorf("notification %d for %s: %w", index, userID, core.ErrNotFound)
	}

	var n Notification
	if err := json.Unmarshal([]byte(raws[index]), &n); err != nil {
		return fmt.Errorf("parse notification %d for %s: %w", index, userID, err)
	}
	n.Read = true
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification %d for %s: %w", index, userID, err)
	}
	return s.lists.SetAt(ctx, listKey, index, string(raw))
}
