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

// Package relay is a thin publish/subscribe abstraction over named topics.
// Producers publish typed events; live-delivery consumers subscribe to
// topic patterns for the process lifetime. Delivery is best-effort,
// at-least-once: publish failures never propagate into the business
// operation that triggered them, and consumers must tolerate duplicates.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind tags an event variant. The set is closed; one kind per topic family.
type Kind string

const (
	KindViewCount    Kind = "view_count"
	KindLikeCount    Kind = "like_count"
	KindComment      Kind = "comment"
	KindNotification Kind = "notification"
)

// Event is the wire payload for every topic family. Only the fields that
// apply to a given kind are populated; unknown kinds or extra fields must
// not crash a consumer.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	EntityID  string    `json:"entity_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Total     int64     `json:"total,omitempty"`
	Liked     bool      `json:"liked,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(kind Kind) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Timestamp: time.Now().UTC()}
}

// NewViewCount carries the computed total (base + buffer, or the
// authoritative value after a flush) for one entity.
func NewViewCount(entityID string, total int64) Event {
	ev := newEvent(KindViewCount)
	ev.EntityID = entityID
	ev.Total = total
	return ev
}

func NewLikeCount(entityID string, total int64, liked bool) Event {
	ev := newEvent(KindLikeCount)
	ev.EntityID = entityID
	ev.Total = total
	ev.Liked = liked
	return ev
}

func NewComment(entityID, userID, preview string) Event {
	ev := newEvent(KindComment)
	ev.EntityID = entityID
	ev.UserID = userID
	ev.Message = preview
	return ev
}

func NewNotification(userID, entityID, message string) Event {
	ev := newEvent(KindNotification)
	ev.UserID = userID
	ev.EntityID = entityID
	ev.Message = message
	return ev
}

// Topic layout. These names are the wire contract consumed by the
// live-delivery layer; changing them breaks connected clients.
func ViewTopic(entityID string) string    { return "views/" + entityID }
func LikeTopic(entityID string) string    { return "likes/" + entityID }
func CommentTopic(entityID string) string { return "comments/" + entityID }
func UserTopic(userID string) string      { return "user-notifications/" + userID }

// Patterns the live-delivery consumer subscribes to at process start.
const (
	ViewPattern    = "views/*"
	LikePattern    = "likes/*"
	CommentPattern = "comments/*"
	UserPattern    = "user-notifications/*"
)

// Handler receives one decoded event per delivery. Handlers must be safe
// for concurrent invocation and must not block the listener loop.
type Handler func(topic string, ev Event)

// Publisher publishes one event per state change. Implementations must keep
// per-topic ordering from a single publisher; cross-topic ordering is not
// guaranteed.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev Event) error
}

// Subscriber registers a pattern subscription that lives until the returned
// stop function is called (normally process shutdown).
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, h Handler) (stop func(), err error)
}

// Encode marshals an event for the transport.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Decode parses a payload defensively. A malformed payload is an error the
// listener loop logs and drops; an unknown kind decodes fine and is left to
// the handler to ignore.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}
