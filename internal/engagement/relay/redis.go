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

package relay

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// RedisRelay implements Publisher and Subscriber over Redis pub/sub.
// Redis preserves per-channel ordering from a single publisher and delivers
// at-most-once per connected subscriber; combined with the hot path's
// republish-on-next-change behavior the overall contract to consumers is
// best-effort, duplicate-tolerant.
type RedisRelay struct {
	client *redis.Client
	log    *slog.Logger
}

func NewRedisRelay(client *redis.Client, log *slog.Logger) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{client: client, log: log}
}

func (r *RedisRelay) Publish(ctx context.Context, topic string, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a PSUBSCRIBE for the pattern and pumps decoded events to
// the handler until stop is called. Malformed payloads are logged and
// dropped; they never terminate the loop.
func (r *RedisRelay) Subscribe(ctx context.Context, pattern string, h Handler) (func(), error) {
	pubsub := r.client.PSubscribe(ctx, pattern)
	// Force the subscription onto the wire before returning so callers can
	// publish immediately after Subscribe.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", pattern, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			ev, err := Decode([]byte(msg.Payload))
			if err != nil {
				r.log.Warn("dropping malformed event",
					slog.String("pattern", pattern),
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			h(msg.Channel, ev)
		}
	}()

	stop := func() { _ = pubsub.Close() }
	return stop, nil
}
