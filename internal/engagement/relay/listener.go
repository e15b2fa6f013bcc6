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
	"log/slog"
)

// Delivery is the seam to the (out-of-scope) live transport layer: whatever
// pushes payloads to connected clients implements it. Implementations must
// tolerate duplicate events.
type Delivery interface {
	Deliver(topic string, ev Event)
}

// DeliveryFunc adapts a function to the Delivery interface.
type DeliveryFunc func(topic string, ev Event)

func (f DeliveryFunc) Deliver(topic string, ev Event) { f(topic, ev) }

// Listener is the live-delivery consumer. It subscribes to every topic
// family at process start and forwards events to the transport for the
// process lifetime.
type Listener struct {
	sub     Subscriber
	deliver Delivery
	log     *slog.Logger
	stops   []func()
}

func NewListener(sub Subscriber, deliver Delivery, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{sub: sub, deliver: deliver, log: log}
}

// Start registers the pattern subscriptions. It returns the first
// subscription error; already-registered subscriptions are torn down.
func (l *Listener) Start(ctx context.Context) error {
	patterns := []string{ViewPattern, LikePattern, CommentPattern, UserPattern}
	for _, p := range patterns {
		stop, err := l.sub.Subscribe(ctx, p, l.handle)
		if err != nil {
			l.Stop()
			return err
		}
		l.stops = append(l.stops, stop)
		l.log.Info("subscribed", slog.String("pattern", p))
	}
	return nil
}

func (l *Listener) handle(topic string, ev Event) {
	switch ev.Kind {
	case KindViewCount, KindLikeCount, KindComment, KindNotification:
		l.deliver.Deliver(topic, ev)
	default:
		// Unknown variants are tolerated, not fatal: a newer producer may be
		// publishing kinds this build does not know about.
		l.log.Debug("ignoring event of unknown kind",
			slog.String("topic", topic),
			slog.String("kind", string(ev.Kind)),
		)
	}
}

// Stop tears down all subscriptions.
func (l *Listener) Stop() {
	for _, stop := range l.stops {
		stop()
	}
	l.stops = nil
}
