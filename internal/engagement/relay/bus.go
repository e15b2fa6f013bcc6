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
	"strings"
	"sync"
)

type delivery struct {
	topic string
	ev    Event
}

type busSub struct {
	pattern string
	ch      chan delivery
}

// Bus is an in-process Publisher/Subscriber used by tests and the
// infra-free demo adapter. Each subscription drains a buffered channel on
// its own goroutine; a subscriber that falls behind loses events rather
// than blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[int64]*busSub
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int64]*busSub)}
}

// MatchTopic reports whether a topic matches a subscription pattern. A
// single trailing '*' wildcard is supported, which covers the whole topic
// layout used by this core ("views/*", "user-notifications/*", ...).
func MatchTopic(pattern, topic string) bool {
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		return strings.HasPrefix(topic, pattern[:i])
	}
	return pattern == topic
}

func (b *Bus) Publish(ctx context.Context, topic string, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !MatchTopic(sub.pattern, topic) {
			continue
		}
		select {
		case sub.ch <- delivery{topic: topic, ev: ev}:
		default:
			// Best-effort: drop when the subscriber is too slow.
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, pattern string, h Handler) (func(), error) {
	sub := &busSub{pattern: pattern, ch: make(chan delivery, 256)}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}

	go func() {
		for d := range sub.ch {
			h(d.topic, d.ev)
		}
	}()
	return stop, nil
}
