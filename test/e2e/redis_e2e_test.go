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

//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"engage/internal/engagement/core"
	"engage/internal/engagement/notify"
	"engage/internal/engagement/persistence"
	"engage/internal/engagement/relay"
)

const redisAddr = "127.0.0.1:6379"

// dialOrSkip returns a store set backed by a real Redis, skipping the test
// when no server is reachable at 127.0.0.1:6379.
func dialOrSkip(t *testing.T) *persistence.RedisStores {
	t.Helper()
	rs := persistence.NewRedisStoresAddr(redisAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rs.Client().Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping: Redis not reachable on %s: %v", redisAddr, err)
	}
	t.Cleanup(func() { _ = rs.Client().Close() })
	return rs
}

func cleanKeys(t *testing.T, rs *persistence.RedisStores, keys ...string) {
	t.Helper()
	ctx := context.Background()
	for _, k := range keys {
		if err := rs.Del(ctx, k); err != nil {
			t.Fatalf("cleanup %s: %v", k, err)
		}
	}
}

// TestRedisCounterFlowE2E drives the buffered-view flow against a real
// Redis: durable store stays in memory, fast store and flush run on Redis.
func TestRedisCounterFlowE2E(t *testing.T) {
	rs := dialOrSkip(t)
	ctx := context.Background()
	const entity = "e2e-video-counter"
	cleanKeys(t, rs,
		core.BaseKey(core.KindViews, entity),
		core.BufferKey(core.KindViews, entity),
	)

	durable := core.NewMemoryStores()
	if err := durable.SetAbsolute(ctx, entity, core.KindViews, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	bus := relay.NewBus()
	svc := core.NewService(durable, durable, rs, rs, bus, nil)
	syncer := core.NewSyncer(durable, rs, bus, nil, time.Hour, time.Hour)

	for i := 0; i < 10; i++ {
		if _, err := svc.IncrementView(ctx, entity); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	if buf, ok, err := rs.Get(ctx, core.BufferKey(core.KindViews, entity)); err != nil || !ok || buf != 10 {
		t.Fatalf("buffer in redis: got (%d, %v, %v) want 10", buf, ok, err)
	}

	if err := syncer.SyncViewCounts(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got, err := durable.GetCounter(ctx, entity, core.KindViews); err != nil || got != 110 {
		t.Fatalf("durable after flush: got (%d, %v) want 110", got, err)
	}
	if buf, _, err := rs.Get(ctx, core.BufferKey(core.KindViews, entity)); err != nil || buf != 0 {
		t.Fatalf("buffer after flush: got (%d, %v) want 0", buf, err)
	}
}

// TestRedisRelayRoundtripE2E publishes through the real pub/sub channel and
// asserts the pattern subscription sees the decoded event.
func TestRedisRelayRoundtripE2E(t *testing.T) {
	rs := dialOrSkip(t)
	ctx := context.Background()
	rr := relay.NewRedisRelay(rs.Client(), nil)

	got := make(chan relay.Event, 1)
	stop, err := rr.Subscribe(ctx, relay.ViewPattern, func(topic string, ev relay.Event) {
		select {
		case got <- ev:
		default:
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	want := relay.NewViewCount("e2e-video-relay", 42)
	if err := rr.Publish(ctx, relay.ViewTopic("e2e-video-relay"), want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-got:
		if ev.ID != want.ID || ev.Kind != relay.KindViewCount || ev.Total != 42 {
			t.Fatalf("roundtrip mismatch: sent %+v got %+v", want, ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no delivery within 3s")
	}
}

// TestRedisFanoutE2E runs notification fan-out against real Redis sets and
// lists, including the history bound.
func TestRedisFanoutE2E(t *testing.T) {
	rs := dialOrSkip(t)
	ctx := context.Background()
	const entity = "e2e-video-fanout"
	cleanKeys(t, rs,
		core.VIPKey(entity),
		core.NotificationsKey("e2e-bob"),
		core.NotificationsKey("e2e-alice"),
	)

	svc := notify.NewService(rs, rs, relay.NewBus(), nil)
	if _, err := rs.AddIfAbsent(ctx, core.VIPKey(entity), "e2e-bob"); err != nil {
		t.Fatalf("seed vip: %v", err)
	}

	for i := 0; i < notify.DefaultMaxHistory+5; i++ {
		sent, err := svc.NotifyInterestedUsers(ctx, entity, "e2e-alice", "ping")
		if err != nil {
			t.Fatalf("notify %d: %v", i, err)
		}
		if sent != 1 {
			t.Fatalf("sent: got %d want 1", sent)
		}
	}

	history, err := svc.Notifications(ctx, "e2e-bob")
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(history) != notify.DefaultMaxHistory {
		t.Fatalf("history length: got %d want %d", len(history), notify.DefaultMaxHistory)
	}
	if raws, err := rs.RangeAll(ctx, core.NotificationsKey("e2e-alice")); err != nil || len(raws) != 0 {
		t.Fatalf("actor list must stay empty: %d (%v)", len(raws), err)
	}

	if err := svc.MarkRead(ctx, "e2e-bob", 0); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	history, err = svc.Notifications(ctx, "e2e-bob")
	if err != nil || !history[0].Read {
		t.Fatalf("read flag not persisted in redis: %+v (%v)", history[0], err)
	}
}
