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

package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"engage/internal/engagement/relay"
)

// capturePublisher records every publish for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	events []relay.Event
	fail   bool
}

func (p *capturePublisher) Publish(ctx context.Context, topic string, ev relay.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("transport down")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) last() (string, relay.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return "", relay.Event{}, false
	}
	return p.topics[len(p.topics)-1], p.events[len(p.events)-1], true
}

func newTestService(t *testing.T) (*Service, *MemoryStores, *capturePublisher) {
	t.Helper()
	mem := NewMemoryStores()
	pub := &capturePublisher{}
	svc := NewService(mem, mem, mem, mem, pub, nil)
	return svc, mem, pub
}

func seedEntity(t *testing.T, mem *MemoryStores, entityID string, views, likes int64) {
	t.Helper()
	ctx := context.Background()
	if err := mem.SetAbsolute(ctx, entityID, KindViews, views); err != nil {
		t.Fatalf("seed views: %v", err)
	}
	if err := mem.SetAbsolute(ctx, entityID, KindLikes, likes); err != nil {
		t.Fatalf("seed likes: %v", err)
	}
}

func TestIncrementView_SeedsBaseAndBuffers(t *testing.T) {
	svc, mem, pub := newTestService(t)
	ctx := context.Background()
	seedEntity(t, mem, "v1", 100, 0)

	total, err := svc.IncrementView(ctx, "v1")
	if err != nil {
		t.Fatalf("IncrementView: %v", err)
	}
	if total != 101 {
		t.Fatalf("total: got %d want 101", total)
	}

	// Base cached from durable, buffer holds the un-flushed delta.
	if base, _, _ := mem.Get(ctx, BaseKey(KindViews, "v1")); base != 100 {
		t.Fatalf("base: got %d want 100", base)
	}
	if buf, _, _ := mem.Get(ctx, BufferKey(KindViews, "v1")); buf != 1 {
		t.Fatalf("buffer: got %d want 1", buf)
	}
	// Durable untouched on the hot path.
	if durable, _ := mem.GetCounter(ctx, "v1", KindViews); durable != 100 {
		t.Fatalf("durable: got %d want 100", durable)
	}

	topic, ev, ok := pub.last()
	if !ok || topic != "views/v1" || ev.Kind != relay.KindViewCount || ev.Total != 101 {
		t.Fatalf("unexpected publish: topic=%q ev=%+v", topic, ev)
	}
}

func TestIncrementView_UnknownEntity(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.IncrementView(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementView_PublishFailureDoesNotFailIncrement(t *testing.T) {
	svc, mem, pub := newTestService(t)
	pub.fail = true
	seedEntity(t, mem, "v1", 0, 0)

	total, err := svc.IncrementView(context.Background(), "v1")
	if err != nil {
		t.Fatalf("increment must succeed when broadcast fails: %v", err)
	}
	if total != 1 {
		t.Fatalf("total: got %d want 1", total)
	}
}

func TestToggleLike_OnThenOff(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	seedEntity(t, mem, "v2", 0, 0)

	on, err := svc.ToggleLike(ctx, "v2", "u1")
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !on.IsLiked || on.LikeCount != 1 || !on.Success {
		t.Fatalf("toggle on: got %+v want {true 1 true}", on)
	}
	// Liking earns VIP membership.
	members, err := mem.Members(ctx, VIPKey("v2"))
	if err != nil || len(members) != 1 || members[0] != "u1" {
		t.Fatalf("vip set: got %v (%v)", members, err)
	}

	off, err := svc.ToggleLike(ctx, "v2", "u1")
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if off.IsLiked || off.LikeCount != 0 || !off.Success {
		t.Fatalf("toggle off: got %+v want {false 0 true}", off)
	}
}

func TestToggleLike_DoubleInvocationReturnsToOriginalState(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	seedEntity(t, mem, "v2", 0, 0)

	before, _ := svc.GetLikeCount(ctx, "v2")
	if _, err := svc.ToggleLike(ctx, "v2", "u9"); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if _, err := svc.ToggleLike(ctx, "v2", "u9"); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	after, _ := svc.GetLikeCount(ctx, "v2")
	if after != before {
		t.Fatalf("like count changed across double toggle: before=%d after=%d", before, after)
	}
	if liked, _ := svc.IsLikedByUser(ctx, "v2", "u9"); liked {
		t.Fatalf("expected like state back to original (unliked)")
	}
}

func TestToggleLike_ConcurrentSamePair_AtMostOneRecord(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()
	seedEntity(t, mem, "v3", 0, 0)

	const goroutines = 32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			// Conflicts report Success=false; nothing here may error.
			if _, err := svc.ToggleLike(ctx, "v3", "u1"); err != nil {
				t.Errorf("concurrent toggle: %v", err)
			}
		}()
	}
	wg.Wait()

	records := mem.LikeCountByScan("v3")
	if records > 1 {
		t.Fatalf("uniqueness violated: %d records for one (entity,user) pair", records)
	}
	// The durable counter must agree with the surviving records.
	count, err := svc.GetLikeCount(ctx, "v3")
	if err != nil {
		t.Fatalf("GetLikeCount: %v", err)
	}
	if count != int64(records) {
		t.Fatalf("durable count %d does not match %d like records", count, records)
	}
}

func TestToggleLike_ConflictIsBenign(t *testing.T) {
	mem := NewMemoryStores()
	ctx := context.Background()
	seedEntity(t, mem, "v4", 0, 0)

	// Simulate losing the insert race: the record appears between the
	// service's existence check and its create.
	conflicting := &raceLikeStore{MemoryStores: mem, entityID: "v4", userID: "u2"}
	racySvc := NewService(mem, conflicting, mem, mem, &capturePublisher{}, nil)

	res, err := racySvc.ToggleLike(ctx, "v4", "u2")
	if err != nil {
		t.Fatalf("conflict must not raise: %v", err)
	}
	if res.Success {
		t.Fatalf("lost race must report success=false, got %+v", res)
	}
	if !res.IsLiked {
		t.Fatalf("re-query should observe the winning insert, got %+v", res)
	}
}

// raceLikeStore makes the first Create lose a uniqueness race by inserting
// the record out from under the caller.
type raceLikeStore struct {
	*MemoryStores
	entityID, userID string
	raced            bool
}

func (r *raceLikeStore) Create(ctx context.Context, entityID, userID string) error {
	if !r.raced && entityID == r.entityID && userID == r.userID {
		r.raced = true
		// The concurrent winner inserts first.
		if err := r.MemoryStores.Create(ctx, entityID, userID); err != nil {
			return err
		}
		if err := r.MemoryStores.ApplyDelta(ctx, entityID, KindLikes, 1); err != nil {
			return err
		}
		return r.MemoryStores.Create(ctx, entityID, userID) // ErrConflict
	}
	return r.MemoryStores.Create(ctx, entityID, userID)
}
