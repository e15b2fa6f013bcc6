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

// This file defines the storage contracts the engagement core consumes.
// Concrete adapters (Redis, Postgres) live in the persistence package; the
// in-memory implementations in memory.go back tests and the infra-free demo.
package core

import "context"

// RecordStore is the durable, authoritative counter store.
type RecordStore interface {
	// GetCounter returns the durable value for one counter of one entity.
	// An entity with no record yields ErrNotFound.
	GetCounter(ctx context.Context, entityID, kind string) (int64, error)

	// ApplyDelta adds delta to the durable value as a relative update.
	// Relative (never absolute) writes are what keep concurrent flushes and
	// independent writers from dropping each other's increments.
	ApplyDelta(ctx context.Context, entityID, kind string, delta int64) error

	// SetAbsolute overwrites the durable value. Used only for initial
	// seeding, never for a flush.
	SetAbsolute(ctx context.Context, entityID, kind string, value int64) error
}

// LikeStore holds the (entity, user) like relation. At most one record may
// exist per pair.
type LikeStore interface {
	Exists(ctx context.Context, entityID, userID string) (bool, error)

	// Create inserts the record; a duplicate insert yields ErrConflict.
	Create(ctx context.Context, entityID, userID string) error

	// Delete removes the record; deleting an absent record yields
	// ErrNotFound so a racing double-delete is detectable.
	Delete(ctx context.Context, entityID, userID string) error
}

// CounterStore is the shared low-latency key/value store holding the
// base/buffer split. All mutation goes through atomic primitives; no
// application-level lock is ever held across it and the RecordStore.
type CounterStore interface {
	// Get returns (value, found). An absent key is not an error.
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, value int64) error
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
}

// SetStore backs the per-entity VIP sets.
type SetStore interface {
	// AddIfAbsent reports whether the member was newly added.
	AddIfAbsent(ctx context.Context, setKey, member string) (bool, error)
	Members(ctx context.Context, setKey string) ([]string, error)
}

// ListStore backs the bounded per-user notification histories.
type ListStore interface {
	Append(ctx context.Context, listKey, value string) error
	// Trim keeps the window [start, stop]; negative indexes count from the
	// tail, so Trim(key, -50, -1) keeps the most recent 50 entries.
	Trim(ctx context.Context, listKey string, start, stop int64) error
	RangeAll(ctx context.Context, listKey string) ([]string, error)
	SetAt(ctx context.Context, listKey string, index int64, value string) error
}
