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

package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"engage/internal/engagement/core"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS engagement_counters (
//   entity_id TEXT   NOT NULL,
//   kind      TEXT   NOT NULL,
//   value     BIGINT NOT NULL DEFAULT 0,
//   PRIMARY KEY (entity_id, kind)
// );
//
// CREATE TABLE IF NOT EXISTS entity_likes (
//   entity_id TEXT NOT NULL,
//   user_id   TEXT NOT NULL,
//   PRIMARY KEY (entity_id, user_id)
// );
//
// The like-pair primary key is what turns a concurrent double-insert into a
// detectable unique violation instead of a duplicate row.

const pqUniqueViolation = "23505"

// PostgresStore implements core.RecordStore and core.LikeStore on
// database/sql with the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
	// Per-call timeout fallback when the caller's ctx has no deadline.
	defaultTimeout time.Duration
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, defaultTimeout: 10 * time.Second}
}

func (p *PostgresStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok && p.defaultTimeout > 0 {
		return context.WithTimeout(ctx, p.defaultTimeout)
	}
	return ctx, func() {}
}

// --- core.RecordStore ---

func (p *PostgresStore) GetCounter(ctx context.Context, entityID, kind string) (int64, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	var value int64
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM engagement_counters WHERE entity_id = $1 AND kind = $2`,
		entityID, kind).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("counter %s/%s: %w", entityID, kind, core.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("select counter %s/%s: %w", entityID, kind, err)
	}
	return value, nil
}

// ApplyDelta is a relative update: value = value + delta, never an absolute
// overwrite, so concurrent flushes and direct writers compose instead of
// clobbering each other.
func (p *PostgresStore) ApplyDelta(ctx context.Context, entityID, kind string, delta int64) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	res, err := p.db.ExecContext(ctx,
		`UPDATE engagement_counters SET value = value + $3 WHERE entity_id = $1 AND kind = $2`,
		entityID, kind, delta)
	if err != nil {
		return fmt.Errorf("apply delta %s/%s: %w", entityID, kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("counter %s/%s: %w", entityID, kind, core.ErrNotFound)
	}
	return nil
}

// SetAbsolute seeds or re-seeds a counter row. Never used by the flush
// path.
func (p *PostgresStore) SetAbsolute(ctx context.Context, entityID, kind string, value int64) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO engagement_counters (entity_id, kind, value) VALUES ($1, $2, $3)
		   ON CONFLICT (entity_id, kind) DO UPDATE SET value = EXCLUDED.value`,
		entityID, kind, value)
	if err != nil {
		return fmt.Errorf("seed counter %s/%s: %w", entityID, kind, err)
	}
	return nil
}

// --- core.LikeStore ---

func (p *PostgresStore) Exists(ctx context.Context, entityID, userID string) (bool, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM entity_likes WHERE entity_id = $1 AND user_id = $2)`,
		entityID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select like %s/%s: %w", entityID, userID, err)
	}
	return exists, nil
}

func (p *PostgresStore) Create(ctx context.Context, entityID, userID string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO entity_likes (entity_id, user_id) VALUES ($1, $2)`,
		entityID, userID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("like %s/%s: %w", entityID, userID, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert like %s/%s: %w", entityID, userID, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, entityID, userID string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM entity_likes WHERE entity_id = $1 AND user_id = $2`,
		entityID, userID)
	if err != nil {
		return fmt.Errorf("delete like %s/%s: %w", entityID, userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("like %s/%s: %w", entityID, userID, core.ErrNotFound)
	}
	return nil
}
