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
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "postgres" driver for sql.Open.
	_ "github.com/lib/pq"

	"engage/internal/engagement/core"
	"engage/internal/engagement/relay"
)

// Config selects and parameterizes the storage adapters.
type Config struct {
	// Adapter: "memory" (default; no infrastructure), "redis" (Redis fast
	// store + relay, in-memory durable store), or "postgres" (Redis fast
	// store + relay, Postgres durable store).
	Adapter     string
	RedisAddr   string
	PostgresDSN string
}

// Stores bundles every backend the engagement services consume.
type Stores struct {
	Records    core.RecordStore
	Likes      core.LikeStore
	Fast       core.CounterStore
	Sets       core.SetStore
	Lists      core.ListStore
	Publisher  relay.Publisher
	Subscriber relay.Subscriber

	closers []func() error
}

// Close releases the underlying connections.
func (s *Stores) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildStores constructs the adapter set for the given config. The memory
// adapter lets the service run (and the tests exercise everything) with no
// external dependencies; redis/postgres are the production wiring.
func BuildStores(cfg Config, log *slog.Logger) (*Stores, error) {
	switch cfg.Adapter {
	case "", "memory":
		mem := core.NewMemoryStores()
		bus := relay.NewBus()
		return &Stores{
			Records: mem, Likes: mem,
			Fast: mem, Sets: mem, Lists: mem,
			Publisher: bus, Subscriber: bus,
		}, nil

	case "redis", "postgres":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("adapter %q requires -redis_addr", cfg.Adapter)
		}
		rs := NewRedisStoresAddr(cfg.RedisAddr)
		rr := relay.NewRedisRelay(rs.Client(), log)
		stores := &Stores{
			Fast: rs, Sets: rs, Lists: rs,
			Publisher: rr, Subscriber: rr,
			closers: []func() error{rs.Client().Close},
		}
		if cfg.Adapter == "redis" {
			mem := core.NewMemoryStores()
			stores.Records = mem
			stores.Likes = mem
			return stores, nil
		}
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf(`adapter "postgres" requires -postgres_dsn`)
		}
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := NewPostgresStore(db)
		stores.Records = pg
		stores.Likes = pg
		stores.closers = append(stores.closers, db.Close)
		return stores, nil

	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Adapter)
	}
}
