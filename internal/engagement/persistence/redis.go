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

// Package persistence provides the production storage adapters behind the
// core contracts: Redis for the fast counter/set/list stores and Postgres
// for the durable record and like stores.
package persistence

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// RedisStores implements core.CounterStore, core.SetStore and
// core.ListStore on one go-redis client. Every mutation maps to a single
// atomic Redis command, which is the whole synchronization story for the
// fast store: INCRBY for buffers, SADD for VIP membership, RPUSH/LTRIM for
// bounded histories.
type RedisStores struct {
	client *redis.Client
}

func NewRedisStores(client *redis.Client) *RedisStores {
	return &RedisStores{client: client}
}

// NewRedisStoresAddr dials addr (e.g. "127.0.0.1:6379").
func NewRedisStoresAddr(addr string) *RedisStores {
	return NewRedisStores(redis.NewClient(&redis.Options{Addr: addr}))
}

// Client exposes the underlying connection for sharing with the relay.
func (r *RedisStores) Client() *redis.Client { return r.client }

// --- core.CounterStore ---

func (r *RedisStores) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisStores) Set(ctx context.Context, key string, value int64) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStores) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := r.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby %s: %w", key, err)
	}
	return v, nil
}

// Keys enumerates via SCAN rather than KEYS so a large keyspace never
// blocks the server for other clients.
func (r *RedisStores) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return out, nil
}

func (r *RedisStores) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// --- core.SetStore ---

func (r *RedisStores) AddIfAbsent(ctx context.Context, setKey, member string) (bool, error) {
	added, err := r.client.SAdd(ctx, setKey, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis sadd %s: %w", setKey, err)
	}
	return added == 1, nil
}

func (r *RedisStores) Members(ctx context.Context, setKey string) ([]string, error) {
	members, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", setKey, err)
	}
	return members, nil
}

// --- core.ListStore ---

func (r *RedisStores) Append(ctx context.Context, listKey, value string) error {
	if err := r.client.RPush(ctx, listKey, value).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", listKey, err)
	}
	return nil
}

func (r *RedisStores) Trim(ctx context.Context, listKey string, start, stop int64) error {
	if err := r.client.LTrim(ctx, listKey, start, stop).Err(); err != nil {
		return fmt.Errorf("redis ltrim %s: %w", listKey, err)
	}
	return nil
}

func (r *RedisStores) RangeAll(ctx context.Context, listKey string) ([]string, error) {
	values, err := r.client.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", listKey, err)
	}
	return values, nil
}

func (r *RedisStores) SetAt(ctx context.Context, listKey string, index int64, value string) error {
	if err := r.client.LSet(ctx, listKey, index, value).Err(); err != nil {
		return fmt.Errorf("redis lset %s[%d]: %w", listKey, index, err)
	}
	return nil
}
