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

// In-memory implementations of every storage contract. They back the unit
// tests and the dependency-free demo adapter; production deployments use
// the Redis and Postgres adapters in the persistence package.
package core

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemoryStores implements RecordStore, LikeStore, CounterStore, SetStore and
// ListStore behind one mutex. It is safe for concurrent use.
type MemoryStores struct {
	mu       sync.Mutex
	records  map[string]map[string]int64 // entityID -> kind -> value
	likes    map[string]struct{}         // entityID + "\x00" + userID
	counters map[string]int64
	sets     map[string]map[string]struct{}
	lists    map[string][]string
}

func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		records:  make(map[string]map[string]int64),
		likes:    make(map[string]struct{}),
		counters: make(map[string]int64),
		sets:     make(map[string]map[string]struct{}),
		lists:    make(map[string][]string),
	}
}

// --- RecordStore ---

func (m *MemoryStores) GetCounter(ctx context.Context, entityID, kind string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds, ok := m.records[entityID]
	if !ok {
		return 0, fmt.Errorf("counter %s/%s: %w", entityID, kind, ErrNotFound)
	}
	return kinds[kind], nil
}

func (m *MemoryStores) ApplyDelta(ctx context.Context, entityID, kind string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds, ok := m.records[entityID]
	if !ok {
		return fmt.Errorf("counter %s/%s: %w", entityID, kind, ErrNotFound)
	}
	kinds[kind] += delta
	return nil
}

func (m *MemoryStores) SetAbsolute(ctx context.Context, entityID, kind string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds, ok := m.records[entityID]
	if !ok {
		kinds = make(map[string]int64)
		m.records[entityID] = kinds
	}
	kinds[kind] = value
	return nil
}

// --- LikeStore ---

func likeKey(entityID, userID string) string { return entityID + "\x00" + userID }

func (m *MemoryStores) Exists(ctx context.Context, entityID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.likes[likeKey(entityID, userID)]
	return ok, nil
}

func (m *MemoryStores) Create(ctx context.Context, entityID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := likeKey(entityID, userID)
	if _, ok := m.likes[k]; ok {
		return fmt.Errorf("like %s/%s: %w", entityID, userID, ErrConflict)
	}
	m.likes[k] = struct{}{}
	return nil
}

func (m *MemoryStores) Delete(ctx context.Context, entityID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := likeKey(entityID, userID)
	if _, ok := m.likes[k]; !ok {
		return fmt.Errorf("like %s/%s: %w", entityID, userID, ErrNotFound)
	}
	delete(m.likes, k)
	return nil
}

// LikeCountByScan counts existing like records for an entity. Test helper;
// the durable like counter is the RecordStore's job.
func (m *MemoryStores) LikeCountByScan(entityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	prefix := entityID + "\x00"
	for k := range m.likes {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

// --- CounterStore ---

func (m *MemoryStores) Get(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.counters[key]
	return v, ok, nil
}

func (m *MemoryStores) Set(ctx context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] = value
	return nil
}

func (m *MemoryStores) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key] += delta
	return m.counters[key], nil
}

func (m *MemoryStores) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.counters {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStores) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, key)
	return nil
}

// --- SetStore ---

func (m *MemoryStores) AddIfAbsent(ctx context.Context, setKey, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[setKey]
	if !ok {
		s = make(map[string]struct{})
		m.sets[setKey] = s
	}
	if _, present := s[member]; present {
		return false, nil
	}
	s[member] = struct{}{}
	return true, nil
}

func (m *MemoryStores) Members(ctx context.Context, setKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sets[setKey]
	out := make([]string, 0, len(s))
	for member := range s {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

// --- ListStore ---

func (m *MemoryStores) Append(ctx context.Context, listKey, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[listKey] = append(m.lists[listKey], value)
	return nil
}

func (m *MemoryStores) Trim(ctx context.Context, listKey string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[listKey]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		m.lists[listKey] = nil
		return nil
	}
	trimmed := make([]string, stop-start+1)
	copy(trimmed, l[start:stop+1])
	m.lists[listKey] = trimmed
	return nil
}

func (m *MemoryStores) RangeAll(ctx context.Context, listKey string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[listKey]
	out := make([]string, len(l))
	copy(out, l)
	return out, nil
}

func (m *MemoryStores) SetAt(ctx context.Context, listKey string, index int64, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[listKey]
	if index < 0 || index >= int64(len(l)) {
		return fmt.Errorf("list %s index %d: %w", listKey, index, ErrNotFound)
	}
	l[index] = value
	return nil
}
