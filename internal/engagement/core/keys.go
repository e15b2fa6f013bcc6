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

// Package core provides the engagement counter business logic: the counter
// aggregation service and the reconciliation syncer, plus the storage
// contracts both are written against.
package core

import (
	"fmt"
	"strings"
)

// Counter kinds. Each kind owns one namespace in the fast store and one
// counter column per entity in durable storage.
const (
	KindViews = "views"
	KindLikes = "likes"
)

// Fast-store key layout (public for interoperability with other components):
//
//	views:<entity>:base    last known durable value, cached
//	views:<entity>:buffer  un-flushed delta accumulated since the last sync
//
// The invariant served by the split is authoritative == base + buffer from
// the aggregation service's point of view.
func BaseKey(kind, entityID string) string {
	return fmt.Sprintf("%s:%s:base", kind, entityID)
}

func BufferKey(kind, entityID string) string {
	return fmt.Sprintf("%s:%s:buffer", kind, entityID)
}

// BufferPattern matches every buffer key in a kind's namespace. The syncer
// enumerates with it once per cycle.
func BufferPattern(kind string) string {
	return kind + ":*:buffer"
}

// EntityFromBufferKey extracts the entity id from a buffer key. A key that
// does not match the layout is reported as an error so the syncer can log
// and skip it without aborting the scan.
func EntityFromBufferKey(kind, key string) (string, error) {
	prefix := kind + ":"
	const suffix = ":buffer"
	if !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
		return "", fmt.Errorf("malformed buffer key %q for kind %s", key, kind)
	}
	entity := key[len(prefix) : len(key)-len(suffix)]
	if entity == "" {
		return "", fmt.Errorf("malformed buffer key %q: empty entity id", key)
	}
	return entity, nil
}

// VIPKey is the set of users eligible for activity notifications about an
// entity, derived from prior interaction (comment or like).
func VIPKey(entityID string) string {
	return fmt.Sprintf("video:%s:vips", entityID)
}

// NotificationsKey holds a user's bounded recent-notification list.
func NotificationsKey(userID string) string {
	return fmt.Sprintf("notifications:user:%s", userID)
}
