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

import "errors"

// Sentinel errors shared by the storage adapters and the services built on
// top of them. Adapters wrap these with %w so callers can use errors.Is.
var (
	// ErrNotFound means the referenced entity has no durable record.
	// It is caller-visible and never retried silently.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict means a write lost a uniqueness race (e.g. two concurrent
	// like-toggles inserting the same record). It is resolved locally by
	// re-querying state, not surfaced as a failure.
	ErrConflict = errors.New("duplicate record")
)
