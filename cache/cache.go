// Copyright 2025 Poiesic Systems
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
// Package cache provides the search result cache.
//
// Entries are opaque byte payloads with a TTL. Keys follow the layout built
// by SearchKey so that a whole owner or workspace can be invalidated with a
// glob pattern after ingestion changes what a search would return.
package cache

import (
	"context"
	"fmt"
	"time"

	kbbadger "github.com/poiesic/kbindex/storage/badger"
)

// Cache stores serialized search results.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the payload stored under key. The boolean is false on a
	// miss or when the entry has expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes every live key matching the glob pattern and
	// returns how many were removed.
	Invalidate(ctx context.Context, pattern string) (int, error)

	// Close releases resources held by the cache.
	Close() error
}

// Nop is a Cache that stores nothing.
type Nop struct{}

var _ Cache = Nop{}

// Get always misses.
func (Nop) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

// Set discards the value.
func (Nop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

// Invalidate removes nothing.
func (Nop) Invalidate(ctx context.Context, pattern string) (int, error) {
	return 0, nil
}

// Close is a no-op.
func (Nop) Close() error {
	return nil
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// New creates the cache selected by name. store is only used by the badger
// backend. An empty name selects the memory backend.
func New(name string, store *kbbadger.Backend) (Cache, error) {
	switch name {
	case "", BackendMemory:
		m, err := NewMemory()
		if err != nil {
			return nil, err
		}
		return m, nil
	case BackendBadger:
		b, err := NewBadger(store)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
