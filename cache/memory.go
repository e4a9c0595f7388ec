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
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultMaxCost     = 64 << 20 // bytes of payload
	defaultNumCounters = 100_000

	// sweepInterval spaces the passes that drop expired keys from the index.
	sweepInterval = time.Minute
)

// Memory is an in-process Cache backed by ristretto. Ristretto cannot
// enumerate its keys, so Memory tracks live keys and their expiry to serve
// pattern invalidation.
type Memory struct {
	cache *ristretto.Cache[string, []byte]

	mu        sync.Mutex
	keys      map[string]time.Time
	nextSweep time.Time
	now       func() time.Time
}

var _ Cache = (*Memory)(nil)

// MemoryOption configures a Memory cache.
type MemoryOption func(*ristretto.Config[string, []byte])

// WithMaxCost bounds the total payload bytes held by the cache.
func WithMaxCost(bytes int64) MemoryOption {
	return func(c *ristretto.Config[string, []byte]) {
		if bytes > 0 {
			c.MaxCost = bytes
			c.NumCounters = max(bytes/640, 1000)
		}
	}
}

// NewMemory creates an in-memory cache.
func NewMemory(opts ...MemoryOption) (*Memory, error) {
	config := &ristretto.Config[string, []byte]{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: 64,
		// Cost is the payload size alone.
		IgnoreInternalCost: true,
	}
	for _, opt := range opts {
		opt(config)
	}

	c, err := ristretto.NewCache(config)
	if err != nil {
		return nil, err
	}
	return &Memory{
		cache: c,
		keys:  make(map[string]time.Time),
		now:   time.Now,
	}, nil
}

// Get returns the payload stored under key.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores value under key for ttl. The write is visible to Get once Set
// returns.
func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if value == nil {
		value = []byte{}
	}
	if !m.cache.SetWithTTL(key, value, int64(len(value))+1, ttl) {
		// Dropped by admission; a later search simply misses.
		return nil
	}
	m.cache.Wait()

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !now.Before(m.nextSweep) {
		m.dropExpired(now)
		m.nextSweep = now.Add(sweepInterval)
	}
	m.keys[key] = now.Add(ttl)
	return nil
}

// dropExpired removes index entries whose TTL has passed. Callers hold mu.
func (m *Memory) dropExpired(now time.Time) {
	for key, expires := range m.keys {
		if !now.Before(expires) {
			delete(m.keys, key)
		}
	}
}

// Invalidate removes every live key matching pattern.
func (m *Memory) Invalidate(ctx context.Context, pattern string) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropExpired(now)
	removed := 0
	for key := range m.keys {
		if !Match(pattern, key) {
			continue
		}
		m.cache.Del(key)
		delete(m.keys, key)
		removed++
	}
	return removed, nil
}

// Close stops the cache's background goroutines.
func (m *Memory) Close() error {
	m.cache.Close()
	return nil
}
