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

package ai

import (
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/kbindex/core"
)

const (
	// PrimaryProvider is the well-known hosted provider, preferred first.
	PrimaryProvider = "openai"

	// LocalProvider is the well-known locally run provider, preferred second.
	LocalProvider = "ollama"
)

// Registry holds the configured embedding providers in registration order
// and applies the selection policy shared by ingestion and search.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates a registry and registers the given providers in order.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]Provider),
	}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a provider. Names must be unique.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return ErrProviderRequired
	}
	name := p.Name()
	if name == "" {
		return ErrProviderNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	r.providers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Resolve picks the provider to embed with:
//  1. the preferred provider, when registered;
//  2. the primary provider, then the local provider, when registered;
//  3. the first other provider, in registration order, that supports embeddings.
//
// Returns core.ErrNoEmbeddingProvider when nothing qualifies.
func (r *Registry) Resolve(preferred string) (Provider, error) {
	candidates := r.Candidates(preferred)
	if len(candidates) == 0 {
		return nil, core.ErrNoEmbeddingProvider
	}
	return candidates[0], nil
}

// Candidates returns every provider Resolve could fall back to, in priority
// order and without duplicates. The first element is what Resolve returns.
func (r *Registry) Candidates(preferred string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.order))
	result := make([]Provider, 0, len(r.order))
	add := func(name string) {
		if seen[name] {
			return
		}
		if p, ok := r.providers[name]; ok {
			seen[name] = true
			result = append(result, p)
		}
	}

	if preferred != "" {
		add(preferred)
	}
	add(PrimaryProvider)
	add(LocalProvider)
	for _, name := range r.order {
		if seen[name] {
			continue
		}
		if r.providers[name].SupportsEmbeddings() {
			add(name)
		}
	}
	return result
}

// Close closes every registered provider.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, name := range r.order {
		if err := r.providers[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing provider %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
