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
package mock

import (
	"context"
	"sync"

	"github.com/poiesic/kbindex/ai"
)

// EmbedFunc is the signature of an injected embedding behavior.
type EmbedFunc func(ctx context.Context, text, model string) ([]float32, error)

// MockProvider is a test double for ai.Provider.
// It is safe for concurrent use.
type MockProvider struct {
	name     string
	dim      int
	supports bool

	mu        sync.Mutex
	embedFunc EmbedFunc
	calls     []string
	models    []string
	closed    bool
}

// NewMockProvider creates a mock provider with deterministic default behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:     name,
		dim:      DefaultDimension,
		supports: true,
	}
}

// WithDimension sets the size of default vectors.
func (m *MockProvider) WithDimension(dim int) *MockProvider {
	m.dim = dim
	return m
}

// WithSupportsEmbeddings sets the capability flag reported to the registry.
func (m *MockProvider) WithSupportsEmbeddings(supports bool) *MockProvider {
	m.supports = supports
	return m
}

// WithEmbedFunc injects custom behavior for Embed.
func (m *MockProvider) WithEmbedFunc(fn EmbedFunc) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedFunc = fn
	return m
}

// Name returns the configured name.
func (m *MockProvider) Name() string {
	return m.name
}

// DefaultModel names the mock's default model.
func (m *MockProvider) DefaultModel() string {
	return "mock-embedding"
}

// SupportsEmbeddings returns the configured capability flag.
func (m *MockProvider) SupportsEmbeddings() bool {
	return m.supports
}

// Embed records the call and returns either the injected result or a
// deterministic vector derived from text.
func (m *MockProvider) Embed(ctx context.Context, text, model string) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	m.models = append(m.models, model)
	fn := m.embedFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, model)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DeterministicVector(text, m.dim), nil
}

// Close marks the provider closed.
func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CallCount returns the number of Embed calls.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Texts returns the texts passed to Embed, in call order.
func (m *MockProvider) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Models returns the model arguments passed to Embed, in call order.
func (m *MockProvider) Models() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.models))
	copy(out, m.models)
	return out
}

// Closed reports whether Close was called.
func (m *MockProvider) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset clears recorded calls and injected behavior.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.models = nil
	m.embedFunc = nil
}

var _ ai.Provider = (*MockProvider)(nil)
