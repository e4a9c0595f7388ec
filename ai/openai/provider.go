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
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/kbindex/ai"
	"github.com/tmc/langchaingo/embeddings"
)

// Provider implements ai.Provider using OpenAI-compatible embedding APIs.
// Embedders are created lazily per model and reused.
type Provider struct {
	config    *ai.Config
	name      string
	mu        sync.Mutex
	embedders map[string]embeddings.Embedder
	logger    *slog.Logger
}

// NewProvider creates a new embedding provider for an OpenAI-compatible service.
// The config is normalized and validated before use.
//
// Returns ai.Provider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	return newProvider(config)
}

func newProvider(config *ai.Config) (*Provider, error) {
	if config == nil {
		config = ai.DefaultConfig()
	}
	config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	name := config.Name
	if name == "" {
		name = ai.PrimaryProvider
	}

	p := &Provider{
		config:    config,
		name:      name,
		embedders: make(map[string]embeddings.Embedder),
		logger:    slog.Default().With("component", "openai-provider", "provider", name),
	}

	// Fail fast on a bad default model configuration.
	if _, err := p.embedderFor(config.Model); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the registry name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// DefaultModel returns the model used when a call names none.
func (p *Provider) DefaultModel() string {
	return p.config.Model
}

// SupportsEmbeddings always reports true.
func (p *Provider) SupportsEmbeddings() bool {
	return true
}

// Embed generates a vector embedding for text using model, or the configured
// default model when model is empty.
func (p *Provider) Embed(ctx context.Context, text, model string) ([]float32, error) {
	if model == "" {
		model = p.config.Model
	}
	embedder, err := p.embedderFor(model)
	if err != nil {
		return nil, err
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	return embedText(ctx, p.logger, embedder, text)
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}

func (p *Provider) embedderFor(model string) (embeddings.Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.embedders[model]; ok {
		return e, nil
	}
	e, err := newEmbedder(p.config, model)
	if err != nil {
		return nil, fmt.Errorf("creating embedder for model %s: %w", model, err)
	}
	p.embedders[model] = e
	return e, nil
}
