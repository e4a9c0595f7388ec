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
// Package ollama provides an embedding provider backed by a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/poiesic/kbindex/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// DefaultHost is the address of a stock Ollama install.
const DefaultHost = "http://localhost:11434"

// Provider implements ai.Provider against Ollama's native API.
type Provider struct {
	config    *ai.Config
	name      string
	host      string
	mu        sync.Mutex
	embedders map[string]embeddings.Embedder
	logger    *slog.Logger
}

// NewProvider creates an Ollama embedding provider.
// An empty Host selects DefaultHost. A trailing /v1 is removed since the
// native client talks to the server root.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if config == nil {
		config = ai.DefaultConfig()
	}
	host := strings.TrimSuffix(strings.TrimSuffix(config.Host, "/"), "/v1")
	if host == "" {
		host = DefaultHost
	}
	if config.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}

	name := config.Name
	if name == "" {
		name = ai.LocalProvider
	}
	return &Provider{
		config:    config,
		name:      name,
		host:      host,
		embedders: make(map[string]embeddings.Embedder),
		logger:    slog.Default().With("component", "ollama-provider", "provider", name),
	}, nil
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

// Embed generates a vector for text with model, or the configured default.
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

	p.logger.Debug("generating embedding", "model", model, "length", len(text))
	vector, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		p.logger.Error("failed to generate embedding", "model", model, "err", err)
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("ollama returned an empty vector for model %s", model)
	}
	return vector, nil
}

// Close is a no-op; the HTTP client holds no long-lived resources.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) embedderFor(model string) (embeddings.Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.embedders[model]; ok {
		return e, nil
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(p.host))
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	e, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating ollama embedder: %w", err)
	}
	p.embedders[model] = e
	return e, nil
}
