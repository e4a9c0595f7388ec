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

import "context"

// Provider is an embedding backend exposed through a uniform capability.
// Implementations must be thread-safe for concurrent use.
type Provider interface {
	// Name returns the name the provider is registered under.
	Name() string

	// Embed generates a vector embedding for a single text string.
	// An empty model selects the provider's configured default model.
	// Returns an error if the embedding generation fails.
	Embed(ctx context.Context, text, model string) ([]float32, error)

	// SupportsEmbeddings reports whether the provider can be picked by the
	// fallback scan of a Registry.
	SupportsEmbeddings() bool

	// Close releases resources held by the provider.
	// After Close is called, the provider should not be used.
	Close() error
}

// ModelReporter is implemented by providers that can name the model used
// when a call passes no model.
type ModelReporter interface {
	DefaultModel() string
}

// ModelName returns the model a call to p with requested will use.
func ModelName(p Provider, requested string) string {
	if requested != "" {
		return requested
	}
	if r, ok := p.(ModelReporter); ok {
		return r.DefaultModel()
	}
	return ""
}
