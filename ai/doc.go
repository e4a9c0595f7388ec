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
// Package ai provides the embedding provider abstraction and the registry
// that selects among configured providers.
//
// # Provider Selection
//
// A Registry resolves which provider embeds a request:
//
//   - the caller's preferred provider, when registered
//   - the primary provider ("openai"), when registered
//   - the local provider ("ollama"), when registered
//   - otherwise the first registered provider that supports embeddings
//
// Candidates returns that whole ordering so that callers can fall back to
// the next provider when one fails.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs through langchaingo
//   - ai/ollama: a local Ollama server through langchaingo
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, ollama.NewProvider) return the
// ai.Provider interface. mock.NewMockProvider returns the concrete type so
// tests can inject behavior and inspect calls.
//
// # Usage Example
//
//	primary, err := openai.NewProvider(ai.NewConfig(ai.WithHost(host), ai.WithModel(model)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry, err := ai.NewRegistry(primary)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer registry.Close()
//
//	provider, err := registry.Resolve("")
//	vector, err := provider.Embed(ctx, "Hello world", "")
package ai
