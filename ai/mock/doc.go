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
// Package mock provides a test double for ai.Provider.
//
// The mock lets tests run without an embedding service and gives
// controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	provider := mock.NewMockProvider("openai")
//	vector, err := provider.Embed(ctx, "test", "")
//
//	// Custom behavior injection
//	provider.WithEmbedFunc(func(ctx context.Context, text, model string) ([]float32, error) {
//	    return []float32{0.1, 0.2, 0.3}, nil
//	})
//
//	// Check call counts
//	count := provider.CallCount()
//
// # Default Behavior
//
// Embed returns a deterministic vector derived from an FNV hash of the text,
// so equal texts always produce equal vectors.
package mock
