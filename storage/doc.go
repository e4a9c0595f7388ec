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
// Package storage provides the storage abstraction layer for kbindex.
//
// This package defines repository interfaces that decouple the storage
// implementation from ingestion and search.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return the interfaces
// defined here:
//
//	docs, err := badger.NewDocumentRepository(backend)  // returns storage.DocumentRepository
//
// # Architecture
//
//   - Repository: transaction support and lifecycle shared by all repositories
//   - DocumentRepository: documents, soft deletion and cascading deletion
//   - ChunkRepository: chunk sets, generation swaps and similarity queries
//
// # Generations
//
// Each successful ingestion writes its chunks under a new generation number
// and then flips the document's visible generation with MarkIndexed.
// Similarity queries only return chunks of the visible generation, so
// readers see either the complete old chunk set or the complete new one.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	docs, chunks, backend, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
