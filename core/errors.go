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

package core

import "errors"

// Operation errors shared by ingestion and search. All of them are terminal
// for the operation that returned them.
var (
	// ErrDocumentNotFound indicates the document is missing, owned by someone
	// else, or soft-deleted.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEmptyContent indicates chunking produced no chunks.
	ErrEmptyContent = errors.New("document has no indexable content")

	// ErrEmptyQuery indicates a blank search query.
	ErrEmptyQuery = errors.New("search query is empty")

	// ErrNoEmbeddingProvider indicates no usable embedding provider is configured.
	ErrNoEmbeddingProvider = errors.New("no embedding provider available")

	// ErrEmbeddingFailed indicates a provider call failed or returned an empty vector.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyOwner indicates the owner identifier is empty.
	ErrEmptyOwner = errors.New("owner cannot be empty")

	// ErrDimensionMismatch indicates a chunk's Dim does not match its vector length.
	ErrDimensionMismatch = errors.New("embedding dimension does not match vector length")

	// ErrInvalidChunkIndex indicates a negative chunk index.
	ErrInvalidChunkIndex = errors.New("chunk index cannot be negative")
)
