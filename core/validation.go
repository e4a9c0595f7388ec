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

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - OwnerID must not be empty
//
// NOT validated:
//   - Content (blank content is accepted; ingestion reports ErrEmptyContent)
//   - ChunkCount and Generation (owned by the ingestion pipeline)
//   - ID (0 is valid before a sequence value is assigned)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.OwnerID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyOwner)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - OwnerID must not be empty
//   - Index must not be negative
//   - Dim must equal len(Vector) when a vector is present
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if strings.TrimSpace(chunk.OwnerID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyOwner)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrInvalidChunkIndex)
	}

	if chunk.HasEmbedding() && chunk.Dim != len(chunk.Vector) {
		return fmt.Errorf("%w: %w: dim %d, vector %d", ErrInvalidChunk, ErrDimensionMismatch, chunk.Dim, len(chunk.Vector))
	}

	return nil
}
