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
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// Documents draw IDs from a database sequence; chunk IDs are content-derived.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the identifier of a chunk from its position in a
// document generation.
func ChunkID(documentID ID, generation uint64, index int) ID {
	return IDFromContent(strconv.FormatUint(uint64(documentID), 10) + ":" +
		strconv.FormatUint(generation, 10) + ":" + strconv.Itoa(index))
}

// Document is one user-submitted source text.
type Document struct {
	Id          ID
	OwnerID     string
	WorkspaceID string // Empty when the document is not scoped to a workspace
	Title       string
	Content     string
	ChunkCount  int    // Number of live chunks in the visible generation
	Generation  uint64 // Visible chunk generation; 0 until first ingestion
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   time.Time // Zero unless soft-deleted
}

// IsDeleted reports whether the document has been soft-deleted.
func (d *Document) IsDeleted() bool {
	return !d.DeletedAt.IsZero()
}

// HasWorkspace reports whether the document is scoped to a workspace.
func (d *Document) HasWorkspace() bool {
	return d.WorkspaceID != ""
}

// Chunk is one indexed segment of a Document.
type Chunk struct {
	Id          ID
	DocumentId  ID
	OwnerID     string // Denormalized from the parent document
	WorkspaceID string
	Index       int // Zero-based, contiguous within a generation
	Content     string
	Vector      []float32 // Nil until embedded
	Dim         int
	Model       string
	Provider    string
	TokenCount  int
	Generation  uint64
	CreatedAt   time.Time
}

// HasEmbedding reports whether the chunk carries a usable vector.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Vector) > 0
}

// ChunkMatch is a chunk returned by a similarity query together with its
// cosine distance to the query vector and the title of its document.
type ChunkMatch struct {
	Chunk         *Chunk
	DocumentTitle string
	Distance      float32
}

// SearchHit is a single ranked search result.
type SearchHit struct {
	ChunkId       ID
	DocumentId    ID
	DocumentTitle string
	Score         float32
	Content       string
}
