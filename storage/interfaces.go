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
package storage

import (
	"context"

	"github.com/poiesic/kbindex/core"
)

// Repository defines the operations every repository shares.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases resources held by the repository.
	Close() error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository
	// AddDocument validates and stores a new document.
	// Generates the ID from a sequence and sets CreatedAt/UpdatedAt.
	// Ingestion bookkeeping (ChunkCount, Generation, DeletedAt) is reset.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// UpdateDocument replaces title, content and workspace of a live document.
	// Chunk bookkeeping is preserved; re-ingest with overwrite to refresh chunks.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a single document by ID, including soft-deleted ones.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns the documents of an owner ordered by ID.
	// Soft-deleted documents are included only when includeDeleted is true.
	ListDocuments(ctx context.Context, ownerID string, includeDeleted bool) ([]*core.Document, error)

	// ListDocumentsAfter pages through the live documents of an owner: it
	// returns up to limit of them with an ID greater than afterID, ordered
	// by ID. Pass 0 to start from the beginning.
	ListDocumentsAfter(ctx context.Context, ownerID string, afterID core.ID, limit int) ([]*core.Document, error)

	// SoftDeleteDocument stamps DeletedAt. Chunks stay in storage but are
	// no longer returned by similarity queries.
	// Returns ErrNotFound if the document doesn't exist.
	SoftDeleteDocument(ctx context.Context, id core.ID) error

	// DeleteDocument removes a document and every chunk it owns.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error
}

// ChunkQuery describes a nearest-neighbor query over chunks.
type ChunkQuery struct {
	// OwnerID restricts matches to one owner. Required.
	OwnerID string

	// WorkspaceID additionally restricts both chunk and document to a
	// workspace when non-empty.
	WorkspaceID string

	// Vector is the query embedding. Only chunks of the same dimension match.
	Vector []float32

	// Limit caps the number of matches returned.
	Limit int

	// MaxCandidates bounds the nearest visible chunks kept while scanning.
	// Chunks of deleted documents and stale generations never count
	// against it. Raised to Limit when smaller.
	MaxCandidates int
}

// ChunkRepository provides operations for managing chunks.
type ChunkRepository interface {
	Repository
	// InsertChunks validates and stores chunks. Existing chunks with the same
	// key are replaced.
	InsertChunks(ctx context.Context, chunks ...*core.Chunk) error

	// GetChunks returns the chunks of one document generation ordered by index.
	GetChunks(ctx context.Context, ownerID string, documentID core.ID, generation uint64) ([]*core.Chunk, error)

	// DeleteChunks removes the chunks of a document and returns how many were
	// removed. Chunks of keepGeneration survive; 0 removes every generation.
	DeleteChunks(ctx context.Context, ownerID string, documentID core.ID, keepGeneration uint64) (int, error)

	// DeleteGeneration removes the chunks of exactly one document generation.
	DeleteGeneration(ctx context.Context, ownerID string, documentID core.ID, generation uint64) (int, error)

	// MarkIndexed makes generation the visible chunk set of the document and
	// records its chunk count in one transaction. UpdatedAt is refreshed.
	// Returns ErrNotFound if the document doesn't exist.
	MarkIndexed(ctx context.Context, documentID core.ID, generation uint64, chunkCount int) (*core.Document, error)

	// FindSimilarChunks returns the live chunks nearest to the query vector,
	// ordered by ascending cosine distance.
	FindSimilarChunks(ctx context.Context, query ChunkQuery) ([]*core.ChunkMatch, error)
}
