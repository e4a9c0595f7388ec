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

package reindex

import (
	"context"

	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/storage"
)

const (
	// DefaultBatchSize is the default number of documents handled per batch
	DefaultBatchSize = 50
)

// DocumentIterator iterates over the live documents of an owner in batches.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch (must be > 0)
func NewDocumentIterator(repo storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn with consecutive batches of the owner's live documents,
// ordered by ID. Each batch is read from the repository on its own, so only
// one batch of documents is held at a time. Documents added during the walk
// are picked up when their ID sorts after the current batch.
// Iteration stops on the first error from fn.
// Context cancellation is checked between batches.
func (it *DocumentIterator) ForEach(ctx context.Context, ownerID string, fn func([]*core.Document) error) error {
	var after core.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		docs, err := it.repo.ListDocumentsAfter(ctx, ownerID, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}
		if err := fn(docs); err != nil {
			return err
		}
		if len(docs) < it.batchSize {
			return nil
		}
		after = docs[len(docs)-1].Id
	}
}
