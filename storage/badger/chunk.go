package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/storage"
)

// DefaultMaxCandidates bounds a similarity query when the caller sets no bound.
const DefaultMaxCandidates = 200

// ChunkRepository implements storage.ChunkRepository using BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	return &ChunkRepository{
		backend: backend,
	}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (r *ChunkRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// InsertChunks validates and stores chunks through a write batch.
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks ...*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
		value, err := storage.MarshalChunk(chunk)
		if err != nil {
			return err
		}
		if err := wb.Set(makeChunkKey(chunk), value); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// GetChunks returns the chunks of one document generation ordered by index.
func (r *ChunkRepository) GetChunks(ctx context.Context, ownerID string, documentID core.ID, generation uint64) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeGenerationChunkPrefix(ownerID, documentID, generation)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			chunk, err := readChunkItem(iter.Item())
			if err != nil {
				return err
			}
			if chunk.OwnerID != ownerID {
				continue
			}
			results = append(results, chunk)
		}
		return nil
	}, false)
	return results, err
}

// DeleteChunks removes the chunks of a document, sparing keepGeneration.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, ownerID string, documentID core.ID, keepGeneration uint64) (int, error) {
	prefix := makeDocumentChunkPrefix(ownerID, documentID)
	if keepGeneration == 0 {
		return r.backend.deletePrefix(prefix)
	}

	var stale [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range collectKeys(tx, prefix) {
			generation, ok := generationFromChunkKey(key, len(prefix))
			if ok && generation == keepGeneration {
				continue
			}
			stale = append(stale, key)
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	return r.backend.deleteKeys(stale)
}

// DeleteGeneration removes the chunks of one document generation.
func (r *ChunkRepository) DeleteGeneration(ctx context.Context, ownerID string, documentID core.ID, generation uint64) (int, error) {
	return r.backend.deletePrefix(makeGenerationChunkPrefix(ownerID, documentID, generation))
}

// MarkIndexed flips the visible generation of a document and records its
// chunk count.
func (r *ChunkRepository) MarkIndexed(ctx context.Context, documentID core.ID, generation uint64, chunkCount int) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, makeDocumentKey(documentID))
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		doc.Generation = generation
		doc.ChunkCount = chunkCount
		doc.UpdatedAt = time.Now().UTC()
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FindSimilarChunks scans the owner's chunks, joins each against its
// document and keeps the nearest MaxCandidates visible ones by cosine
// distance. Chunks of deleted documents, stale generations and other
// workspaces never take a candidate slot.
func (r *ChunkRepository) FindSimilarChunks(ctx context.Context, query storage.ChunkQuery) ([]*core.ChunkMatch, error) {
	if query.OwnerID == "" || len(query.Vector) == 0 {
		return nil, fmt.Errorf("%w: owner and vector are required", storage.ErrInvalidQuery)
	}
	if query.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	maxCandidates := query.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	if maxCandidates < query.Limit {
		maxCandidates = query.Limit
	}

	queryNorm := norm(query.Vector)
	dim := len(query.Vector)
	nearest := newCandidateSet(maxCandidates)
	documents := make(map[core.ID]*core.Document)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeOwnerChunkPrefix(query.OwnerID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := readChunkItem(iter.Item())
			if err != nil {
				return err
			}
			if chunk.OwnerID != query.OwnerID || !chunk.HasEmbedding() {
				continue
			}
			if chunk.Dim != dim || len(chunk.Vector) != dim {
				continue
			}
			if query.WorkspaceID != "" && chunk.WorkspaceID != query.WorkspaceID {
				continue
			}

			doc, seen := documents[chunk.DocumentId]
			if !seen {
				if doc, err = readDocument(tx, makeDocumentKey(chunk.DocumentId)); err != nil {
					return err
				}
				documents[chunk.DocumentId] = doc
			}
			if doc == nil || !visible(doc, chunk, query) {
				continue
			}
			nearest.add(chunk, cosineDistance(query.Vector, queryNorm, chunk.Vector))
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	matches := nearest.sorted()
	if len(matches) > query.Limit {
		matches = matches[:query.Limit]
	}
	for _, match := range matches {
		match.DocumentTitle = documents[match.Chunk.DocumentId].Title
	}
	return matches, nil
}

// visible reports whether a chunk belongs to the current state of its document.
func visible(doc *core.Document, chunk *core.Chunk, query storage.ChunkQuery) bool {
	if doc.IsDeleted() || doc.OwnerID != query.OwnerID {
		return false
	}
	if doc.Generation != chunk.Generation {
		return false
	}
	if query.WorkspaceID != "" && doc.WorkspaceID != query.WorkspaceID {
		return false
	}
	return true
}

func readChunkItem(item *badger.Item) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}
