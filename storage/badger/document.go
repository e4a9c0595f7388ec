package badger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbindex/core"
	"github.com/poiesic/kbindex/storage"
)

// DocumentRepository implements storage.DocumentRepository using BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocument validates and stores a new document.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		nextID, err := r.idSeq.Next()
		if err != nil {
			return err
		}
		// BadgerDB sequences can return 0 on first call, so we skip it
		if nextID == 0 {
			nextID, err = r.idSeq.Next()
			if err != nil {
				return err
			}
		}
		doc.Id = core.ID(nextID)
		doc.CreatedAt = time.Now().UTC()
		doc.UpdatedAt = doc.CreatedAt
		doc.ChunkCount = 0
		doc.Generation = 0
		doc.DeletedAt = time.Time{}

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

// UpdateDocument replaces the editable fields of a live document.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	var updated *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readDocument(tx, makeDocumentKey(doc.Id))
		if err != nil {
			return err
		}
		if current == nil || current.IsDeleted() {
			return storage.ErrNotFound
		}
		if current.OwnerID != doc.OwnerID {
			return storage.ErrNotFound
		}

		current.Title = doc.Title
		current.Content = doc.Content
		current.WorkspaceID = doc.WorkspaceID
		current.UpdatedAt = time.Now().UTC()
		if err := writeDocument(tx, current); err != nil {
			return err
		}
		updated = current
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListDocuments returns the documents of an owner ordered by ID.
func (r *DocumentRepository) ListDocuments(ctx context.Context, ownerID string, includeDeleted bool) ([]*core.Document, error) {
	return r.scanDocuments(ctx, ownerID, 0, 0, includeDeleted)
}

// ListDocumentsAfter returns up to limit live documents of an owner whose
// ID is greater than afterID, ordered by ID.
func (r *DocumentRepository) ListDocumentsAfter(ctx context.Context, ownerID string, afterID core.ID, limit int) ([]*core.Document, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if afterID == math.MaxUint64 {
		return nil, nil
	}
	return r.scanDocuments(ctx, ownerID, afterID, limit, false)
}

// scanDocuments walks document keys from afterID onward. A zero limit
// returns every match.
func (r *DocumentRepository) scanDocuments(ctx context.Context, ownerID string, afterID core.ID, limit int, includeDeleted bool) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeDocumentScanPrefix()
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeDocumentKey(afterID + 1)); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			if doc.OwnerID != ownerID {
				continue
			}
			if doc.IsDeleted() && !includeDeleted {
				continue
			}
			results = append(results, doc)
			if limit > 0 && len(results) == limit {
				return nil
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SoftDeleteDocument stamps DeletedAt on a document.
func (r *DocumentRepository) SoftDeleteDocument(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if doc.IsDeleted() {
			return nil
		}
		doc.DeletedAt = time.Now().UTC()
		doc.UpdatedAt = doc.DeletedAt
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteDocument removes a document and then every chunk it owns.
// Chunks left behind by a failed cascade are unreachable by similarity
// queries because their document no longer exists.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	var doc *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		if err := tx.Delete(makeDocumentKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	removed, err := r.backend.deletePrefix(makeDocumentChunkPrefix(doc.OwnerID, doc.Id))
	if err != nil {
		return fmt.Errorf("deleting chunks of document %d: %w", id, err)
	}
	r.backend.logger.Debug("deleted document", "id", id, "chunks", removed)
	return nil
}

// readDocument reads a document from a transaction.
// Returns nil, nil when the key doesn't exist.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

func writeDocument(tx *badger.Txn, doc *core.Document) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocumentKey(doc.Id), value)
}
