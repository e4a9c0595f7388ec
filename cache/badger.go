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
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	kbbadger "github.com/poiesic/kbindex/storage/badger"
)

// entryPrefix namespaces cache entries inside the shared badger database.
const entryPrefix = "kbcache:"

// Badger is a Cache that stores entries with native badger TTLs in the
// document store's database, so cached results survive restarts.
type Badger struct {
	backend *kbbadger.Backend
}

var _ Cache = (*Badger)(nil)

// NewBadger creates a cache on an open backend. The backend stays owned by
// the caller; Close does not close it.
func NewBadger(backend *kbbadger.Backend) (*Badger, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &Badger{backend: backend}, nil
}

// Get returns the payload stored under key.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := b.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(entryPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	}, false)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

// Set stores value under key for ttl.
func (b *Badger) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.backend.WithTx(func(tx *badger.Txn) error {
		entry := badger.NewEntry([]byte(entryPrefix+key), value).WithTTL(ttl)
		if err := tx.SetEntry(entry); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Invalidate removes every live key matching pattern. The literal prefix of
// the pattern bounds the scan.
func (b *Badger) Invalidate(ctx context.Context, pattern string) (int, error) {
	prefix := []byte(entryPrefix + literalPrefix(pattern))
	var keys [][]byte
	err := b.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			if Match(pattern, string(key[len(entryPrefix):])) {
				keys = append(keys, key)
			}
		}
		return nil
	}, false)
	if err != nil || len(keys) == 0 {
		return 0, err
	}

	wb := b.backend.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close is a no-op; the backend is closed by its owner.
func (b *Badger) Close() error {
	return nil
}
