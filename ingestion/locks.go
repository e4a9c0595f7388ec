package ingestion

import (
	"sync"

	"github.com/poiesic/kbindex/core"
)

// documentLocks hands out one mutex per document id and frees it once no
// run holds or waits for it.
type documentLocks struct {
	mu    sync.Mutex
	locks map[core.ID]*documentLock
}

type documentLock struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{locks: make(map[core.ID]*documentLock)}
}

// lock blocks until the caller holds the lock for id and returns the unlock function.
func (l *documentLocks) lock(id core.ID) func() {
	l.mu.Lock()
	dl, ok := l.locks[id]
	if !ok {
		dl = &documentLock{}
		l.locks[id] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()
	return func() {
		dl.mu.Unlock()
		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *documentLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
