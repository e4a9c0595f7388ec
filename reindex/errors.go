package reindex

import "errors"

var (
	// ErrOwnerRequired is returned when Run is called without an owner.
	ErrOwnerRequired = errors.New("owner required")

	// ErrIncomplete is returned when some documents could not be reindexed.
	ErrIncomplete = errors.New("reindex incomplete")
)
