package snapshot

import "errors"

var (
	// ErrOutOfOrder rejects an append not strictly newer than the stored latest.
	ErrOutOfOrder = errors.New("snapshot out of order")
	// ErrStoreUnavailable marks backend failures that abort an ingestion cycle.
	ErrStoreUnavailable = errors.New("snapshot store unavailable")
)
