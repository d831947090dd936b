package updatelog

import (
	"github.com/google/uuid"
)

// Store is the update log contract consumed by the coordinator.
//
// All methods are synchronous and may block on disk I/O; callers are expected
// to invoke them off their own scheduling goroutine. Implementations must be
// safe for the coordinator's serialized calls to interleave with their own
// background processing.
type Store interface {
	// Register durably records an update and assigns it the collection's next
	// sequence id. blob references a previously captured payload, or nil.
	// The returned status is always in StateEnqueued.
	Register(collection uuid.UUID, meta Meta, blob *uuid.UUID) (Status, error)

	// List returns every record of the collection in ascending sequence order.
	List(collection uuid.UUID) ([]Status, error)

	// Get returns the record with the given sequence id, or (nil, nil) when
	// the id is unknown for that collection.
	Get(collection uuid.UUID, id uint64) (*Status, error)

	// DeleteAll removes every record and payload file of the collection.
	// Deleting an unknown collection is not an error.
	DeleteAll(collection uuid.UUID) error

	// Snapshot writes a consistent, restartable copy of the named collections'
	// update state under dst, and asks indexes to snapshot index state too.
	Snapshot(collections []uuid.UUID, dst string, indexes IndexHandle) error

	// Dump serializes the named collections' update history (records, not
	// payload blobs) under dst, coordinating index dumps through indexes.
	Dump(collections []uuid.UUID, dst string, indexes IndexHandle) error

	// Stats returns aggregate statistics for the whole log.
	Stats() (Stats, error)

	// Close stops background work and releases the store.
	Close() error
}
