package updatelog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCapacityExceeded is returned by Register when the store's on-disk
	// size has reached the configured capacity.
	ErrCapacityExceeded = errors.New("update log capacity exceeded")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("update log is closed")
)

// Kind identifies the kind of mutation an update performs.
type Kind string

const (
	// KindDocumentsAddition adds or replaces documents; the documents
	// themselves travel out-of-band as a JSON payload.
	KindDocumentsAddition Kind = "documentsAddition"
	// KindDocumentsDeletion deletes the documents whose ids are carried in
	// the JSON payload.
	KindDocumentsDeletion Kind = "documentsDeletion"
	// KindClearDocuments removes every document of the collection.
	KindClearDocuments Kind = "clearDocuments"
	// KindSettingsUpdate changes collection settings carried inline in Meta.
	KindSettingsUpdate Kind = "settingsUpdate"
)

// Method selects how a documents addition treats existing documents.
type Method string

const (
	// MethodReplace overwrites existing documents entirely.
	MethodReplace Method = "replace"
	// MethodUpdate merges new fields into existing documents.
	MethodUpdate Method = "update"
)

// Format is the payload serialization format.
type Format string

// FormatJSON is currently the only supported payload format.
const FormatJSON Format = "json"

// Meta describes an update. Large content (document bodies, id lists) is
// carried out-of-band via the payload blob, never embedded here.
type Meta struct {
	Kind       Kind            `json:"kind"`
	Method     Method          `json:"method,omitempty"`
	Format     Format          `json:"format,omitempty"`
	PrimaryKey string          `json:"primaryKey,omitempty"`
	Settings   json.RawMessage `json:"settings,omitempty"`
}

// HasPayload reports whether updates of this kind carry an out-of-band payload.
func (m Meta) HasPayload() bool {
	return m.Kind == KindDocumentsAddition || m.Kind == KindDocumentsDeletion
}

// State is the lifecycle state of a registered update.
type State string

const (
	// StateEnqueued means the update is registered but not yet applied.
	StateEnqueued State = "enqueued"
	// StateProcessing means the applier is currently applying the update.
	StateProcessing State = "processing"
	// StateProcessed means the update was applied successfully.
	StateProcessed State = "processed"
	// StateFailed means applying the update failed; Error carries the cause.
	StateFailed State = "failed"
)

// Status is the persisted record of one update, as seen by callers.
type Status struct {
	Collection uuid.UUID  `json:"collection"`
	ID         uint64     `json:"id"`
	State      State      `json:"state"`
	Meta       Meta       `json:"meta"`
	Blob       *uuid.UUID `json:"blob,omitempty"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Stats is a point-in-time aggregate over the whole log.
type Stats struct {
	// DBSizeBytes is the size of the backing database file.
	DBSizeBytes int64 `json:"dbSizeBytes"`
	// PayloadSizeBytes is the total size of captured payload files.
	PayloadSizeBytes int64 `json:"payloadSizeBytes"`
	// Enqueued is the number of updates waiting to be applied.
	Enqueued uint64 `json:"enqueued"`
	// Processed and Failed count terminal records still in the log.
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	// Processing is the collection currently being applied, if any.
	Processing *uuid.UUID `json:"processing,omitempty"`
}

// IndexHandle is the narrow view of the index-management subsystem the update
// log needs: applying registered updates and capturing index state alongside
// snapshots and dumps. It is passed through opaquely by the coordinator.
type IndexHandle interface {
	// ProcessUpdate applies one update. payload is nil for payload-less kinds,
	// otherwise it reads the captured blob from the start.
	ProcessUpdate(ctx context.Context, status Status, payload io.Reader) error

	// SnapshotIndex captures a consistent copy of the collection's index
	// state under dst.
	SnapshotIndex(ctx context.Context, collection uuid.UUID, dst string) error

	// DumpIndex serializes the collection's index state under dst.
	DumpIndex(ctx context.Context, collection uuid.UUID, dst string) error
}
