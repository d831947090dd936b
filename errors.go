package searchgo

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrShuttingDown is returned for requests received while the coordinator is
// shutting down, and for requests sent after it has stopped.
var ErrShuttingDown = errors.New("update coordinator is shutting down")

// PayloadError indicates the payload stream failed in transit.
//
// The transport's original error can be accessed via errors.Unwrap.
type PayloadError struct {
	cause error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload transport failed: %v", e.cause)
}

func (e *PayloadError) Unwrap() error { return e.cause }

// InvalidPayloadError indicates the payload is not well-formed JSON.
//
// The message carries the diagnostic produced by the full fallback parse,
// not just the streaming check's rejection.
type InvalidPayloadError struct {
	cause error
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid JSON payload: %v", e.cause)
}

func (e *InvalidPayloadError) Unwrap() error { return e.cause }

// UnknownUpdateError indicates the requested sequence id does not exist for
// the collection.
type UnknownUpdateError struct {
	Collection uuid.UUID
	ID         uint64
}

func (e *UnknownUpdateError) Error() string {
	return fmt.Sprintf("unknown update %d for collection %s", e.ID, e.Collection)
}
