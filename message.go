package searchgo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/searchgo/updatelog"
)

// Chunk is one fallible piece of a payload stream. A chunk with Err set
// terminates capture; the stream is not restartable.
type Chunk struct {
	Data []byte
	Err  error
}

// answer carries a handler result back over a request's one-shot reply channel.
type answer[T any] struct {
	value T
	err   error
}

type msg interface {
	isMsg()
}

type updateMsg struct {
	collection uuid.UUID
	meta       updatelog.Meta
	payload    <-chan Chunk
	ret        chan answer[updatelog.Status]
}

type listMsg struct {
	collection uuid.UUID
	ret        chan answer[[]updatelog.Status]
}

type getMsg struct {
	collection uuid.UUID
	id         uint64
	ret        chan answer[updatelog.Status]
}

type deleteMsg struct {
	collection uuid.UUID
	ret        chan answer[struct{}]
}

type snapshotMsg struct {
	collections []uuid.UUID
	path        string
	ret         chan answer[struct{}]
}

type dumpMsg struct {
	collections []uuid.UUID
	path        string
	ret         chan answer[struct{}]
}

type statsMsg struct {
	ret chan answer[updatelog.Stats]
}

func (updateMsg) isMsg()   {}
func (listMsg) isMsg()     {}
func (getMsg) isMsg()      {}
func (deleteMsg) isMsg()   {}
func (snapshotMsg) isMsg() {}
func (dumpMsg) isMsg()     {}
func (statsMsg) isMsg()    {}

// Handle is the client side of the coordinator: the only sender into its
// inbox. A Handle is safe for concurrent use; Close ends the coordinator's
// run loop once queued requests have drained.
//
// The mutex serializes Close against in-flight sends: closing a channel
// while a send is blocked on it panics, so Close may only proceed once no
// sender holds the read side.
type Handle struct {
	inbox chan<- msg
	done  <-chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Update submits an update for the collection. For payload-carrying kinds the
// payload channel is consumed until closed; for other kinds it is ignored.
// The returned status is in StateEnqueued with the assigned sequence id.
func (h *Handle) Update(ctx context.Context, collection uuid.UUID, meta updatelog.Meta, payload <-chan Chunk) (updatelog.Status, error) {
	ret := make(chan answer[updatelog.Status], 1)
	return send(ctx, h, updateMsg{collection: collection, meta: meta, payload: payload, ret: ret}, ret)
}

// ListUpdates returns every update record of the collection, oldest first.
func (h *Handle) ListUpdates(ctx context.Context, collection uuid.UUID) ([]updatelog.Status, error) {
	ret := make(chan answer[[]updatelog.Status], 1)
	return send(ctx, h, listMsg{collection: collection, ret: ret}, ret)
}

// GetUpdate returns the record with the given sequence id, or an
// [UnknownUpdateError] if the id is unknown for the collection.
func (h *Handle) GetUpdate(ctx context.Context, collection uuid.UUID, id uint64) (updatelog.Status, error) {
	ret := make(chan answer[updatelog.Status], 1)
	return send(ctx, h, getMsg{collection: collection, id: id, ret: ret}, ret)
}

// Delete removes every record and payload of the collection. Idempotent.
func (h *Handle) Delete(ctx context.Context, collection uuid.UUID) error {
	ret := make(chan answer[struct{}], 1)
	_, err := send(ctx, h, deleteMsg{collection: collection, ret: ret}, ret)
	return err
}

// Snapshot writes a consistent copy of the named collections' update state
// (and their index state) under path.
func (h *Handle) Snapshot(ctx context.Context, collections []uuid.UUID, path string) error {
	ret := make(chan answer[struct{}], 1)
	_, err := send(ctx, h, snapshotMsg{collections: collections, path: path, ret: ret}, ret)
	return err
}

// Dump serializes the named collections' update history under path.
func (h *Handle) Dump(ctx context.Context, collections []uuid.UUID, path string) error {
	ret := make(chan answer[struct{}], 1)
	_, err := send(ctx, h, dumpMsg{collections: collections, path: path, ret: ret}, ret)
	return err
}

// Stats returns aggregate statistics for the whole update log.
func (h *Handle) Stats(ctx context.Context) (updatelog.Stats, error) {
	ret := make(chan answer[updatelog.Stats], 1)
	return send(ctx, h, statsMsg{ret: ret}, ret)
}

// Close closes the inbox. The coordinator finishes queued requests, then its
// Run loop returns. Safe to call more than once; requests sent after Close
// fail with ErrShuttingDown, and requests racing Close either land in the
// inbox or are refused, never dropped on a closed channel.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.inbox)
}

func send[T any](ctx context.Context, h *Handle, m msg, ret chan answer[T]) (T, error) {
	var zero T

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return zero, ErrShuttingDown
	}

	select {
	case h.inbox <- m:
		h.mu.RUnlock()
	case <-h.done:
		h.mu.RUnlock()
		return zero, ErrShuttingDown
	case <-ctx.Done():
		h.mu.RUnlock()
		return zero, ctx.Err()
	}

	select {
	case a := <-ret:
		return a.value, a.err
	case <-h.done:
		// The reply may have raced the shutdown; prefer it if present.
		select {
		case a := <-ret:
			return a.value, a.err
		default:
			return zero, ErrShuttingDown
		}
	case <-ctx.Done():
		// Abandon interest; the handler still runs to completion and its
		// reply lands in the buffered channel unobserved.
		return zero, ctx.Err()
	}
}
