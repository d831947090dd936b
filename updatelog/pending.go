package updatelog

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"
)

// pendingTracker mirrors the set of enqueued sequence ids per collection in
// memory, so Stats and the applier's idle check never hit the database.
// The database stays authoritative; the tracker is rebuilt at open.
type pendingTracker struct {
	mu           sync.Mutex
	byCollection map[uuid.UUID]*roaring64.Bitmap
}

func newPendingTracker() *pendingTracker {
	return &pendingTracker{
		byCollection: make(map[uuid.UUID]*roaring64.Bitmap),
	}
}

func (t *pendingTracker) add(collection uuid.UUID, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bm, ok := t.byCollection[collection]
	if !ok {
		bm = roaring64.New()
		t.byCollection[collection] = bm
	}
	bm.Add(seq)
}

func (t *pendingTracker) remove(collection uuid.UUID, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bm, ok := t.byCollection[collection]
	if !ok {
		return
	}
	bm.Remove(seq)
	if bm.IsEmpty() {
		delete(t.byCollection, collection)
	}
}

func (t *pendingTracker) drop(collection uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byCollection, collection)
}

func (t *pendingTracker) count() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n uint64
	for _, bm := range t.byCollection {
		n += bm.GetCardinality()
	}
	return n
}

func (t *pendingTracker) isEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byCollection) == 0
}

// contains reports whether the sequence id is still enqueued.
func (t *pendingTracker) contains(collection uuid.UUID, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	bm, ok := t.byCollection[collection]
	return ok && bm.Contains(seq)
}
