package updatelog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingIndexes is an IndexHandle for tests. It records everything it is
// asked to do and can be told to fail specific update kinds.
type recordingIndexes struct {
	mu        sync.Mutex
	processed []Status
	payloads  map[uint64][]byte
	failWith  map[Kind]error
	snapshots []uuid.UUID
	dumps     []uuid.UUID
}

func newRecordingIndexes() *recordingIndexes {
	return &recordingIndexes{
		payloads: make(map[uint64][]byte),
		failWith: make(map[Kind]error),
	}
}

func (r *recordingIndexes) ProcessUpdate(_ context.Context, status Status, payload io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payload != nil {
		data, err := io.ReadAll(payload)
		if err != nil {
			return err
		}
		r.payloads[status.ID] = data
	}
	if err := r.failWith[status.Meta.Kind]; err != nil {
		return err
	}
	r.processed = append(r.processed, status)
	return nil
}

func (r *recordingIndexes) SnapshotIndex(_ context.Context, collection uuid.UUID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, collection)
	return nil
}

func (r *recordingIndexes) DumpIndex(_ context.Context, collection uuid.UUID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dumps = append(r.dumps, collection)
	return nil
}

func (r *recordingIndexes) processedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.processed)
}

// openTestStore opens a store without an applier so records stay Enqueued.
func openTestStore(t *testing.T, optFns ...func(o *Options)) *SQLiteStore {
	t.Helper()

	dir := t.TempDir()
	all := append([]func(o *Options){func(o *Options) { o.Path = dir }}, optFns...)

	store, err := Open(nil, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	store := openTestStore(t)
	collection := uuid.New()

	for want := uint64(1); want <= 5; want++ {
		status, err := store.Register(collection, Meta{Kind: KindClearDocuments}, nil)
		require.NoError(t, err)
		assert.Equal(t, want, status.ID)
		assert.Equal(t, StateEnqueued, status.State)
	}

	statuses, err := store.List(collection)
	require.NoError(t, err)
	require.Len(t, statuses, 5)
	for i, status := range statuses {
		assert.Equal(t, uint64(i+1), status.ID, "no gaps or repeats")
	}
}

func TestSequencesAreIndependentPerCollection(t *testing.T) {
	store := openTestStore(t)
	a, b := uuid.New(), uuid.New()

	sa, err := store.Register(a, Meta{Kind: KindClearDocuments}, nil)
	require.NoError(t, err)
	sb, err := store.Register(b, Meta{Kind: KindClearDocuments}, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), sa.ID)
	assert.Equal(t, uint64(1), sb.ID)
}

func TestRegisterRoundTripsMeta(t *testing.T) {
	store := openTestStore(t)
	collection := uuid.New()
	blob := uuid.New()

	meta := Meta{
		Kind:       KindDocumentsAddition,
		Method:     MethodReplace,
		Format:     FormatJSON,
		PrimaryKey: "id",
	}

	status, err := store.Register(collection, meta, &blob)
	require.NoError(t, err)
	require.NotNil(t, status.Blob)
	assert.Equal(t, blob, *status.Blob)

	got, err := store.Get(collection, status.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, meta, got.Meta)
	require.NotNil(t, got.Blob)
	assert.Equal(t, blob, *got.Blob)
	assert.Equal(t, StateEnqueued, got.State)
}

func TestGetUnknownUpdate(t *testing.T) {
	store := openTestStore(t)
	collection := uuid.New()

	got, err := store.Get(collection, 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteAllIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	collection := uuid.New()

	for range 3 {
		_, err := store.Register(collection, Meta{Kind: KindClearDocuments}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, store.DeleteAll(collection))
	statuses, err := store.List(collection)
	require.NoError(t, err)
	assert.Empty(t, statuses)

	// Second delete of an already-empty collection must not error.
	require.NoError(t, store.DeleteAll(collection))
	statuses, err = store.List(collection)
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestDeleteAllRemovesPayloadFiles(t *testing.T) {
	store := openTestStore(t)
	collection := uuid.New()
	blob := uuid.New()

	path := filepath.Join(store.filesDir, PayloadFileName(blob))
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o640))

	_, err := store.Register(collection, Meta{Kind: KindDocumentsAddition, Format: FormatJSON}, &blob)
	require.NoError(t, err)

	require.NoError(t, store.DeleteAll(collection))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRegisterCapacityExceeded(t *testing.T) {
	store := openTestStore(t, func(o *Options) { o.Capacity = 1 })

	_, err := store.Register(uuid.New(), Meta{Kind: KindClearDocuments}, nil)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestStats(t *testing.T) {
	store := openTestStore(t)
	collection := uuid.New()

	for range 4 {
		_, err := store.Register(collection, Meta{Kind: KindClearDocuments}, nil)
		require.NoError(t, err)
	}

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.Enqueued)
	assert.Zero(t, stats.Processed)
	assert.Zero(t, stats.Failed)
	assert.Positive(t, stats.DBSizeBytes)
	assert.Nil(t, stats.Processing)
}

func TestReopenRebuildsPending(t *testing.T) {
	dir := t.TempDir()
	collection := uuid.New()

	store, err := Open(nil, func(o *Options) { o.Path = dir })
	require.NoError(t, err)
	for range 2 {
		_, err := store.Register(collection, Meta{Kind: KindClearDocuments}, nil)
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := Open(nil, func(o *Options) { o.Path = dir })
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint64(2), reopened.pending.count())
	assert.True(t, reopened.pending.contains(collection, 1))
	assert.True(t, reopened.pending.contains(collection, 2))
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(nil, func(o *Options) { o.Path = dir })
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Register(uuid.New(), Meta{Kind: KindClearDocuments}, nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.List(uuid.New())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = store.Stats()
	assert.ErrorIs(t, err, ErrClosed)
}
