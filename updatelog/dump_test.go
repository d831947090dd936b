package updatelog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/searchgo/codec"
)

func TestDumpRoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionZstd, CompressionLZ4} {
		t.Run(string(compression), func(t *testing.T) {
			store := openTestStore(t, func(o *Options) { o.Compression = compression })
			indexes := newRecordingIndexes()
			collection := uuid.New()

			var want []uint64
			for range 3 {
				status, err := store.Register(collection, Meta{Kind: KindClearDocuments}, nil)
				require.NoError(t, err)
				want = append(want, status.ID)
			}

			dst := filepath.Join(t.TempDir(), "dump")
			require.NoError(t, store.Dump([]uuid.UUID{collection}, dst, indexes))

			data, err := os.ReadFile(filepath.Join(dst, DumpFileName))
			require.NoError(t, err)

			statuses, err := ReadDump(bytes.NewReader(data))
			require.NoError(t, err)
			require.Len(t, statuses, len(want))
			for i, status := range statuses {
				assert.Equal(t, want[i], status.ID)
				assert.Equal(t, collection, status.Collection)
				assert.Equal(t, KindClearDocuments, status.Meta.Kind)
			}

			assert.Equal(t, []uuid.UUID{collection}, indexes.dumps)
		})
	}
}

func TestDumpOnlyNamedCollections(t *testing.T) {
	store := openTestStore(t)
	indexes := newRecordingIndexes()
	included, excluded := uuid.New(), uuid.New()

	_, err := store.Register(included, Meta{Kind: KindClearDocuments}, nil)
	require.NoError(t, err)
	_, err = store.Register(excluded, Meta{Kind: KindClearDocuments}, nil)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "dump")
	require.NoError(t, store.Dump([]uuid.UUID{included}, dst, indexes))

	f, err := os.Open(filepath.Join(dst, DumpFileName))
	require.NoError(t, err)
	defer f.Close()

	statuses, err := ReadDump(f)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, included, statuses[0].Collection)
}

func TestWriteDumpUnknownCompression(t *testing.T) {
	var buf bytes.Buffer
	err := writeDump(&buf, codec.Default, Compression("gzip"), nil)
	assert.Error(t, err)
}

func TestSnapshotProducesRestartableCopy(t *testing.T) {
	store := openTestStore(t)
	indexes := newRecordingIndexes()
	collection := uuid.New()

	blob := uuid.New()
	payloadPath := filepath.Join(store.filesDir, PayloadFileName(blob))
	require.NoError(t, os.WriteFile(payloadPath, []byte(`{"a":1}`), 0o640))

	_, err := store.Register(collection, Meta{Kind: KindDocumentsAddition, Format: FormatJSON}, &blob)
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "snapshot")
	require.NoError(t, store.Snapshot([]uuid.UUID{collection}, dst, indexes))
	assert.Equal(t, []uuid.UUID{collection}, indexes.snapshots)

	// The pending payload file travels with the snapshot.
	copied, err := os.ReadFile(filepath.Join(dst, "update_files", PayloadFileName(blob)))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), copied)

	// The copied database opens as a working store with the same records.
	restored, err := Open(nil, func(o *Options) { o.Path = dst })
	require.NoError(t, err)
	defer restored.Close()

	statuses, err := restored.List(collection)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, uint64(1), statuses[0].ID)
	assert.Equal(t, StateEnqueued, statuses[0].State)
}
