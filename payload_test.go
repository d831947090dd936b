package searchgo

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/searchgo/internal/fs"
	"github.com/hupe1980/searchgo/updatelog"
)

// newCaptureCoordinator builds a coordinator without starting its run loop;
// capture is exercised directly.
func newCaptureCoordinator(t *testing.T, optFns ...func(o *Options)) *Coordinator {
	t.Helper()

	all := append([]func(o *Options){func(o *Options) {
		o.Logger = NoopLogger()
	}}, optFns...)

	c, _, err := New(t.TempDir(), nil, all...)
	require.NoError(t, err)

	return c
}

func TestCapturePayload(t *testing.T) {
	c := newCaptureCoordinator(t)

	captured, err := c.capturePayload(context.Background(),
		payloadStream([]byte(`{"a"`), []byte(`:1}`)))
	require.NoError(t, err)
	require.NotNil(t, captured)
	defer captured.file.Close()

	assert.Equal(t, int64(7), captured.size)

	// The file is positioned at the start for re-reading.
	data, err := io.ReadAll(captured.file)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), data)

	_, err = os.Stat(captured.path)
	require.NoError(t, err)
}

func TestCapturePayloadEmptyStream(t *testing.T) {
	c := newCaptureCoordinator(t)

	captured, err := c.capturePayload(context.Background(), payloadStream())
	require.NoError(t, err)
	assert.Nil(t, captured)

	entries, err := os.ReadDir(c.filesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCapturePayloadStreamError(t *testing.T) {
	c := newCaptureCoordinator(t)

	streamErr := errors.New("peer went away")
	ch := make(chan Chunk, 2)
	ch <- Chunk{Data: []byte(`{"do`)}
	ch <- Chunk{Err: streamErr}
	close(ch)

	_, err := c.capturePayload(context.Background(), ch)
	require.Error(t, err)

	var payloadErr *PayloadError
	require.ErrorAs(t, err, &payloadErr)
	assert.ErrorIs(t, err, streamErr)
}

func TestCapturePayloadWriteFailure(t *testing.T) {
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("update_", fs.Fault{FailAfterBytes: 4})

	c := newCaptureCoordinator(t, func(o *Options) { o.FS = faulty })

	_, err := c.capturePayload(context.Background(),
		payloadStream([]byte(`{"a"`), []byte(`:1}`)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write payload file")
}

func TestCapturePayloadSyncFailure(t *testing.T) {
	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule("update_", fs.Fault{FailAfterBytes: -1, FailOnSync: true})

	c := newCaptureCoordinator(t, func(o *Options) { o.FS = faulty })

	_, err := c.capturePayload(context.Background(), payloadStream([]byte(`{"a":1}`)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush payload file")
}

func TestValidationFallbackOnlyOnMalformedInput(t *testing.T) {
	c := newCaptureCoordinator(t)

	status, err := c.handleUpdate(uuid.New(), updatelog.Meta{
		Kind:   updatelog.KindDocumentsAddition,
		Method: updatelog.MethodUpdate,
		Format: updatelog.FormatJSON,
	}, payloadStream([]byte(`[{"id":1},{"id":2}]`)))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.ID)

	assert.Equal(t, uint64(1), c.Validator().StreamedCount())
	assert.Zero(t, c.Validator().DiagnosedCount())

	_, err = c.handleUpdate(uuid.New(), updatelog.Meta{
		Kind:   updatelog.KindDocumentsAddition,
		Method: updatelog.MethodUpdate,
		Format: updatelog.FormatJSON,
	}, payloadStream([]byte(`[{"id":1}`)))
	require.Error(t, err)

	var invalid *InvalidPayloadError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, uint64(1), c.Validator().DiagnosedCount())
}
