package searchgo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hupe1980/searchgo/internal/fs"
	"github.com/hupe1980/searchgo/updatelog"
)

// capturedPayload is a materialized payload blob, positioned at its start for
// re-reading by validation and registration.
type capturedPayload struct {
	file fs.File
	id   uuid.UUID
	path string
	size int64
}

// discardPayload removes a captured blob that will not be registered, so the
// file neither lingers nor counts toward the capacity budget.
func (c *Coordinator) discardPayload(captured *capturedPayload) {
	if err := c.fsys.Remove(captured.path); err != nil {
		c.logger.Warn("rejected payload file not removed",
			slog.String("path", captured.path), slog.Any("error", err))
	}
}

// capturePayload drains the chunk stream into a freshly named blob file.
// It returns (nil, nil) when the stream carried zero bytes; the empty file is
// removed so no blob outlives an empty submission.
//
// On a transport or write failure after the first chunk, the partially
// written file is left behind; the update is never registered, so the file is
// unreferenced garbage, not corrupt state.
func (c *Coordinator) capturePayload(ctx context.Context, payload <-chan Chunk) (*capturedPayload, error) {
	id := uuid.New()
	path := filepath.Join(c.filesDir, updatelog.PayloadFileName(id))

	file, err := c.fsys.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create payload file: %w", err)
	}

	var size int64
	for chunk := range payload {
		if chunk.Err != nil {
			_ = file.Close()
			c.logger.Warn("payload stream failed",
				slog.String("path", path), slog.Any("error", chunk.Err))
			return nil, &PayloadError{cause: chunk.Err}
		}

		if err := c.resources.WaitIO(ctx, len(chunk.Data)); err != nil {
			_ = file.Close()
			return nil, err
		}

		n, err := file.Write(chunk.Data)
		size += int64(n)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write payload file: %w", err)
		}
	}

	if size == 0 {
		_ = file.Close()
		if err := c.fsys.Remove(path); err != nil {
			return nil, fmt.Errorf("remove empty payload file: %w", err)
		}
		return nil, nil
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("flush payload file: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("rewind payload file: %w", err)
	}

	return &capturedPayload{file: file, id: id, path: path, size: size}, nil
}
