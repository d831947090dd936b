// Package archive ships snapshot and dump artifacts to durable storage.
//
// The coordinator writes snapshots and dumps to a local directory; an
// [Uploader] then copies those artifacts off-box. Implementations exist for
// a local directory, S3, and MinIO.
package archive

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Uploader stores one named artifact. Implementations must be safe for
// concurrent use; UploadDir uploads several artifacts at once.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64) error
}

// UploadDir uploads every regular file under dir, concurrently, using the
// file's dir-relative path as its artifact name.
func UploadDir(ctx context.Context, up Uploader, dir string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		name, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			return up.Upload(ctx, filepath.ToSlash(name), f, info.Size())
		})

		return nil
	})
	if err != nil {
		_ = g.Wait()
		return err
	}

	return g.Wait()
}
