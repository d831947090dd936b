package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirUploader copies artifacts into a local directory, preserving relative
// paths. Useful for network mounts and for tests.
type DirUploader struct {
	root string
}

// NewDirUploader creates a DirUploader rooted at the given directory.
func NewDirUploader(root string) *DirUploader {
	return &DirUploader{root: root}
}

// Upload writes the artifact to <root>/<name>.
func (u *DirUploader) Upload(_ context.Context, name string, r io.Reader, _ int64) error {
	dst := filepath.Join(u.root, filepath.FromSlash(name))

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write archive file: %w", err)
	}

	return f.Close()
}
