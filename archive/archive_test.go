package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirUploader(t *testing.T) {
	root := t.TempDir()
	up := NewDirUploader(root)

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "updates.dump"), []byte("records"), 0o640))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "update_files"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "update_files", "update_x"), []byte(`{"a":1}`), 0o640))

	require.NoError(t, UploadDir(context.Background(), up, src))

	data, err := os.ReadFile(filepath.Join(root, "updates.dump"))
	require.NoError(t, err)
	assert.Equal(t, []byte("records"), data)

	data, err = os.ReadFile(filepath.Join(root, "update_files", "update_x"))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), data)
}

func TestUploadDirMissing(t *testing.T) {
	up := NewDirUploader(t.TempDir())
	err := UploadDir(context.Background(), up, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
