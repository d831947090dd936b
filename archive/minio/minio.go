// Package minio provides an archive uploader for MinIO and other
// S3-compatible object stores.
package minio

import (
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/searchgo/archive"
)

// Uploader implements archive.Uploader on a minio.Client.
type Uploader struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ archive.Uploader = (*Uploader)(nil)

// NewUploader creates a MinIO uploader writing under bucket/rootPrefix.
func NewUploader(client *minio.Client, bucket, rootPrefix string) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// Upload stores the artifact under <rootPrefix>/<name>. size may be -1 when
// unknown; the client then streams in parts.
func (u *Uploader) Upload(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := u.client.PutObject(ctx, u.bucket, path.Join(u.prefix, name), r, size, minio.PutObjectOptions{})
	return err
}
