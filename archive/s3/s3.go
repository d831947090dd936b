// Package s3 provides an archive uploader backed by Amazon S3.
package s3

import (
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hupe1980/searchgo/archive"
)

// Uploader implements archive.Uploader for S3. Large artifacts (snapshot
// databases) go through the SDK's multipart upload manager.
type Uploader struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ archive.Uploader = (*Uploader)(nil)

// NewUploader creates an S3 uploader writing under bucket/rootPrefix.
func NewUploader(client *s3.Client, bucket, rootPrefix string) *Uploader {
	return &Uploader{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
	}
}

// NewUploaderFromEnv builds the S3 client from the default AWS config chain
// (environment, shared config, instance role).
func NewUploaderFromEnv(ctx context.Context, bucket, rootPrefix string) (*Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewUploader(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

// Upload stores the artifact under <rootPrefix>/<name>.
func (u *Uploader) Upload(ctx context.Context, name string, r io.Reader, _ int64) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(path.Join(u.prefix, name)),
		Body:   r,
	})
	return err
}
