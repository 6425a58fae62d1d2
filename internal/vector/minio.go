package vector

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend stores the index as a single object in S3-compatible storage.
// A PutObject replaces the object atomically, so readers see the old or the new snapshot.
type MinioBackend struct {
	client *minio.Client
	bucket string
	object string
}

// MinioOptions locates the index object.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Object    string
	UseSSL    bool
}

// NewMinioBackend connects to the endpoint and creates the bucket if it is missing.
func NewMinioBackend(ctx context.Context, opts MinioOptions) (*MinioBackend, error) {
	if opts.Endpoint == "" || opts.Bucket == "" || opts.Object == "" {
		return nil, fmt.Errorf("minio backend: endpoint, bucket and object are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio backend: create client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio backend: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio backend: create bucket: %w", err)
		}
	}
	return NewMinioBackendWithClient(client, opts.Bucket, opts.Object), nil
}

// NewMinioBackendWithClient wraps an existing client.
func NewMinioBackendWithClient(client *minio.Client, bucket, object string) *MinioBackend {
	return &MinioBackend{client: client, bucket: bucket, object: object}
}

// Read downloads the object, or returns ErrNotExist when it is absent.
func (b *MinioBackend) Read(ctx context.Context) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, b.mapErr("get", err)
	}
	defer obj.Close()
	// GetObject is lazy; errors such as NoSuchKey surface on first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, b.mapErr("read", err)
	}
	return data, nil
}

// Write uploads data as the index object in a single PutObject.
func (b *MinioBackend) Write(ctx context.Context, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("minio backend: put %s/%s: %w", b.bucket, b.object, err)
	}
	return nil
}

// Remove deletes the object. A missing object is not an error.
func (b *MinioBackend) Remove(ctx context.Context) error {
	err := b.client.RemoveObject(ctx, b.bucket, b.object, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("minio backend: remove %s/%s: %w", b.bucket, b.object, err)
	}
	return nil
}

// Location returns an s3:// style locator for logs.
func (b *MinioBackend) Location() string {
	return "s3://" + b.bucket + "/" + b.object
}

func (b *MinioBackend) mapErr(op string, err error) error {
	if isNotFound(err) {
		return ErrNotExist
	}
	return fmt.Errorf("minio backend: %s %s/%s: %w", op, b.bucket, b.object, err)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
