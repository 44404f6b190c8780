// Package objectstore uploads post images to an S3-compatible bucket.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures the S3 connection.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// Region skips the bucket location lookup when set.
	Region string
}

// Store implements domain.ImageStore.
type Store struct {
	cli    *minio.Client
	bucket string
	now    func() time.Time
}

// New creates a store for opts.Bucket. It does not contact the server.
func New(opts Options) (*Store, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Store{cli: cli, bucket: opts.Bucket, now: time.Now}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	ok, err := s.cli.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.cli.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// objectKey names an upload <unix-millis>-<uuid>.<ext>, keeping the
// extension of filename.
func (s *Store) objectKey(filename string) string {
	key := fmt.Sprintf("%d-%s", s.now().UnixMilli(), uuid.NewString())
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		key += ext
	}
	return key
}

// URL returns the public URL of key.
func (s *Store) URL(key string) string {
	u := *s.cli.EndpointURL()
	u.Path = path.Join("/", s.bucket, key)
	return u.String()
}

// PutImage uploads r under a fresh key and returns its public URL.
func (s *Store) PutImage(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := s.objectKey(filename)
	_, err := s.cli.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.URL(key), nil
}
