// Package minio adapts object storage into the worker's page source. Jobs
// on the queue carry object keys instead of page payloads; this package
// resolves a key to raw pages and archives finished extraction results.
package minio

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aman-ankur/labextract/internal/config"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
)

// ErrObjectNotFound reports a key with no object behind it.
var ErrObjectNotFound = errors.New(errors.ErrCodeStorage, "object not found")

// ObjectStorageAPI is the slice of the minio SDK the client uses.
type ObjectStorageAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Client wraps one bucket of an S3-compatible store. All keys are relative
// to that bucket.
type Client struct {
	api    ObjectStorageAPI
	bucket string
	logger logging.Logger
}

// NewClient builds a client from config. It does not dial; EnsureBucket or
// Ping is the startup connectivity check.
func NewClient(cfg *config.MinIOConfig, log logging.Logger) (*Client, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeConfig, "minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeConfig, "minio bucket is required")
	}

	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfig, "build minio client")
	}

	log = logging.OrNop(log).Named("minio")
	log.Info("object storage configured",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))

	return &Client{api: api, bucket: cfg.Bucket, logger: log}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Ping verifies the store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.BucketExists(ctx, c.bucket); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "object storage unreachable")
	}
	return nil
}

// EnsureBucket creates the configured bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "check bucket")
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "create bucket")
	}
	c.logger.Info("bucket created", logging.String("bucket", c.bucket))
	return nil
}

// WriteObject stores data under key, overwriting any previous object.
func (c *Client) WriteObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "put object")
	}
	c.logger.Debug("object stored",
		logging.String("key", key),
		logging.Int("bytes", len(data)))
	return nil
}

// ReadObject returns the full object under key, or ErrObjectNotFound.
func (c *Client) ReadObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "get object")
	}
	defer obj.Close()

	// The SDK defers most failures, missing keys included, to the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorage, "read object")
	}
	return data, nil
}
