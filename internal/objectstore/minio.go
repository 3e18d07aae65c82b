package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const defaultPresignExpiry = 15 * time.Minute

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	region          string
	useSSL          bool
	presignExpiry   time.Duration
	maxObjectSize   int64
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL:        false,
		region:        "us-east-1",
		presignExpiry: defaultPresignExpiry,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// Store reads review documents from an S3 compatible bucket.
type Store struct {
	cfg    *minioConfig
	client *minio.Client
}

func NewMinioStore(opts ...MinioOpts) (*Store, error) {
	cfg := newConfig(opts...)
	if cfg.endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, err
	}

	return &Store{cfg: cfg, client: minioClient}, nil
}

func (s *Store) Bucket() string {
	return s.cfg.bucket
}

// ObjectSize returns the size in bytes of key in bucket. An empty bucket
// means the configured one.
func (s *Store) ObjectSize(ctx context.Context, bucket, key string) (int64, error) {
	if bucket == "" {
		bucket = s.cfg.bucket
	}
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to stat object %s", key)
	}
	return info.Size, nil
}

// Get reads a whole object of the configured bucket.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.cfg.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get object %s", key)
	}
	defer object.Close()

	objInfo, err := object.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat object %s", key)
	}
	if s.cfg.maxObjectSize > 0 && objInfo.Size > s.cfg.maxObjectSize {
		return nil, fmt.Errorf("object %s is %d bytes, over the %d bytes limit", key, objInfo.Size, s.cfg.maxObjectSize)
	}

	content, err := io.ReadAll(object)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) != objInfo.Size {
		return nil, fmt.Errorf("failed to read the entire object. expected bytes %d received %d", objInfo.Size, len(content))
	}
	return content, nil
}

// PresignedGet returns a time limited download URL for key.
func (s *Store) PresignedGet(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.bucket, key, s.cfg.presignExpiry, url.Values{})
	if err != nil {
		return "", errors.Wrap(err, "failed to sign object URL")
	}
	return u.String(), nil
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithRegion(region string) MinioOpts {
	return func(c *minioConfig) {
		c.region = region
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}

func WithPresignExpiry(d time.Duration) MinioOpts {
	return func(c *minioConfig) {
		c.presignExpiry = d
	}
}

func WithMaxObjectSize(size int64) MinioOpts {
	return func(c *minioConfig) {
		c.maxObjectSize = size
	}
}
