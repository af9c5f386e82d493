package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/taskbridge/provider-verification/internal/core/port"
	"github.com/taskbridge/provider-verification/internal/infra/config"
)

// ObjectStore implements port.ObjectStorage on MinIO / any S3-compatible
// endpoint. It holds identity documents, selfies and portfolio images.
type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageSettings
	logger *zap.Logger
}

// NewObjectStore connects to the configured endpoint.
func NewObjectStore(cfg config.StorageSettings, logger *zap.Logger) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// EnsureBucket creates the documents bucket if it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
		}
		s.logger.Info("created storage bucket", zap.String("bucket", s.cfg.Bucket))
	}
	return nil
}

// Upload stores an object and returns its key.
func (s *ObjectStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.cfg.Bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload object %s: %w", key, err)
	}
	return info.Key, nil
}

// SignedURL returns a time-limited download URL for the object.
func (s *ObjectStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = s.cfg.SignedURLTTL
	}
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", key, err)
	}
	return u.String(), nil
}

// Remove deletes the given objects. Missing keys are not errors.
func (s *ObjectStore) Remove(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove object %s: %w", key, err)
		}
	}
	return nil
}

var _ port.ObjectStorage = (*ObjectStore)(nil)
