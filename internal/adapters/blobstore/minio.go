// Package blobstore stores export artifacts in S3-compatible object storage.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ourresearch/openalex-formatter/config"
	"github.com/ourresearch/openalex-formatter/internal/core"
)

// Store is the minio implementation of core.BlobStore.
type Store struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

var _ core.BlobStore = (*Store)(nil)

// New builds a Store from storage configuration. It does not contact the
// endpoint; call EnsureBucket for that.
func New(cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		// A fixed region keeps presigning offline (no bucket location lookup).
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		logger: logger.With("component", "blobstore", "bucket", cfg.Bucket),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.InfoContext(ctx, "created storage bucket")
	return nil
}

// Health checks that the bucket is reachable.
func (s *Store) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// Put uploads an artifact. A non-positive size streams with unknown length.
func (s *Store) Put(ctx context.Context, params core.PutObjectParams) error {
	size := params.Size
	if size <= 0 {
		size = -1
	}
	info, err := s.client.PutObject(ctx, s.bucket, params.Key, params.Body, size, minio.PutObjectOptions{
		ContentType: params.ContentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", params.Key, err)
	}
	s.logger.DebugContext(ctx, "uploaded artifact", "key", params.Key, "bytes", info.Size)
	return nil
}

// PresignGet signs a GET for the artifact. The response is served as an
// attachment named params.Filename.
func (s *Store) PresignGet(ctx context.Context, params core.PresignParams) (string, error) {
	expiry := params.Expiry
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	reqParams := url.Values{}
	if params.Filename != "" {
		reqParams.Set("response-content-disposition",
			mime.FormatMediaType("attachment", map[string]string{"filename": params.Filename}))
	}
	if params.ContentType != "" {
		reqParams.Set("response-content-type", params.ContentType)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, params.Key, expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", params.Key, err)
	}
	return u.String(), nil
}
