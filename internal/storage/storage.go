// Package storage persists customer photos. MinIO is used when configured;
// otherwise images stay inline as data URIs on the refund record.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-refund-backend/internal/config"
)

// ImageStore saves one image and returns the reference stored on the refund.
type ImageStore interface {
	Put(ctx context.Context, prefix, contentType string, data []byte) (string, error)
}

// InlineStore returns the image as a data URI.
type InlineStore struct{}

// Put implements ImageStore.
func (InlineStore) Put(_ context.Context, _ string, contentType string, data []byte) (string, error) {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// ObjectPutter is the subset of *minio.Client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioStore uploads images to a bucket and returns their public URL.
type MinioStore struct {
	Client  ObjectPutter
	Bucket  string
	BaseURL string
}

// Put implements ImageStore.
func (s *MinioStore) Put(ctx context.Context, prefix, contentType string, data []byte) (string, error) {
	name := objectName(prefix, contentType)
	_, err := s.Client.PutObject(ctx, s.Bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + name, nil
}

func objectName(prefix, contentType string) string {
	ext := strings.TrimPrefix(contentType, "image/")
	if i := strings.IndexAny(ext, "+;"); i >= 0 {
		ext = ext[:i]
	}
	if ext == "jpeg" {
		ext = "jpg"
	}
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		return prefix + "/" + name
	}
	return name
}

// New returns the store selected by cfg. With MinIO configured the bucket is
// created when missing.
func New(ctx context.Context, cfg config.MinioConfig) (ImageStore, error) {
	if cfg.Endpoint == "" {
		return InlineStore{}, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("minio bucket created")
	}
	return &MinioStore{Client: client, Bucket: cfg.Bucket, BaseURL: publicBase(cfg)}, nil
}

func publicBase(cfg config.MinioConfig) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
}
