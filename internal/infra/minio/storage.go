package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	_ port.VideoStorage  = (*Storage)(nil)
	_ port.UploadStorage = (*Storage)(nil)
)

type Storage struct {
	client       *miniogo.Client
	uploadBucket string
	frameBucket  string
	resultBucket string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UploadBucket string
	FrameBucket  string
	ResultBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:       client,
		uploadBucket: cfg.UploadBucket,
		frameBucket:  cfg.FrameBucket,
		resultBucket: cfg.ResultBucket,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploadBucket, s.frameBucket, s.resultBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) UploadSource(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	ctx, span := otel.Tracer("minio").Start(ctx, "minio.UploadSource")
	defer span.End()
	span.SetAttributes(attribute.String("minio.key", objectKey), attribute.Int64("minio.size", size))

	_, err := s.client.PutObject(ctx, s.uploadBucket, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upload source: %w", err)
	}
	return nil
}

func (s *Storage) DownloadSource(ctx context.Context, objectKey string, destPath string) error {
	ctx, span := otel.Tracer("minio").Start(ctx, "minio.DownloadSource")
	defer span.End()
	span.SetAttributes(attribute.String("minio.key", objectKey))

	if err := s.client.FGetObject(ctx, s.uploadBucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("download source: %w", err)
	}
	return nil
}

func (s *Storage) UploadFrame(ctx context.Context, objectKey string, data []byte, contentType string) error {
	return s.put(ctx, s.frameBucket, objectKey, data, contentType)
}

func (s *Storage) UploadResult(ctx context.Context, objectKey string, data []byte, contentType string) error {
	return s.put(ctx, s.resultBucket, objectKey, data, contentType)
}

// ResultURL presigns a GET for a finished extension.
func (s *Storage) ResultURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.resultBucket, objectKey, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign result: %w", err)
	}
	return u.String(), nil
}

func (s *Storage) put(ctx context.Context, bucket, objectKey string, data []byte, contentType string) error {
	ctx, span := otel.Tracer("minio").Start(ctx, "minio.PutObject")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", bucket),
		attribute.String("minio.key", objectKey),
		attribute.Int("minio.size", len(data)),
	)

	_, err := s.client.PutObject(ctx, bucket, objectKey, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upload %s/%s: %w", bucket, objectKey, err)
	}
	return nil
}
