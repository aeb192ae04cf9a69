package port

import (
	"context"
	"io"
	"time"
)

// VideoStorage is the worker side of object storage.
type VideoStorage interface {
	DownloadSource(ctx context.Context, objectKey string, destPath string) error
	UploadFrame(ctx context.Context, objectKey string, data []byte, contentType string) error
	UploadResult(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// UploadStorage is the API side of object storage.
type UploadStorage interface {
	UploadSource(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	ResultURL(ctx context.Context, objectKey string, ttl time.Duration) (string, error)
}
