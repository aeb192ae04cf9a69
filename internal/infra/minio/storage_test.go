package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestStorageRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	endpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := NewStorage(StorageConfig{
		Endpoint:     endpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UploadBucket: "uploads",
		FrameBucket:  "frames",
		ResultBucket: "extensions",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))
	require.NoError(t, storage.EnsureBuckets(ctx), "ensuring twice is a no-op")

	src := []byte("fake mp4 payload")
	require.NoError(t, storage.UploadSource(ctx, "user-1/clip.mp4", bytes.NewReader(src), int64(len(src)), "video/mp4"))

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, storage.DownloadSource(ctx, "user-1/clip.mp4", dest))

	require.NoError(t, storage.UploadFrame(ctx, "user-1/seed.png", []byte("png"), "image/png"))
	require.NoError(t, storage.UploadResult(ctx, "user-1/extended.mp4", []byte("result"), "video/mp4"))

	link, err := storage.ResultURL(ctx, "user-1/extended.mp4", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.Contains(link, "extensions/user-1/extended.mp4"))

	resp, err := http.Get(link)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "result", string(body))
}
