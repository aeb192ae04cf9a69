package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type requestFixture struct {
	repo    *memRepo
	storage *memStorage
	pub     *recordingPublisher
	creds   *fakeCreds
	uc      *RequestExtensionUseCase
}

func newRequestFixture(selector bool) *requestFixture {
	f := &requestFixture{
		repo:    newMemRepo(),
		storage: newMemStorage(),
		pub:     &recordingPublisher{},
		creds:   &fakeCreds{selected: true},
	}
	var sel port.CredentialSelector
	if selector {
		sel = f.creds
	}
	f.uc = NewRequestExtensionUseCase(f.repo, f.storage, f.pub, f.creds, sel, zap.NewNop(), RequestExtensionConfig{
		MaxAttempts: 2,
		ResultTTL:   time.Hour,
	})
	return f
}

func validRequest() ExtensionRequest {
	return ExtensionRequest{
		UserID:      "user-1",
		UserEmail:   "u@example.com",
		FileName:    "Clip.MOV",
		ContentType: "video/quicktime",
		Size:        5,
		Video:       strings.NewReader("video"),
		Prompt:      "  a stadium at night ",
	}
}

func TestRequestExtension(t *testing.T) {
	f := newRequestFixture(true)

	job, err := f.uc.Request(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, entity.JobStatusPending, job.Status)
	assert.Equal(t, "user-1/source_"+job.ID.String()+".mov", job.VideoKey)
	assert.Equal(t, "a stadium at night", job.Prompt)
	assert.Equal(t, entity.DefaultGenerationConfig(), job.Config)
	assert.Equal(t, entity.DefaultSeedTimestamp, job.SeedTimestamp)
	assert.Equal(t, 2, job.MaxAttempts)
	assert.Equal(t, []byte("video"), f.storage.sources[job.VideoKey])

	stored := f.repo.get(job.ID)
	assert.Equal(t, job.VideoKey, stored.VideoKey)

	require.Len(t, f.pub.requests, 1)
	assert.Equal(t, job.ID, f.pub.requests[0].JobID)
	assert.Equal(t, "u@example.com", f.pub.requests[0].UserEmail)
	assert.Equal(t, 1, f.pub.requests[0].Attempt)
}

func TestRequestExtensionValidation(t *testing.T) {
	negative := -1.0

	tests := []struct {
		name    string
		mutate  func(r *ExtensionRequest, f *requestFixture)
		wantErr error
	}{
		{"no credential", func(_ *ExtensionRequest, f *requestFixture) { f.creds.selected = false }, ErrCredentialRequired},
		{"not a video", func(r *ExtensionRequest, _ *requestFixture) { r.ContentType = "image/png" }, ErrNotVideo},
		{"no user", func(r *ExtensionRequest, _ *requestFixture) { r.UserID = " " }, ErrInvalidRequest},
		{"bad resolution", func(r *ExtensionRequest, _ *requestFixture) { r.Config.Resolution = "4k" }, ErrInvalidRequest},
		{"negative seed", func(r *ExtensionRequest, _ *requestFixture) { r.SeedTimestamp = &negative }, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRequestFixture(true)
			req := validRequest()
			tt.mutate(&req, f)

			job, err := f.uc.Request(context.Background(), req)
			assert.Nil(t, job)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.pub.requests)
			assert.Empty(t, f.storage.sources)
		})
	}
}

func TestRetry(t *testing.T) {
	f := newRequestFixture(true)
	job, err := f.uc.Request(context.Background(), validRequest())
	require.NoError(t, err)

	_, err = f.uc.Retry(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrNotRetryable, "pending job")

	failed := f.repo.get(job.ID)
	require.NoError(t, failed.MarkFailed(entity.ErrorKindPoll, "lost"))
	require.NoError(t, f.repo.Update(context.Background(), &failed))

	retried, err := f.uc.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusPending, retried.Status)
	assert.Equal(t, 2, retried.Attempt)
	assert.Equal(t, job.Prompt, retried.Prompt)
	require.Len(t, f.pub.requests, 2)
	assert.Equal(t, 2, f.pub.requests[1].Attempt)

	// attempts exhausted
	again := f.repo.get(job.ID)
	require.NoError(t, again.MarkFailed(entity.ErrorKindPoll, "lost"))
	require.NoError(t, f.repo.Update(context.Background(), &again))
	_, err = f.uc.Retry(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)

	_, err = f.uc.Retry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, port.ErrJobNotFound)
}

func TestRequestExtensionBrokerDown(t *testing.T) {
	f := newRequestFixture(true)
	f.pub.err = errBrokerDown

	job, err := f.uc.Request(context.Background(), validRequest())
	assert.Nil(t, job)
	assert.ErrorIs(t, err, errBrokerDown)

	jobs, err := f.uc.List(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	stored := jobs[0]
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.Equal(t, entity.ErrorKindInternal, stored.ErrorKind)
	assert.Equal(t, 1, stored.Attempt)
	assert.True(t, stored.CanRetry())

	f.pub.err = nil
	retried, err := f.uc.Retry(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusPending, retried.Status)
	require.Len(t, f.pub.requests, 1)
	assert.Equal(t, 2, f.pub.requests[0].Attempt)
}

func TestRetryBrokerDownKeepsJobRetryable(t *testing.T) {
	f := newRequestFixture(true)
	job, err := f.uc.Request(context.Background(), validRequest())
	require.NoError(t, err)

	failed := f.repo.get(job.ID)
	require.NoError(t, failed.MarkFailed(entity.ErrorKindPoll, "lost"))
	require.NoError(t, f.repo.Update(context.Background(), &failed))

	f.pub.err = errBrokerDown
	_, err = f.uc.Retry(context.Background(), job.ID)
	assert.ErrorIs(t, err, errBrokerDown)

	stored := f.repo.get(job.ID)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
	assert.Equal(t, entity.ErrorKindInternal, stored.ErrorKind)
	assert.Equal(t, 1, stored.Attempt)
	assert.True(t, stored.CanRetry())

	f.pub.err = nil
	retried, err := f.uc.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, retried.Attempt)
	require.Len(t, f.pub.requests, 2)
	assert.Equal(t, 2, f.pub.requests[1].Attempt)
}

func TestRetryRequiresCredential(t *testing.T) {
	f := newRequestFixture(true)
	job, err := f.uc.Request(context.Background(), validRequest())
	require.NoError(t, err)

	failed := f.repo.get(job.ID)
	require.NoError(t, failed.MarkFailed(entity.ErrorKindCredentialInvalid, "rejected"))
	require.NoError(t, f.repo.Update(context.Background(), &failed))

	f.creds.selected = false
	_, err = f.uc.Retry(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrCredentialRequired)
	assert.Equal(t, entity.JobStatusFailed, f.repo.get(job.ID).Status)
}

func TestListAndResultURL(t *testing.T) {
	f := newRequestFixture(true)
	ctx := context.Background()

	first, err := f.uc.Request(ctx, validRequest())
	require.NoError(t, err)
	second, err := f.uc.Request(ctx, validRequest())
	require.NoError(t, err)

	jobs, err := f.uc.List(ctx, "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = f.uc.List(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	_, err = f.uc.List(ctx, "", 10)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.uc.ResultURL(ctx, first.ID)
	assert.ErrorIs(t, err, ErrResultNotReady)

	done := f.repo.get(second.ID)
	require.NoError(t, done.MarkSubmitting())
	require.NoError(t, done.MarkPolling("op"))
	require.NoError(t, done.MarkSucceeded("https://example/video.mp4", "user-1/extended.mp4"))
	require.NoError(t, f.repo.Update(ctx, &done))

	link, err := f.uc.ResultURL(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/extensions/user-1/extended.mp4?ttl=1h0m0s", link)
}

func TestCredentialSelection(t *testing.T) {
	ctx := context.Background()

	f := newRequestFixture(true)
	assert.ErrorIs(t, f.uc.SelectCredential(ctx, "  "), ErrInvalidRequest)
	require.NoError(t, f.uc.SelectCredential(ctx, " new-key "))
	assert.Equal(t, "new-key", f.creds.key)

	require.NoError(t, f.uc.ResetCredential(ctx))
	selected, err := f.uc.CredentialSelected(ctx)
	require.NoError(t, err)
	assert.False(t, selected)

	readOnly := newRequestFixture(false)
	assert.ErrorIs(t, readOnly.uc.SelectCredential(ctx, "key"), port.ErrSelectorUnavailable)
}
