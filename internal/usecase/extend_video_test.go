package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type extendFixture struct {
	repo      *memRepo
	storage   *memStorage
	extractor *fakeExtractor
	generator *fakeGenerator
	creds     *fakeCreds
	pub       *recordingPublisher
	notifier  *recordingNotifier
	uc        *ExtendVideoUseCase
}

func newExtendFixture(t *testing.T) *extendFixture {
	f := &extendFixture{
		repo:      newMemRepo(),
		storage:   newMemStorage(),
		extractor: &fakeExtractor{},
		generator: &fakeGenerator{},
		creds:     &fakeCreds{selected: true, key: "k"},
		pub:       &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	f.uc = NewExtendVideoUseCase(
		f.repo, f.storage, f.extractor, f.generator, f.creds,
		f.pub, f.pub, f.notifier,
		zap.NewNop(),
		ExtendVideoConfig{TempDir: t.TempDir(), MaxAttempts: 3},
	)
	return f
}

func requestBody(t *testing.T, job *entity.Job) []byte {
	t.Helper()
	body, err := json.Marshal(entity.NewRequestMessage(job))
	require.NoError(t, err)
	return body
}

func newPendingJob() *entity.Job {
	job := entity.NewJob("user-1", "user-1/source.mp4", "test", entity.DefaultGenerationConfig(), entity.DefaultSeedTimestamp, 3)
	job.UserEmail = "u@example.com"
	return job
}

func TestExtendVideoSuccess(t *testing.T) {
	f := newExtendFixture(t)
	f.generator.progress = []string{"one", "two"}
	job := newPendingJob()
	require.NoError(t, f.repo.Create(context.Background(), job))

	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, job)))

	got := f.repo.get(job.ID)
	assert.Equal(t, entity.JobStatusSucceeded, got.Status)
	assert.Equal(t, "operations/abc", got.OperationName)
	assert.Equal(t, "https://example/video.mp4", got.ResultLocator)
	assert.Equal(t, "user-1/extended_"+job.ID.String()+".mp4", got.ResultKey)
	assert.Equal(t, "user-1/seed_"+job.ID.String()+".png", got.FrameKey)
	assert.Equal(t, 2, got.PollCount)
	assert.Equal(t, "two", got.ProgressMessage)

	assert.Equal(t, []float64{entity.DefaultSeedTimestamp}, f.extractor.timestamps)
	require.Len(t, f.generator.submitted, 1)
	assert.Equal(t, "test", f.generator.submitted[0].Prompt)
	assert.Equal(t, []byte("mp4"), f.storage.results[got.ResultKey])

	var statuses []entity.JobStatus
	for _, s := range f.pub.statuses {
		statuses = append(statuses, s.Status)
	}
	assert.Equal(t, []entity.JobStatus{
		entity.JobStatusPolling, entity.JobStatusPolling, entity.JobStatusPolling, entity.JobStatusSucceeded,
	}, statuses)
	assert.Equal(t, "one", f.pub.statuses[1].Progress)
	assert.Empty(t, f.notifier.sent)
}

func TestExtendVideoCreatesMissingJob(t *testing.T) {
	f := newExtendFixture(t)
	job := newPendingJob()

	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, job)))
	assert.Equal(t, entity.JobStatusSucceeded, f.repo.get(job.ID).Status)
}

func TestExtendVideoMalformedMessage(t *testing.T) {
	f := newExtendFixture(t)

	require.NoError(t, f.uc.Execute(context.Background(), []byte(`{invalid json`)))
	require.NoError(t, f.uc.Execute(context.Background(), []byte(`{"user_id":"u"}`)))

	require.Len(t, f.pub.dlq, 2)
	assert.Contains(t, f.pub.dlq[0], "unmarshal_error")
	assert.Contains(t, f.pub.dlq[1], "invalid_message")
	assert.Empty(t, f.generator.submitted)
}

func TestExtendVideoCredentialInvalid(t *testing.T) {
	f := newExtendFixture(t)
	f.generator.submitErr = entity.NewError(entity.ErrorKindCredentialInvalid, "submit", errors.New("Requested entity was not found."))
	job := newPendingJob()
	require.NoError(t, f.repo.Create(context.Background(), job))

	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, job)))

	got := f.repo.get(job.ID)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, entity.ErrorKindCredentialInvalid, got.ErrorKind)
	assert.Equal(t, 1, f.creds.opened)
	assert.Equal(t, entity.ErrorKindCredentialInvalid, f.pub.lastStatus().ErrorKind)
	assert.Equal(t, []string{"u@example.com:CREDENTIAL_INVALID"}, f.notifier.sent)
}

func TestExtendVideoRefusesWithoutCredential(t *testing.T) {
	f := newExtendFixture(t)
	f.creds.selected = false
	job := newPendingJob()
	require.NoError(t, f.repo.Create(context.Background(), job))

	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, job)))

	got := f.repo.get(job.ID)
	assert.Equal(t, entity.ErrorKindCredentialInvalid, got.ErrorKind)
	assert.Empty(t, f.storage.downloads)
	assert.Empty(t, f.generator.submitted)
}

func TestExtendVideoClassifiedFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *extendFixture)
		want  entity.ErrorKind
	}{
		{"decode", func(f *extendFixture) {
			f.extractor.err = entity.NewError(entity.ErrorKindDecode, "extract_frame", errors.New("moov atom not found"))
		}, entity.ErrorKindDecode},
		{"submission", func(f *extendFixture) {
			f.generator.submitErr = entity.NewError(entity.ErrorKindSubmission, "submit", errors.New("quota"))
		}, entity.ErrorKindSubmission},
		{"poll", func(f *extendFixture) {
			f.generator.pollErr = entity.NewError(entity.ErrorKindPoll, "poll", errors.New("EOF"))
		}, entity.ErrorKindPoll},
		{"missing result", func(f *extendFixture) {
			f.generator.fetchErr = entity.NewError(entity.ErrorKindMissingResult, "fetch_result", nil)
		}, entity.ErrorKindMissingResult},
		{"download", func(f *extendFixture) {
			f.generator.fetchErr = entity.NewError(entity.ErrorKindDownload, "fetch_result", errors.New("unexpected status 403 Forbidden"))
		}, entity.ErrorKindDownload},
		{"source missing", func(f *extendFixture) {
			f.storage.downloadErr = errors.New("The specified key does not exist.")
		}, entity.ErrorKindInternal},
		{"result upload", func(f *extendFixture) {
			f.storage.uploadErr = errors.New("bucket not found")
		}, entity.ErrorKindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExtendFixture(t)
			tt.setup(f)
			job := newPendingJob()
			require.NoError(t, f.repo.Create(context.Background(), job))

			require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, job)))

			got := f.repo.get(job.ID)
			assert.Equal(t, entity.JobStatusFailed, got.Status)
			assert.Equal(t, tt.want, got.ErrorKind)
			assert.NotEmpty(t, got.ErrorMessage)
			assert.Zero(t, f.creds.opened)
			assert.Equal(t, entity.JobStatusFailed, f.pub.lastStatus().Status)
		})
	}
}

func TestExtendVideoResumesPolling(t *testing.T) {
	f := newExtendFixture(t)
	job := newPendingJob()
	require.NoError(t, job.MarkSubmitting())
	require.NoError(t, job.MarkPolling("operations/resumed"))
	require.NoError(t, f.repo.Create(context.Background(), job))

	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, job)))

	assert.Empty(t, f.generator.submitted)
	assert.Equal(t, []string{"operations/resumed"}, f.generator.polled)
	assert.Equal(t, entity.JobStatusSucceeded, f.repo.get(job.ID).Status)
}

func TestExtendVideoInterruptedSubmission(t *testing.T) {
	f := newExtendFixture(t)
	job := newPendingJob()
	require.NoError(t, job.MarkSubmitting())
	require.NoError(t, f.repo.Create(context.Background(), job))

	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, job)))

	got := f.repo.get(job.ID)
	assert.Equal(t, entity.JobStatusFailed, got.Status)
	assert.Equal(t, entity.ErrorKindInternal, got.ErrorKind)
	assert.Empty(t, f.generator.submitted)
}

func TestExtendVideoSkipsFinishedAndStaleMessages(t *testing.T) {
	f := newExtendFixture(t)

	done := newPendingJob()
	require.NoError(t, done.MarkSubmitting())
	require.NoError(t, done.MarkPolling("op"))
	require.NoError(t, done.MarkSucceeded("loc", "key"))
	require.NoError(t, f.repo.Create(context.Background(), done))
	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, done)))

	retried := newPendingJob()
	stale := requestBody(t, retried)
	retried.Attempt = 2
	require.NoError(t, f.repo.Create(context.Background(), retried))
	require.NoError(t, f.uc.Execute(context.Background(), stale))

	assert.Empty(t, f.generator.submitted)
	assert.Empty(t, f.pub.statuses)
}

func TestExtendVideoShutdownLeavesJobForRedelivery(t *testing.T) {
	f := newExtendFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.generator.pollErr = entity.NewError(entity.ErrorKindCancelled, "poll", context.Canceled)

	job := newPendingJob()
	require.NoError(t, f.repo.Create(context.Background(), job))

	err := f.uc.Execute(ctx, requestBody(t, job))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, entity.JobStatusPolling, f.repo.get(job.ID).Status)
}

func TestExtendVideoPersistenceFailureIsReturned(t *testing.T) {
	f := newExtendFixture(t)
	job := newPendingJob()
	require.NoError(t, f.repo.Create(context.Background(), job))
	f.repo.updateErr = errDatabaseDown

	err := f.uc.Execute(context.Background(), requestBody(t, job))
	assert.ErrorIs(t, err, errDatabaseDown)
	assert.Empty(t, f.generator.submitted)
}

func TestExtendVideoUnknownJobID(t *testing.T) {
	f := newExtendFixture(t)
	body, err := json.Marshal(entity.ExtensionRequestMessage{JobID: uuid.Nil, VideoKey: "k"})
	require.NoError(t, err)

	require.NoError(t, f.uc.Execute(context.Background(), body))
	assert.Len(t, f.pub.dlq, 1)
}
