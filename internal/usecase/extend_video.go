package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/fiapx/fiapx-video-extender/internal/infra/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type ExtendVideoUseCase struct {
	repo        port.JobRepository
	storage     port.VideoStorage
	extractor   port.FrameExtractor
	generator   port.Generator
	creds       port.CredentialProvider
	publisher   port.StatusPublisher
	dlq         port.DLQPublisher
	notifier    port.FailureNotifier
	logger      *zap.Logger
	tempDir     string
	maxAttempts int
}

type ExtendVideoConfig struct {
	TempDir     string
	MaxAttempts int
}

func NewExtendVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	extractor port.FrameExtractor,
	generator port.Generator,
	creds port.CredentialProvider,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ExtendVideoConfig,
) *ExtendVideoUseCase {
	return &ExtendVideoUseCase{
		repo:        repo,
		storage:     storage,
		extractor:   extractor,
		generator:   generator,
		creds:       creds,
		publisher:   publisher,
		dlq:         dlq,
		notifier:    notifier,
		logger:      logger,
		tempDir:     cfg.TempDir,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Execute handles one extension request. A nil return acks the message:
// classified failures are recorded on the job, not redelivered. A non-nil
// return means the job state could not be persisted.
func (uc *ExtendVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ExtendVideoUseCase.Execute")
	defer span.End()

	var msg entity.ExtensionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.JobID == uuid.Nil || msg.VideoKey == "" {
		uc.logger.Error("message missing job id or video key", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: job_id and video_key are required")
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if errors.Is(err, port.ErrJobNotFound) {
		job = entity.JobFromRequest(msg, uc.maxAttempts)
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	} else if err != nil {
		log.Error("failed to load job", zap.Error(err))
		return fmt.Errorf("load job: %w", err)
	}

	if msg.Attempt > 0 && msg.Attempt < job.Attempt {
		log.Info("skipping message from a superseded attempt",
			zap.Int("message_attempt", msg.Attempt),
			zap.Int("job_attempt", job.Attempt),
		)
		return nil
	}

	switch job.Status {
	case entity.JobStatusSucceeded, entity.JobStatusFailed:
		log.Info("job already finished, skipping", zap.String("status", string(job.Status)))
		return nil
	case entity.JobStatusSubmitting:
		// The previous worker stopped between sending the request and storing
		// the handle, so the remote operation cannot be recovered.
		return uc.fail(ctx, job, entity.NewError(entity.ErrorKindInternal, "submit",
			errors.New("processing was interrupted during submission")), log)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	return uc.run(ctx, job, log)
}

func (uc *ExtendVideoUseCase) run(ctx context.Context, job *entity.Job, log *zap.Logger) error {
	tracer := otel.Tracer("usecase")
	totalTimer := time.Now()

	var genJob *entity.GenerationJob
	if job.Status == entity.JobStatusPolling && job.OperationName != "" {
		log.Info("resuming generation", zap.String("operation", job.OperationName))
		genJob = &entity.GenerationJob{Name: job.OperationName}
	} else {
		var err error
		genJob, err = uc.submit(ctx, job, log)
		if err != nil {
			return uc.handleFailure(ctx, job, err, log)
		}
	}

	// Poll until the remote operation finishes
	pollStart := time.Now()
	ctxPoll, spanPoll := tracer.Start(ctx, "poll_generation")
	done, err := uc.generator.PollUntilDone(ctxPoll, genJob, func(message string) {
		job.RecordProgress(message)
		metrics.GenerationPollsTotal.Inc()
		if err := uc.repo.Update(ctx, job); err != nil {
			log.Warn("failed to store progress", zap.Error(err))
		}
		uc.publishStatus(ctx, job, log)
	})
	spanPoll.End()
	if err != nil {
		return uc.handleFailure(ctx, job, err, log)
	}
	metrics.StageDuration.WithLabelValues("poll").Observe(time.Since(pollStart).Seconds())

	// Download the generated video
	fetchStart := time.Now()
	ctxFetch, spanFetch := tracer.Start(ctx, "fetch_result")
	media, err := uc.generator.FetchResult(ctxFetch, done)
	spanFetch.End()
	if err != nil {
		return uc.handleFailure(ctx, job, err, log)
	}
	metrics.StageDuration.WithLabelValues("fetch").Observe(time.Since(fetchStart).Seconds())

	// Store it next to the user's uploads
	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "upload_result")
	resultKey := fmt.Sprintf("%s/extended_%s.mp4", job.UserID, job.ID.String())
	err = uc.storage.UploadResult(ctxUp, resultKey, media.Data, media.MIMEType)
	spanUp.End()
	if err != nil {
		return uc.handleFailure(ctx, job, entity.NewError(entity.ErrorKindInternal, "upload_result", err), log)
	}
	metrics.StageDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	if err := job.MarkSucceeded(done.ResultLocator, resultKey); err != nil {
		return uc.handleFailure(ctx, job, entity.NewError(entity.ErrorKindInternal, "complete", err), log)
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to SUCCEEDED", zap.Error(err))
		return fmt.Errorf("update job succeeded: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	metrics.ExtensionsTotal.WithLabelValues("succeeded").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	log.Info("extension completed successfully",
		zap.String("result_key", resultKey),
		zap.Int("result_bytes", len(media.Data)),
		zap.Int("polls", job.PollCount),
	)
	return nil
}

// submit prepares the seed frame and starts the remote generation. On success
// the job is POLLING with the operation handle stored.
func (uc *ExtendVideoUseCase) submit(ctx context.Context, job *entity.Job, log *zap.Logger) (*entity.GenerationJob, error) {
	tracer := otel.Tracer("usecase")

	selected, err := uc.creds.HasSelectedCredential(ctx)
	if err != nil {
		return nil, entity.NewError(entity.ErrorKindInternal, "check_credential", err)
	}
	if !selected {
		return nil, entity.NewError(entity.ErrorKindCredentialInvalid, "check_credential", errors.New("no API key selected"))
	}

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download source clip from MinIO
	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_source")
	videoPath := filepath.Join(workDir, "source"+filepath.Ext(job.VideoKey))
	err = uc.storage.DownloadSource(ctxDl, job.VideoKey, videoPath)
	spanDl.End()
	if err != nil {
		return nil, entity.NewError(entity.ErrorKindInternal, "download_source", err)
	}
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Extract the seed frame
	exStart := time.Now()
	ctxEx, spanEx := tracer.Start(ctx, "extract_frame")
	frame, err := uc.extractor.ExtractFrame(ctxEx, videoPath, job.SeedTimestamp)
	spanEx.End()
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())

	frameKey := fmt.Sprintf("%s/seed_%s%s", job.UserID, job.ID.String(), frame.Extension())
	if err := uc.storage.UploadFrame(ctx, frameKey, frame.Data, frame.MIMEType); err != nil {
		log.Warn("failed to store seed frame", zap.Error(err))
	} else {
		job.FrameKey = frameKey
	}

	req, err := entity.NewGenerationRequest(frame, job.Prompt, job.Config)
	if err != nil {
		return nil, entity.NewError(entity.ErrorKindSubmission, "build_request", err)
	}

	if err := job.MarkSubmitting(); err != nil {
		return nil, err
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job to SUBMITTING: %w", err)
	}

	subStart := time.Now()
	ctxSub, spanSub := tracer.Start(ctx, "submit_generation")
	genJob, err := uc.generator.Submit(ctxSub, req)
	spanSub.End()
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("submit").Observe(time.Since(subStart).Seconds())

	if err := job.MarkPolling(genJob.Name); err != nil {
		return nil, err
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job to POLLING: %w", err)
	}
	uc.publishStatus(ctx, job, log)

	log.Info("generation submitted", zap.String("operation", genJob.Name), zap.String("frame_key", job.FrameKey))
	return genJob, nil
}

// handleFailure leaves the job untouched when the worker is shutting down so
// the redelivered message can resume it; every other failure is recorded.
func (uc *ExtendVideoUseCase) handleFailure(ctx context.Context, job *entity.Job, cause error, log *zap.Logger) error {
	if ctx.Err() != nil && entity.KindOf(cause) == entity.ErrorKindCancelled {
		log.Info("extension interrupted by shutdown", zap.String("status", string(job.Status)))
		return cause
	}
	return uc.fail(ctx, job, cause, log)
}

func (uc *ExtendVideoUseCase) fail(ctx context.Context, job *entity.Job, cause error, log *zap.Logger) error {
	kind := entity.KindOf(cause)
	message := entity.UserMessage(cause)

	log.Warn("extension failed",
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)

	if err := job.MarkFailed(kind, message); err != nil {
		log.Error("cannot mark job failed", zap.Error(err))
		return nil
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to FAILED", zap.Error(err))
		return fmt.Errorf("update job failed: %w", err)
	}

	if kind == entity.ErrorKindCredentialInvalid {
		metrics.CredentialInvalidationsTotal.Inc()
		if err := uc.creds.OpenCredentialSelector(ctx); err != nil && !errors.Is(err, port.ErrSelectorUnavailable) {
			log.Warn("failed to open credential selector", zap.Error(err))
		}
	}

	uc.publishStatus(ctx, job, log)
	metrics.ExtensionsTotal.WithLabelValues(string(kind)).Inc()

	if job.UserEmail != "" {
		if err := uc.notifier.NotifyFailure(ctx, job.UserEmail, job); err != nil {
			log.Warn("failed to notify user", zap.Error(err))
		}
	}
	return nil
}

func (uc *ExtendVideoUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	data, err := json.Marshal(entity.NewStatusMessage(job))
	if err != nil {
		log.Error("failed to marshal status", zap.Error(err))
		return
	}
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
