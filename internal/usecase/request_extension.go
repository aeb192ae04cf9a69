package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/fiapx/fiapx-video-extender/internal/infra/metrics"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrCredentialRequired = errors.New("select an API key before starting an extension")
	ErrNotVideo           = errors.New("only video files can be extended")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNotRetryable       = errors.New("only failed jobs with attempts left can be retried")
	ErrResultNotReady     = errors.New("extension has not finished successfully")
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ExtensionRequest is one upload as received by the API.
type ExtensionRequest struct {
	UserID      string
	UserEmail   string
	FileName    string
	ContentType string
	Size        int64
	Video       io.Reader
	Prompt      string
	Config      entity.GenerationConfig
	// SeedTimestamp is the moment of the clip used as seed frame; nil means
	// the end of the clip.
	SeedTimestamp *float64
}

type RequestExtensionUseCase struct {
	repo        port.JobRepository
	storage     port.UploadStorage
	requests    port.RequestPublisher
	creds       port.CredentialProvider
	selector    port.CredentialSelector
	logger      *zap.Logger
	defaults    entity.GenerationConfig
	maxAttempts int
	resultTTL   time.Duration
}

type RequestExtensionConfig struct {
	Defaults    entity.GenerationConfig
	MaxAttempts int
	ResultTTL   time.Duration
}

// NewRequestExtensionUseCase wires the API use case. selector may be nil when
// the credential source cannot be changed at runtime.
func NewRequestExtensionUseCase(
	repo port.JobRepository,
	storage port.UploadStorage,
	requests port.RequestPublisher,
	creds port.CredentialProvider,
	selector port.CredentialSelector,
	logger *zap.Logger,
	cfg RequestExtensionConfig,
) *RequestExtensionUseCase {
	return &RequestExtensionUseCase{
		repo:        repo,
		storage:     storage,
		requests:    requests,
		creds:       creds,
		selector:    selector,
		logger:      logger,
		defaults:    cfg.Defaults.WithDefaults(entity.DefaultGenerationConfig()),
		maxAttempts: max(cfg.MaxAttempts, 1),
		resultTTL:   cfg.ResultTTL,
	}
}

func (uc *RequestExtensionUseCase) Request(ctx context.Context, req ExtensionRequest) (*entity.Job, error) {
	ctx, span := otel.Tracer("usecase").Start(ctx, "RequestExtensionUseCase.Request")
	defer span.End()

	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if !strings.HasPrefix(req.ContentType, "video/") {
		return nil, ErrNotVideo
	}

	if err := uc.requireCredential(ctx); err != nil {
		return nil, err
	}

	cfg := req.Config.WithDefaults(uc.defaults)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	seed := entity.DefaultSeedTimestamp
	if req.SeedTimestamp != nil {
		if *req.SeedTimestamp < 0 {
			return nil, fmt.Errorf("%w: seed_timestamp must not be negative", ErrInvalidRequest)
		}
		seed = *req.SeedTimestamp
	}

	job := entity.NewJob(req.UserID, "", strings.TrimSpace(req.Prompt), cfg, seed, uc.maxAttempts)
	job.UserEmail = req.UserEmail
	job.VideoKey = sourceKey(req.UserID, job.ID, req.FileName)

	span.SetAttributes(attribute.String("job.id", job.ID.String()))
	log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("video_key", job.VideoKey))

	if err := uc.storage.UploadSource(ctx, job.VideoKey, req.Video, req.Size, req.ContentType); err != nil {
		log.Error("failed to store upload", zap.Error(err))
		return nil, err
	}
	if err := uc.repo.Create(ctx, job); err != nil {
		log.Error("failed to create job record", zap.Error(err))
		return nil, err
	}
	if err := uc.publishRequest(ctx, job); err != nil {
		log.Error("failed to publish extension request", zap.Error(err))
		uc.markUnqueued(ctx, job, job.Attempt, err, log)
		return nil, err
	}

	log.Info("extension requested",
		zap.String("resolution", cfg.Resolution),
		zap.String("aspect_ratio", cfg.AspectRatio),
		zap.Float64("seed_timestamp", seed),
	)
	return job, nil
}

// Retry resubmits a failed job with the inputs it was created with.
func (uc *RequestExtensionUseCase) Retry(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	job, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.CanRetry() {
		return nil, ErrNotRetryable
	}
	if err := uc.requireCredential(ctx); err != nil {
		return nil, err
	}

	previous := job.Attempt
	if err := job.ResetForRetry(); err != nil {
		return nil, err
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		return nil, err
	}
	if err := uc.publishRequest(ctx, job); err != nil {
		log := uc.logger.With(zap.String("job_id", job.ID.String()))
		log.Error("failed to publish extension retry", zap.Error(err))
		uc.markUnqueued(ctx, job, previous, err, log)
		return nil, err
	}

	metrics.RetryRequestsTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.logger.Info("extension retry requested",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", job.Attempt),
	)
	return job, nil
}

func (uc *RequestExtensionUseCase) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return uc.repo.FindByID(ctx, id)
}

// List returns the user's gallery, newest first.
func (uc *RequestExtensionUseCase) List(ctx context.Context, userID string, limit int) ([]*entity.Job, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return uc.repo.ListByUser(ctx, userID, lo.Clamp(limit, 1, MaxListLimit))
}

// ResultURL returns a time-limited link to the extended video.
func (uc *RequestExtensionUseCase) ResultURL(ctx context.Context, id uuid.UUID) (string, error) {
	job, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != entity.JobStatusSucceeded || job.ResultKey == "" {
		return "", ErrResultNotReady
	}
	return uc.storage.ResultURL(ctx, job.ResultKey, uc.resultTTL)
}

func (uc *RequestExtensionUseCase) CredentialSelected(ctx context.Context) (bool, error) {
	return uc.creds.HasSelectedCredential(ctx)
}

func (uc *RequestExtensionUseCase) SelectCredential(ctx context.Context, apiKey string) error {
	if uc.selector == nil {
		return port.ErrSelectorUnavailable
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("%w: api_key is required", ErrInvalidRequest)
	}
	return uc.selector.SetAPIKey(ctx, apiKey)
}

// ResetCredential drops the current selection so the user has to pick a key
// again.
func (uc *RequestExtensionUseCase) ResetCredential(ctx context.Context) error {
	return uc.creds.OpenCredentialSelector(ctx)
}

func (uc *RequestExtensionUseCase) requireCredential(ctx context.Context) error {
	selected, err := uc.creds.HasSelectedCredential(ctx)
	if err != nil {
		return fmt.Errorf("check credential: %w", err)
	}
	if !selected {
		return ErrCredentialRequired
	}
	return nil
}

// markUnqueued records a job whose request never reached the queue as failed
// at the given attempt, so the user can retry it once the broker is back.
func (uc *RequestExtensionUseCase) markUnqueued(ctx context.Context, job *entity.Job, attempt int, cause error, log *zap.Logger) {
	job.Attempt = attempt
	failure := entity.NewError(entity.ErrorKindInternal, "queue_request", cause)
	if err := job.MarkFailed(failure.Kind, entity.UserMessage(failure)); err != nil {
		log.Error("cannot mark unqueued job failed", zap.Error(err))
		return
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to record unqueued job", zap.Error(err))
	}
}

func (uc *RequestExtensionUseCase) publishRequest(ctx context.Context, job *entity.Job) error {
	data, err := json.Marshal(entity.NewRequestMessage(job))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return uc.requests.PublishRequest(ctx, data)
}

func sourceKey(userID string, jobID uuid.UUID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("%s/source_%s%s", userID, jobID.String(), ext)
}
