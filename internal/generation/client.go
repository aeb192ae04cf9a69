package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 10 * time.Second
	defaultResultMIME   = "video/mp4"

	// credentialNotFound is what the remote service reports for an API key it
	// does not recognize.
	credentialNotFound = "Requested entity was not found"
)

type Options struct {
	PollInterval time.Duration
	// MaxWait bounds the time spent polling one job. Zero polls until the job
	// is done or ctx is cancelled.
	MaxWait    time.Duration
	Phases     []string
	HTTPClient *http.Client
}

// Client drives one remote generation through submit, poll and fetch. It keeps
// no per-job state, so concurrent generations may share a Client.
type Client struct {
	api          port.VideoAPI
	creds        port.CredentialProvider
	httpClient   *http.Client
	pollInterval time.Duration
	maxWait      time.Duration
	phases       []string
	logger       *zap.Logger

	wait func(ctx context.Context, d time.Duration) error
	now  func() time.Time
}

var _ port.Generator = (*Client)(nil)

func NewClient(api port.VideoAPI, creds port.CredentialProvider, logger *zap.Logger, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if len(opts.Phases) == 0 {
		opts.Phases = DefaultPhases
	}
	return &Client{
		api:          api,
		creds:        creds,
		httpClient:   opts.HTTPClient,
		pollInterval: opts.PollInterval,
		maxWait:      opts.MaxWait,
		phases:       opts.Phases,
		logger:       logger,
		wait:         sleep,
		now:          time.Now,
	}
}

// Submit sends one generation request. It is never retried: on failure no
// handle is returned.
func (c *Client) Submit(ctx context.Context, req entity.GenerationRequest) (*entity.GenerationJob, error) {
	ctx, span := otel.Tracer("generation").Start(ctx, "generation.Submit")
	defer span.End()

	const op = "submit"

	key, err := c.apiKey(ctx, entity.ErrorKindSubmission, op)
	if err != nil {
		return nil, spanError(span, err)
	}

	job, err := c.api.SubmitGeneration(ctx, key, req)
	if err != nil {
		return nil, spanError(span, classify(entity.ErrorKindSubmission, op, err))
	}
	if job == nil || job.Name == "" {
		return nil, spanError(span, entity.NewError(entity.ErrorKindSubmission, op,
			errors.New("remote service returned no operation handle")))
	}

	span.SetAttributes(attribute.String("generation.name", job.Name))
	c.logger.Info("generation submitted", zap.String("operation", job.Name))
	return job, nil
}

// PollUntilDone waits pollInterval between status queries until the remote job
// reports done. onProgress is called once before every wait, never while a
// query is in flight.
func (c *Client) PollUntilDone(ctx context.Context, job *entity.GenerationJob, onProgress port.ProgressFunc) (*entity.GenerationJob, error) {
	ctx, span := otel.Tracer("generation").Start(ctx, "generation.PollUntilDone")
	defer span.End()

	const op = "poll"

	if job == nil || job.Name == "" {
		return nil, spanError(span, entity.NewError(entity.ErrorKindInternal, op, errors.New("job handle is required")))
	}

	log := c.logger.With(zap.String("operation", job.Name))
	phases := NewPhases(c.phases)
	started := c.now()
	current := job
	polls := 0

	for !current.Done {
		if onProgress != nil {
			onProgress(phases.Next())
		}

		if err := c.wait(ctx, c.pollInterval); err != nil {
			return nil, spanError(span, entity.NewError(entity.ErrorKindCancelled, op, err))
		}

		key, err := c.apiKey(ctx, entity.ErrorKindPoll, op)
		if err != nil {
			return nil, spanError(span, err)
		}

		next, err := c.api.GetGeneration(ctx, key, current)
		polls++
		if err != nil {
			return nil, spanError(span, classify(entity.ErrorKindPoll, op, err))
		}
		if next == nil {
			return nil, spanError(span, entity.NewError(entity.ErrorKindPoll, op, errors.New("empty operation status")))
		}
		if next.Name == "" {
			next.Name = current.Name
		}
		current = next

		log.Debug("generation polled", zap.Int("polls", polls), zap.Bool("done", current.Done))

		// a job that finished within the last interval is still collected
		if !current.Done && c.maxWait > 0 && c.now().Sub(started) >= c.maxWait {
			return nil, spanError(span, entity.NewError(entity.ErrorKindPollTimeout, op,
				fmt.Errorf("operation %s not done after %s", job.Name, c.maxWait)))
		}
	}

	span.SetAttributes(attribute.Int("generation.polls", polls))
	return current, nil
}

// FetchResult downloads the video behind a finished job's locator.
func (c *Client) FetchResult(ctx context.Context, job *entity.GenerationJob) (*entity.MediaHandle, error) {
	ctx, span := otel.Tracer("generation").Start(ctx, "generation.FetchResult")
	defer span.End()

	const op = "fetch_result"

	switch {
	case job == nil || !job.Done:
		return nil, spanError(span, entity.NewError(entity.ErrorKindInternal, op, errors.New("job is not done")))
	case job.Error != "":
		return nil, spanError(span, entity.NewError(entity.ErrorKindGenerationFailed, op, errors.New(job.Error)))
	case job.ResultLocator == "":
		return nil, spanError(span, entity.NewError(entity.ErrorKindMissingResult, op, nil))
	}

	key, err := c.apiKey(ctx, entity.ErrorKindDownload, op)
	if err != nil {
		return nil, spanError(span, err)
	}

	u, err := url.Parse(job.ResultLocator)
	if err != nil {
		return nil, spanError(span, entity.NewError(entity.ErrorKindDownload, op, fmt.Errorf("parse locator: %w", err)))
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, spanError(span, entity.NewError(entity.ErrorKindDownload, op, err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// keep the key out of error messages
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = job.ResultLocator
		}
		return nil, spanError(span, classify(entity.ErrorKindDownload, op, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, spanError(span, entity.NewError(entity.ErrorKindDownload, op, fmt.Errorf("unexpected status %s", resp.Status)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, spanError(span, classify(entity.ErrorKindDownload, op, fmt.Errorf("read body: %w", err)))
	}

	span.SetAttributes(attribute.Int("generation.result_bytes", len(data)))
	return &entity.MediaHandle{
		Locator:  job.ResultLocator,
		MIMEType: resultMIME(resp.Header.Get("Content-Type")),
		Data:     data,
	}, nil
}

// Generate runs the whole lifecycle and folds every failure into the outcome.
func (c *Client) Generate(ctx context.Context, req entity.GenerationRequest, onProgress port.ProgressFunc) entity.Outcome {
	job, err := c.Submit(ctx, req)
	if err != nil {
		return entity.Failed(err)
	}

	done, err := c.PollUntilDone(ctx, job, onProgress)
	if err != nil {
		return entity.Failed(err)
	}

	media, err := c.FetchResult(ctx, done)
	if err != nil {
		return entity.Failed(err)
	}
	return entity.Succeeded(media)
}

// apiKey reads the credential for one remote call.
func (c *Client) apiKey(ctx context.Context, kind entity.ErrorKind, op string) (string, error) {
	key, err := c.creds.APIKey(ctx)
	if err != nil {
		return "", entity.NewError(kind, op, fmt.Errorf("read credential: %w", err))
	}
	if strings.TrimSpace(key) == "" {
		return "", entity.NewError(entity.ErrorKindCredentialInvalid, op, errors.New("no API key selected"))
	}
	return key, nil
}

func classify(kind entity.ErrorKind, op string, err error) *entity.Error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = entity.ErrorKindCancelled
	case strings.Contains(err.Error(), credentialNotFound):
		kind = entity.ErrorKindCredentialInvalid
	}
	return entity.NewError(kind, op, err)
}

func resultMIME(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt == "" || mt == "application/octet-stream" {
		return defaultResultMIME
	}
	return mt
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
