package veo

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

var _ port.VideoAPI = (*Client)(nil)

type Config struct {
	Model string
	// BaseURL overrides the Gemini API endpoint, mostly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to Veo through the Gemini API. A genai client is built per call
// with the key the caller read, so a key change takes effect on the next call.
type Client struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{model: cfg.Model, baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}
}

func (c *Client) SubmitGeneration(ctx context.Context, apiKey string, req entity.GenerationRequest) (*entity.GenerationJob, error) {
	ctx, span := otel.Tracer("veo").Start(ctx, "veo.GenerateVideos")
	defer span.End()
	span.SetAttributes(
		attribute.String("veo.model", c.model),
		attribute.String("veo.resolution", req.Config.Resolution),
		attribute.String("veo.aspect_ratio", req.Config.AspectRatio),
	)

	client, err := c.newGenAI(ctx, apiKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	image := &genai.Image{
		ImageBytes: req.SeedFrame.Data,
		MIMEType:   req.SeedFrame.MIMEType,
	}
	op, err := client.Models.GenerateVideos(ctx, c.model, req.Prompt, image, &genai.GenerateVideosConfig{
		NumberOfVideos: int32(req.Config.NumberOfVideos),
		Resolution:     req.Config.Resolution,
		AspectRatio:    req.Config.AspectRatio,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generate videos: %w", err)
	}

	return toJob(op), nil
}

func (c *Client) GetGeneration(ctx context.Context, apiKey string, job *entity.GenerationJob) (*entity.GenerationJob, error) {
	ctx, span := otel.Tracer("veo").Start(ctx, "veo.GetVideosOperation")
	defer span.End()
	span.SetAttributes(attribute.String("veo.operation", job.Name))

	client, err := c.newGenAI(ctx, apiKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	op, err := client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: job.Name}, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("get videos operation: %w", err)
	}

	next := toJob(op)
	span.SetAttributes(attribute.Bool("veo.done", next.Done))
	return next, nil
}

func (c *Client) newGenAI(ctx context.Context, apiKey string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// toJob copies the parts of a Veo operation the lifecycle needs. Only the
// first generated video is used.
func toJob(op *genai.GenerateVideosOperation) *entity.GenerationJob {
	if op == nil {
		return nil
	}

	job := &entity.GenerationJob{Name: op.Name, Done: op.Done}
	if !op.Done {
		return job
	}

	if msg := operationError(op.Error); msg != "" {
		job.Error = msg
		return job
	}

	resp := op.Response
	if resp == nil {
		return job
	}
	for _, v := range resp.GeneratedVideos {
		if v != nil && v.Video != nil && v.Video.URI != "" {
			job.ResultLocator = v.Video.URI
			return job
		}
	}
	if resp.RAIMediaFilteredCount > 0 {
		job.Error = "video blocked by safety filters"
		if len(resp.RAIMediaFilteredReasons) > 0 {
			job.Error += ": " + strings.Join(resp.RAIMediaFilteredReasons, "; ")
		}
	}
	return job
}

func operationError(e map[string]any) string {
	if len(e) == 0 {
		return ""
	}
	if msg, ok := e["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprint(e)
}
