package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/infra/metrics"
	"github.com/fiapx/fiapx-video-extender/internal/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ExtensionService is the API use case as seen by the handlers.
type ExtensionService interface {
	Request(ctx context.Context, req usecase.ExtensionRequest) (*entity.Job, error)
	Retry(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	List(ctx context.Context, userID string, limit int) ([]*entity.Job, error)
	ResultURL(ctx context.Context, id uuid.UUID) (string, error)
	CredentialSelected(ctx context.Context) (bool, error)
	SelectCredential(ctx context.Context, apiKey string) error
	ResetCredential(ctx context.Context) error
}

type Options struct {
	MaxUploadBytes int64
	HealthChecks   map[string]metrics.HealthCheck
}

type Handler struct {
	svc            ExtensionService
	logger         *zap.Logger
	maxUploadBytes int64
}

func NewRouter(svc ExtensionService, logger *zap.Logger, opts Options) *mux.Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 200 << 20
	}
	h := &Handler{svc: svc, logger: logger, maxUploadBytes: opts.MaxUploadBytes}

	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/extensions", h.createExtension).Methods(http.MethodPost)
	r.HandleFunc("/extensions", h.listExtensions).Methods(http.MethodGet)
	r.HandleFunc("/extensions/{id}", h.getExtension).Methods(http.MethodGet)
	r.HandleFunc("/extensions/{id}/retry", h.retryExtension).Methods(http.MethodPost)
	r.HandleFunc("/extensions/{id}/video", h.extensionVideo).Methods(http.MethodGet)

	r.HandleFunc("/credential", h.getCredential).Methods(http.MethodGet)
	r.HandleFunc("/credential", h.putCredential).Methods(http.MethodPut)
	r.HandleFunc("/credential", h.deleteCredential).Methods(http.MethodDelete)

	r.Handle("/healthz", metrics.HealthHandler(opts.HealthChecks)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
