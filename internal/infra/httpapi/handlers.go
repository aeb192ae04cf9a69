package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/fiapx/fiapx-video-extender/internal/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const multipartMemory = 32 << 20

type jobResponse struct {
	ID            uuid.UUID               `json:"id"`
	UserID        string                  `json:"user_id"`
	Status        entity.JobStatus        `json:"status"`
	VideoKey      string                  `json:"video_key"`
	Prompt        string                  `json:"prompt"`
	Config        entity.GenerationConfig `json:"config"`
	SeedTimestamp float64                 `json:"seed_timestamp"`
	Progress      string                  `json:"progress,omitempty"`
	PollCount     int                     `json:"poll_count"`
	ErrorKind     entity.ErrorKind        `json:"error_kind,omitempty"`
	ErrorMessage  string                  `json:"error_message,omitempty"`
	Attempt       int                     `json:"attempt"`
	MaxAttempts   int                     `json:"max_attempts"`
	CanRetry      bool                    `json:"can_retry"`
	VideoURL      string                  `json:"video_url,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
}

func toResponse(job *entity.Job) jobResponse {
	resp := jobResponse{
		ID:            job.ID,
		UserID:        job.UserID,
		Status:        job.Status,
		VideoKey:      job.VideoKey,
		Prompt:        job.Prompt,
		Config:        job.Config,
		SeedTimestamp: job.SeedTimestamp,
		Progress:      job.ProgressMessage,
		PollCount:     job.PollCount,
		ErrorKind:     job.ErrorKind,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
		CanRetry:      job.CanRetry(),
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
		CompletedAt:   job.CompletedAt,
	}
	if job.Status == entity.JobStatusSucceeded {
		resp.VideoURL = "/extensions/" + job.ID.String() + "/video"
	}
	return resp
}

func (h *Handler) createExtension(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("video file is required"))
		return
	}
	defer file.Close()

	req := usecase.ExtensionRequest{
		UserID:      lo.CoalesceOrEmpty(r.FormValue("user_id"), r.Header.Get("X-User-ID")),
		UserEmail:   r.FormValue("email"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Video:       file,
		Prompt:      r.FormValue("prompt"),
		Config: entity.GenerationConfig{
			Resolution:  r.FormValue("resolution"),
			AspectRatio: r.FormValue("aspect_ratio"),
		},
	}

	if v := r.FormValue("number_of_videos"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody("number_of_videos must be an integer"))
			return
		}
		req.Config.NumberOfVideos = n
	}
	if v := r.FormValue("seed_timestamp"); v != "" {
		ts, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody("seed_timestamp must be a number of seconds"))
			return
		}
		req.SeedTimestamp = &ts
	}

	job, err := h.svc.Request(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, toResponse(job))
}

func (h *Handler) listExtensions(w http.ResponseWriter, r *http.Request) {
	userID := lo.CoalesceOrEmpty(r.URL.Query().Get("user_id"), r.Header.Get("X-User-ID"))

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody("limit must be an integer"))
			return
		}
		limit = n
	}

	jobs, err := h.svc.List(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"items": lo.Map(jobs, func(job *entity.Job, _ int) jobResponse { return toResponse(job) }),
	})
}

func (h *Handler) getExtension(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(job))
}

func (h *Handler) retryExtension(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, toResponse(job))
}

func (h *Handler) extensionVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	link, err := h.svc.ResultURL(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

func (h *Handler) getCredential(w http.ResponseWriter, r *http.Request) {
	selected, err := h.svc.CredentialSelected(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"selected": selected})
}

func (h *Handler) putCredential(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<14)).Decode(&body); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("body must be JSON with an api_key field"))
		return
	}
	if err := h.svc.SelectCredential(r.Context(), body.APIKey); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetCredential(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid job id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &tooLarge), strings.Contains(err.Error(), "request body too large"):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, usecase.ErrCredentialRequired):
		status = http.StatusPreconditionRequired
	case errors.Is(err, usecase.ErrNotVideo):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, usecase.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, port.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrNotRetryable), errors.Is(err, usecase.ErrResultNotReady):
		status = http.StatusConflict
	case errors.Is(err, port.ErrSelectorUnavailable):
		status = http.StatusNotImplemented
	case strings.Contains(err.Error(), "multipart"):
		status = http.StatusBadRequest
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	h.writeJSON(w, status, errorBody(msg))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
