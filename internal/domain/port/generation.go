package port

import (
	"context"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
)

// VideoAPI is the remote asynchronous generation service. The API key is
// passed on every call; implementations must not cache it.
type VideoAPI interface {
	SubmitGeneration(ctx context.Context, apiKey string, req entity.GenerationRequest) (*entity.GenerationJob, error)
	GetGeneration(ctx context.Context, apiKey string, job *entity.GenerationJob) (*entity.GenerationJob, error)
}

// ProgressFunc receives the display message for the wait that is about to start.
type ProgressFunc func(message string)

type Generator interface {
	Submit(ctx context.Context, req entity.GenerationRequest) (*entity.GenerationJob, error)
	PollUntilDone(ctx context.Context, job *entity.GenerationJob, onProgress ProgressFunc) (*entity.GenerationJob, error)
	FetchResult(ctx context.Context, job *entity.GenerationJob) (*entity.MediaHandle, error)
}
