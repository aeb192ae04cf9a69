package port

import (
	"context"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
)

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, userEmail string, job *entity.Job) error
}
