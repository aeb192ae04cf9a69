package port

import (
	"context"
	"errors"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/google/uuid"
)

var ErrJobNotFound = errors.New("job not found")

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	Update(ctx context.Context, job *entity.Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Job, error)
}
