package port

import (
	"context"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
)

type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath string, timestamp float64) (entity.SourceFrame, error)
}
