package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"go.uber.org/zap"
)

const opExtract = "extract_frame"

var _ port.FrameExtractor = (*Extractor)(nil)

type Extractor struct {
	format  string
	epsilon float64
	tempDir string
	logger  *zap.Logger
}

// NewExtractor returns an extractor that encodes frames as format (png or
// jpeg). epsilon is how far before the end of the clip the last usable
// timestamp sits.
func NewExtractor(format string, epsilon float64, tempDir string, logger *zap.Logger) *Extractor {
	if format != "jpeg" {
		format = "png"
	}
	if epsilon <= 0 {
		epsilon = 0.1
	}
	return &Extractor{format: format, epsilon: epsilon, tempDir: tempDir, logger: logger}
}

type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
}

// ExtractFrame seeks videoPath to timestamp and encodes the frame shown there.
// Timestamps outside the clip are clamped, so asking past the end returns the
// last frame.
func (e *Extractor) ExtractFrame(ctx context.Context, videoPath string, timestamp float64) (entity.SourceFrame, error) {
	probe, err := e.Probe(ctx, videoPath)
	if err != nil {
		return entity.SourceFrame{}, entity.NewError(entity.ErrorKindDecode, opExtract, err)
	}

	seek := ClampTimestamp(timestamp, probe.Duration, e.epsilon)

	workDir, err := os.MkdirTemp(e.tempDir, "frame-*")
	if err != nil {
		return entity.SourceFrame{}, fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	out := filepath.Join(workDir, "seed."+e.extension())

	err = e.run(ctx, "-ss", formatSeconds(seek), "-i", videoPath, "-frames:v", "1", "-update", "1", "-y", out)
	if err == nil && !fileHasData(out) {
		// Seeking near the end can land after the last decodable frame; decode
		// the final second and keep the last frame written.
		e.logger.Debug("no frame at seek point, falling back to last frame",
			zap.String("video", videoPath),
			zap.Float64("seek", seek),
		)
		err = e.run(ctx, "-sseof", "-1", "-i", videoPath, "-update", "1", "-y", out)
	}
	if err != nil {
		return entity.SourceFrame{}, entity.NewError(entity.ErrorKindDecode, opExtract, err)
	}

	data, err := os.ReadFile(out)
	if err != nil || len(data) == 0 {
		return entity.SourceFrame{}, entity.NewError(entity.ErrorKindDecode, opExtract, errors.New("no frame produced"))
	}

	frame, err := entity.NewSourceFrame(data, "image/"+e.format)
	if err != nil {
		return entity.SourceFrame{}, entity.NewError(entity.ErrorKindDecode, opExtract, err)
	}

	e.logger.Info("seed frame extracted",
		zap.Float64("requested", timestamp),
		zap.Float64("seek", seek),
		zap.Float64("video_duration", probe.Duration),
		zap.Int("width", frame.Width),
		zap.Int("height", frame.Height),
	)
	return frame, nil
}

// Probe reads the container duration and the first video stream's size.
func (e *Extractor) Probe(ctx context.Context, videoPath string) (ProbeResult, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe: %w", err)
	}

	var parsed struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &parsed); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return ProbeResult{}, errors.New("no video stream")
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("parse duration: %w", err)
	}

	return ProbeResult{
		Duration: duration,
		Width:    parsed.Streams[0].Width,
		Height:   parsed.Streams[0].Height,
	}, nil
}

// ClampTimestamp limits ts to [0, duration-epsilon].
func ClampTimestamp(ts, duration, epsilon float64) float64 {
	if math.IsNaN(ts) || ts < 0 {
		ts = 0
	}
	last := duration - epsilon
	if math.IsNaN(last) || last < 0 {
		last = 0
	}
	return math.Min(ts, last)
}

func (e *Extractor) run(ctx context.Context, args ...string) error {
	args = append([]string{"-v", "error"}, args...)
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg error: %w, output: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (e *Extractor) extension() string {
	if e.format == "jpeg" {
		return "jpg"
	}
	return "png"
}

func fileHasData(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
