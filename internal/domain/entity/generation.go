package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// DefaultPrompt is used when the user submits an extension without a prompt.
const DefaultPrompt = "Continue this scene as an immersive, high-end brand advertisement. " +
	"Seamlessly integrate digital billboards, professional stadium lighting, and product placements " +
	"for a brand that fits the context (like Nike, Gatorade, or Red Bull). The camera should track the subject as the action intensifies."

// DefaultSeedTimestamp asks for the last frame of the clip; it is clamped to the clip duration.
const DefaultSeedTimestamp = 999.0

const MaxVideosPerRequest = 4

var (
	supportedResolutions  = []string{"720p", "1080p"}
	supportedAspectRatios = []string{"16:9", "9:16"}
)

type GenerationConfig struct {
	NumberOfVideos int    `json:"number_of_videos"`
	Resolution     string `json:"resolution"`
	AspectRatio    string `json:"aspect_ratio"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{NumberOfVideos: 1, Resolution: "720p", AspectRatio: "16:9"}
}

// WithDefaults fills zero fields from def.
func (c GenerationConfig) WithDefaults(def GenerationConfig) GenerationConfig {
	if c.NumberOfVideos == 0 {
		c.NumberOfVideos = def.NumberOfVideos
	}
	if c.Resolution == "" {
		c.Resolution = def.Resolution
	}
	if c.AspectRatio == "" {
		c.AspectRatio = def.AspectRatio
	}
	return c
}

func (c GenerationConfig) Validate() error {
	if c.NumberOfVideos < 1 || c.NumberOfVideos > MaxVideosPerRequest {
		return fmt.Errorf("number of videos must be between 1 and %d, got %d", MaxVideosPerRequest, c.NumberOfVideos)
	}
	if !lo.Contains(supportedResolutions, c.Resolution) {
		return fmt.Errorf("unsupported resolution %q", c.Resolution)
	}
	if !lo.Contains(supportedAspectRatios, c.AspectRatio) {
		return fmt.Errorf("unsupported aspect ratio %q", c.AspectRatio)
	}
	return nil
}

type GenerationRequest struct {
	SeedFrame SourceFrame
	Prompt    string
	Config    GenerationConfig
}

func NewGenerationRequest(seed SourceFrame, prompt string, cfg GenerationConfig) (GenerationRequest, error) {
	if len(seed.Data) == 0 {
		return GenerationRequest{}, errors.New("seed frame is required")
	}
	if err := cfg.Validate(); err != nil {
		return GenerationRequest{}, err
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	return GenerationRequest{SeedFrame: seed, Prompt: prompt, Config: cfg}, nil
}

// GenerationJob is the local copy of a remote generation operation, refreshed
// by polling. Once Done is set no further polling happens.
type GenerationJob struct {
	Name          string
	Done          bool
	ResultLocator string
	Error         string
}

// MediaHandle is a generated video materialized in process memory.
type MediaHandle struct {
	Locator  string
	MIMEType string
	Data     []byte
}

// Outcome is the terminal result of one generation: either Media is set, or
// Kind and Message describe the failure.
type Outcome struct {
	Media   *MediaHandle
	Kind    ErrorKind
	Message string
}

func Succeeded(media *MediaHandle) Outcome {
	return Outcome{Media: media}
}

func Failed(err error) Outcome {
	return Outcome{Kind: KindOf(err), Message: UserMessage(err)}
}

func (o Outcome) IsSuccess() bool {
	return o.Media != nil
}
