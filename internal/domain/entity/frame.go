package entity

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// SourceFrame is a still image captured from the source clip. It seeds a single
// submission and must not be modified after capture.
type SourceFrame struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

func NewSourceFrame(data []byte, mimeType string) (SourceFrame, error) {
	if len(data) == 0 {
		return SourceFrame{}, errors.New("frame data cannot be empty")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return SourceFrame{}, fmt.Errorf("unsupported frame encoding: %w", err)
	}
	if mimeType == "" {
		mimeType = "image/" + format
	}

	return SourceFrame{
		Data:     data,
		MIMEType: mimeType,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// Extension returns the file extension matching the frame encoding.
func (f SourceFrame) Extension() string {
	switch f.MIMEType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
