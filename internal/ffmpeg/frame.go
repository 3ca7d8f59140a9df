package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/keagan/reelmixer/pkg/util"
)

// FrameAt decodes the frame shown at the given timestamp. Seeking happens
// before the input so the call stays cheap on long sources.
func (e *Executor) FrameAt(ctx context.Context, input string, at time.Duration) (image.Image, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if at < 0 {
		at = 0
	}

	data, err := e.Capture(ctx, frameArgs(input, at))
	if err != nil {
		return nil, fmt.Errorf("frame grab at %s failed: %w", util.FormatDuration(at), err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("frame grab at %s: %w", util.FormatDuration(at), ErrEmptyOutput)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

func frameArgs(input string, at time.Duration) []string {
	return []string{
		"-ss", util.FormatDuration(at),
		"-i", input,
		"-frames:v", "1",
		"-an",
		"-f", "image2pipe",
		"-c:v", "png",
		"pipe:1",
	}
}
