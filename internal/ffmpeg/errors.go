package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFFmpegNotFound  = errors.New("ffmpeg not found in PATH")
	ErrFFprobeNotFound = errors.New("ffprobe not found in PATH")
	ErrNoArgs          = errors.New("no arguments provided")
	ErrNoInputs        = errors.New("no input files provided")
	ErrNoOutput        = errors.New("output path is required")
	ErrNoVideoStream   = errors.New("no video stream")
	ErrNoAudioStream   = errors.New("no audio stream")
	ErrEmptyOutput     = errors.New("ffmpeg produced no output")
)

const maxStderrInError = 600

// FFmpegError carries the failed invocation and the tail of its stderr.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if len(stderr) > maxStderrInError {
		stderr = "..." + stderr[len(stderr)-maxStderrInError:]
	}
	if stderr == "" {
		return fmt.Sprintf("ffmpeg failed: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg failed: %v: %s", e.Err, stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
