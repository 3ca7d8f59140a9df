package ffmpeg

import (
	"context"
	"fmt"
)

// OverlayOptions places a still image over a video.
type OverlayOptions struct {
	Input   string
	Image   string
	Output  string
	X       int
	Y       int
	Width   int // overlay width in pixels, height keeps the image aspect
	Opacity float64

	Preset  string
	CRF     int
	Threads int
}

// OverlayImage composites an image on every frame of the input video.
func (e *Executor) OverlayImage(ctx context.Context, opts OverlayOptions) error {
	if opts.Input == "" || opts.Image == "" {
		return fmt.Errorf("input and image paths are required")
	}
	if opts.Output == "" {
		return ErrNoOutput
	}

	e.logger.Info().
		Str("input", opts.Input).
		Str("image", opts.Image).
		Int("x", opts.X).
		Int("y", opts.Y).
		Msg("applying image overlay")

	runOpts := RunOptions{
		Args:    overlayArgs(opts),
		Threads: opts.Threads,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("overlay output")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("overlay merge failed: %w", err)
	}
	return nil
}

func overlayArgs(opts OverlayOptions) []string {
	logo := "[1:v]"
	if opts.Width > 0 {
		logo += fmt.Sprintf("scale=%d:-1,", opts.Width)
	}
	logo += "format=rgba"
	if opts.Opacity > 0 && opts.Opacity < 1.0 {
		logo += fmt.Sprintf(",colorchannelmixer=aa=%.2f", opts.Opacity)
	}
	graph := fmt.Sprintf("%s[ovr];[0:v][ovr]overlay=%d:%d:shortest=1:format=auto", logo, opts.X, opts.Y)

	args := []string{
		"-i", opts.Input,
		"-loop", "1", "-i", opts.Image,
		"-filter_complex", graph,
	}
	args = append(args, videoCodecArgs("", opts.Preset, opts.CRF)...)
	return append(args, "-an", opts.Output)
}

// EncodeOptions configures the final delivery encode.
type EncodeOptions struct {
	Input      string
	Output     string
	Audio      *AudioInput
	FPS        float64
	Bitrate    string
	Preset     string
	Threads    int
	VideoCodec string

	ProgressFunc ProgressFunc
}

// Encode performs the single-pass delivery encode. Audio is muxed only when
// opts.Audio is set; otherwise the output has no audio stream at all.
func (e *Executor) Encode(ctx context.Context, opts EncodeOptions) error {
	if opts.Input == "" {
		return ErrNoInputs
	}
	if opts.Output == "" {
		return ErrNoOutput
	}

	e.logger.Info().
		Str("input", opts.Input).
		Str("output", opts.Output).
		Str("bitrate", opts.Bitrate).
		Str("preset", opts.Preset).
		Bool("audio", opts.Audio != nil).
		Msg("starting final encode")

	runOpts := RunOptions{
		Args:            encodeArgs(opts),
		Threads:         opts.Threads,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("encode output")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("final encode failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("final encode completed")
	return nil
}

func encodeArgs(opts EncodeOptions) []string {
	codec := opts.VideoCodec
	if codec == "" {
		codec = DefaultVideoCodec
	}
	preset := opts.Preset
	if preset == "" {
		preset = DefaultPreset
	}

	args := []string{"-i", opts.Input}
	if opts.Audio != nil {
		args = append(args, "-i", opts.Audio.Path)
	}

	args = append(args, "-map", "0:v:0")
	args = append(args, "-c:v", codec, "-preset", preset, "-pix_fmt", DefaultPixelFormat)
	if opts.Bitrate != "" {
		args = append(args, "-b:v", opts.Bitrate)
	}
	if opts.FPS > 0 {
		args = append(args, "-r", formatRate(opts.FPS))
	}

	if opts.Audio != nil {
		args = append(args, "-map", "1:a:0")
		if filter := opts.Audio.filter(); filter != "" {
			args = append(args, "-af", filter)
		}
		args = append(args, "-c:a", DefaultAudioCodec, "-b:a", DefaultAudioBitrate)
	} else {
		args = append(args, "-an")
	}

	return append(args, "-movflags", "+faststart", opts.Output)
}
