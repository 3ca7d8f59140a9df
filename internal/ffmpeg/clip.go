package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/keagan/reelmixer/pkg/util"
)

// TranscodeOptions describes a single-input re-encode: an optional time
// range, a video filter chain and the output encoding parameters.
type TranscodeOptions struct {
	Input    string
	Output   string
	Start    time.Duration
	Duration time.Duration // zero means until the end of the input
	// Loop repeats the input indefinitely; Duration must be set.
	Loop    bool
	Filters []string

	VideoCodec string
	Preset     string
	CRF        int
	FPS        float64
	Threads    int

	// KeepAudio re-encodes the first audio stream instead of dropping audio.
	KeepAudio  bool
	AudioCodec string
	FastStart  bool

	ProgressFunc ProgressFunc
}

// Transcode cuts and re-encodes one input according to opts.
func (e *Executor) Transcode(ctx context.Context, opts TranscodeOptions) error {
	args, err := transcodeArgs(opts)
	if err != nil {
		return err
	}

	e.logger.Debug().
		Str("input", opts.Input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", opts.Duration).
		Int("filters", len(opts.Filters)).
		Msg("transcoding")

	runOpts := RunOptions{
		Args:            args,
		Threads:         opts.Threads,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("transcode")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("transcode of %s failed: %w", opts.Input, err)
	}
	return nil
}

func transcodeArgs(opts TranscodeOptions) ([]string, error) {
	if opts.Input == "" {
		return nil, ErrNoInputs
	}
	if opts.Output == "" {
		return nil, ErrNoOutput
	}
	if opts.Duration < 0 {
		return nil, fmt.Errorf("invalid clip duration: %s", opts.Duration)
	}
	if opts.Loop && opts.Duration == 0 {
		return nil, fmt.Errorf("looped transcode needs a duration")
	}

	var args []string
	if opts.Loop {
		args = append(args, "-stream_loop", "-1")
	}
	if opts.Start > 0 {
		args = append(args, "-ss", util.FormatDuration(opts.Start))
	}
	args = append(args, "-i", opts.Input)
	if opts.Duration > 0 {
		args = append(args, "-t", util.FormatDuration(opts.Duration))
	}

	fb := NewFilterBuilder()
	for _, f := range opts.Filters {
		fb.Custom(f)
	}
	if filter := fb.Build(); filter != "" {
		args = append(args, "-vf", filter)
	}

	args = append(args, videoCodecArgs(opts.VideoCodec, opts.Preset, opts.CRF)...)
	if opts.FPS > 0 {
		args = append(args, "-r", formatRate(opts.FPS))
	}

	if opts.KeepAudio {
		codec := opts.AudioCodec
		if codec == "" {
			codec = DefaultAudioCodec
		}
		args = append(args, "-c:a", codec, "-b:a", DefaultAudioBitrate)
	} else {
		args = append(args, "-an")
	}

	if opts.FastStart {
		args = append(args, "-movflags", "+faststart")
	}

	return append(args, opts.Output), nil
}

func videoCodecArgs(codec, preset string, crf int) []string {
	if codec == "" {
		codec = DefaultVideoCodec
	}
	if preset == "" {
		preset = DefaultPreset
	}
	if crf == 0 {
		crf = DefaultCRF
	}
	return []string{
		"-c:v", codec,
		"-preset", preset,
		"-crf", fmt.Sprintf("%d", crf),
		"-pix_fmt", DefaultPixelFormat,
	}
}

func formatRate(fps float64) string {
	return fmt.Sprintf("%g", fps)
}
