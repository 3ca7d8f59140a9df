package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConcatOptions defines concatenation parameters. Inputs are expected to be
// video-only and share frame size and rate.
type ConcatOptions struct {
	Inputs       []string
	Output       string
	Method       ConcatMethod
	VideoCodec   string
	Preset       string
	CRF          int
	FPS          float64
	Threads      int
	ProgressFunc ProgressFunc
}

// Concat merges multiple video files into one
func (e *Executor) Concat(ctx context.Context, opts ConcatOptions) error {
	if len(opts.Inputs) == 0 {
		return ErrNoInputs
	}
	if opts.Output == "" {
		return ErrNoOutput
	}

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Str("method", string(opts.Method)).
		Str("output", opts.Output).
		Msg("concatenating videos")

	if opts.Method == ConcatDemuxer {
		return e.concatDemuxer(ctx, opts)
	}
	return e.concatFilter(ctx, opts)
}

// concatDemuxer tries a stream copy first and re-encodes when the copy fails.
func (e *Executor) concatDemuxer(ctx context.Context, opts ConcatOptions) error {
	listFile, err := createConcatFile(filepath.Dir(opts.Output), opts.Inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(listFile)

	base := []string{"-f", "concat", "-safe", "0", "-i", listFile}

	copyArgs := append(append([]string{}, base...), "-c", "copy", "-an", opts.Output)
	err = e.Run(ctx, RunOptions{
		Args:            copyArgs,
		Threads:         opts.Threads,
		ProgressHandler: opts.ProgressFunc,
	})
	if err == nil {
		return nil
	}
	if IsCancelled(err) {
		return err
	}

	e.logger.Warn().Err(err).Msg("concat copy failed, re-encoding")

	encodeArgs := append(append([]string{}, base...), videoCodecArgs(opts.VideoCodec, opts.Preset, opts.CRF)...)
	if opts.FPS > 0 {
		encodeArgs = append(encodeArgs, "-r", formatRate(opts.FPS))
	}
	encodeArgs = append(encodeArgs, "-an", opts.Output)

	if err := e.Run(ctx, RunOptions{
		Args:            encodeArgs,
		Threads:         opts.Threads,
		ProgressHandler: opts.ProgressFunc,
	}); err != nil {
		return fmt.Errorf("concat re-encode failed: %w", err)
	}
	return nil
}

func (e *Executor) concatFilter(ctx context.Context, opts ConcatOptions) error {
	if err := e.Run(ctx, RunOptions{
		Args:            concatFilterArgs(opts),
		Threads:         opts.Threads,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("concatenating")
		},
	}); err != nil {
		return fmt.Errorf("concat filter failed: %w", err)
	}
	return nil
}

func concatFilterArgs(opts ConcatOptions) []string {
	var args []string
	var graph strings.Builder
	for i, input := range opts.Inputs {
		args = append(args, "-i", input)
		// setsar keeps inputs with equal size but odd pixel aspect joinable
		fmt.Fprintf(&graph, "[%d:v]setsar=1[v%d];", i, i)
	}
	for i := range opts.Inputs {
		fmt.Fprintf(&graph, "[v%d]", i)
	}
	fmt.Fprintf(&graph, "concat=n=%d:v=1:a=0[outv]", len(opts.Inputs))

	args = append(args, "-filter_complex", graph.String(), "-map", "[outv]")
	args = append(args, videoCodecArgs(opts.VideoCodec, opts.Preset, opts.CRF)...)
	if opts.FPS > 0 {
		args = append(args, "-r", formatRate(opts.FPS))
	}
	return append(args, "-an", opts.Output)
}

// createConcatFile generates a file list for the concat demuxer
func createConcatFile(dir string, inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	if _, err := tmpFile.WriteString(concatList(inputs)); err != nil {
		return "", err
	}
	return tmpFile.Name(), nil
}

func concatList(inputs []string) string {
	var b strings.Builder
	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			absPath = input
		}
		escaped := strings.ReplaceAll(absPath, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}
