// Package mediatest provides an in-memory media backend for tests. It writes
// small placeholder files so on-disk checks behave as they would with real
// encodes, and tracks stream metadata per path.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/keagan/reelmixer/internal/ffmpeg"
)

// ErrInjected is returned by operations forced to fail.
var ErrInjected = errors.New("injected failure")

const placeholderBytes = 4096

// Stream is what the fake knows about a file.
type Stream struct {
	Duration time.Duration
	Width    int
	Height   int
	FPS      float64
	HasAudio bool
	HasVideo bool
}

// Fake implements media.Media plus the overlay, encode and audio probe
// operations used by assembly.
type Fake struct {
	mu      sync.Mutex
	streams map[string]Stream

	// FrameFailures makes the next n FrameAt calls on a path fail.
	FrameFailures map[string]int
	// FailConcat decides whether a Concat call fails.
	FailConcat func(inputs []string) bool
	// FailTranscode decides whether a Transcode call fails.
	FailTranscode func(opts ffmpeg.TranscodeOptions) bool
	FailOverlay   bool
	FailEncode    bool
	// EncodeBytes overrides the size of files written by Encode.
	EncodeBytes int

	Transcodes []ffmpeg.TranscodeOptions
	Concats    []ffmpeg.ConcatOptions
	Overlays   []ffmpeg.OverlayOptions
	Encodes    []ffmpeg.EncodeOptions
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		streams:       make(map[string]Stream),
		FrameFailures: make(map[string]int),
	}
}

// AddVideo writes a placeholder file at path and registers it as a video.
func (f *Fake) AddVideo(path string, d time.Duration, width, height int, fps float64, audio bool) error {
	return f.write(path, Stream{Duration: d, Width: width, Height: height, FPS: fps, HasAudio: audio, HasVideo: true}, placeholderBytes)
}

// AddAudio writes a placeholder file at path and registers it as audio only.
func (f *Fake) AddAudio(path string, d time.Duration) error {
	return f.write(path, Stream{Duration: d, HasAudio: true}, placeholderBytes)
}

// Stream returns the registered metadata for path.
func (f *Fake) Stream(path string) (Stream, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[path]
	return s, ok
}

func (f *Fake) write(path string, s Stream, size int) error {
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		return err
	}
	f.mu.Lock()
	f.streams[path] = s
	f.mu.Unlock()
	return nil
}

func (f *Fake) lookup(path string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[path]
	if !ok {
		return Stream{}, fmt.Errorf("%s: no such file", path)
	}
	return s, nil
}

func info(path string, s Stream) *ffmpeg.VideoInfo {
	return &ffmpeg.VideoInfo{
		FilePath: path,
		Duration: s.Duration,
		Width:    s.Width,
		Height:   s.Height,
		FPS:      s.FPS,
		HasVideo: s.HasVideo,
		HasAudio: s.HasAudio,
	}
}

func (f *Fake) ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	s, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	if !s.HasVideo {
		return nil, ffmpeg.ErrNoVideoStream
	}
	return info(path, s), nil
}

func (f *Fake) ProbeAudio(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	s, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	if !s.HasAudio {
		return nil, ffmpeg.ErrNoAudioStream
	}
	return info(path, s), nil
}

func (f *Fake) FrameAt(ctx context.Context, path string, at time.Duration) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if n := f.FrameFailures[path]; n > 0 {
		f.FrameFailures[path] = n - 1
		f.mu.Unlock()
		return nil, ErrInjected
	}
	f.mu.Unlock()

	s, err := f.lookup(path)
	if err != nil {
		return nil, err
	}
	if !s.HasVideo || at > s.Duration {
		return nil, ffmpeg.ErrEmptyOutput
	}
	return image.NewRGBA(image.Rect(0, 0, s.Width, s.Height)), nil
}

func (f *Fake) Transcode(ctx context.Context, opts ffmpeg.TranscodeOptions) error {
	f.mu.Lock()
	f.Transcodes = append(f.Transcodes, opts)
	f.mu.Unlock()

	if f.FailTranscode != nil && f.FailTranscode(opts) {
		return ErrInjected
	}
	src, err := f.lookup(opts.Input)
	if err != nil {
		return err
	}

	out := src
	switch {
	case opts.Loop:
		out.Duration = opts.Duration
	case opts.Duration > 0 && opts.Start+opts.Duration < src.Duration:
		out.Duration = opts.Duration
	default:
		out.Duration = src.Duration - opts.Start
	}
	if out.Duration < 0 {
		out.Duration = 0
	}
	out.Width, out.Height = applyGeometry(src.Width, src.Height, opts.Filters)
	if opts.FPS > 0 {
		out.FPS = opts.FPS
	}
	out.HasAudio = src.HasAudio && opts.KeepAudio
	return f.write(opts.Output, out, placeholderBytes)
}

func (f *Fake) Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error {
	f.mu.Lock()
	f.Concats = append(f.Concats, opts)
	f.mu.Unlock()

	if len(opts.Inputs) == 0 {
		return ffmpeg.ErrNoInputs
	}
	if f.FailConcat != nil && f.FailConcat(opts.Inputs) {
		return ErrInjected
	}

	var out Stream
	for i, in := range opts.Inputs {
		s, err := f.lookup(in)
		if err != nil {
			return err
		}
		if i == 0 {
			out = s
			out.Duration = 0
			out.HasAudio = false
		}
		out.Duration += s.Duration
	}
	if opts.FPS > 0 {
		out.FPS = opts.FPS
	}
	return f.write(opts.Output, out, placeholderBytes)
}

func (f *Fake) OverlayImage(ctx context.Context, opts ffmpeg.OverlayOptions) error {
	f.mu.Lock()
	f.Overlays = append(f.Overlays, opts)
	f.mu.Unlock()

	if f.FailOverlay {
		return ErrInjected
	}
	s, err := f.lookup(opts.Input)
	if err != nil {
		return err
	}
	s.HasAudio = false
	return f.write(opts.Output, s, placeholderBytes)
}

func (f *Fake) Encode(ctx context.Context, opts ffmpeg.EncodeOptions) error {
	f.mu.Lock()
	f.Encodes = append(f.Encodes, opts)
	f.mu.Unlock()

	if f.FailEncode {
		return ErrInjected
	}
	s, err := f.lookup(opts.Input)
	if err != nil {
		return err
	}
	s.HasAudio = opts.Audio != nil
	if opts.FPS > 0 {
		s.FPS = opts.FPS
	}
	size := placeholderBytes * 64
	if f.EncodeBytes > 0 {
		size = f.EncodeBytes
	}
	return f.write(opts.Output, s, size)
}

// applyGeometry follows crop and scale filters to find the output size.
func applyGeometry(w, h int, filters []string) (int, int) {
	for _, chain := range filters {
		for _, filter := range strings.Split(chain, ",") {
			var a, b int
			switch {
			case strings.HasPrefix(filter, "crop="):
				if n, _ := fmt.Sscanf(filter, "crop=%d:%d", &a, &b); n == 2 {
					w, h = a, b
				}
			case strings.HasPrefix(filter, "scale="):
				if n, _ := fmt.Sscanf(filter, "scale=%d:%d", &a, &b); n == 2 {
					w, h = a, b
				}
			}
		}
	}
	return w, h
}
