package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/rs/zerolog"
)

var (
	// ErrFrameProbe means no frame could be decoded where one was expected.
	ErrFrameProbe = errors.New("frame probe failed")
	// ErrInvalidDuration means a written clip reports no playable length.
	ErrInvalidDuration = errors.New("clip has no duration")
	// ErrOutputTooSmall means a written clip is missing or truncated.
	ErrOutputTooSmall = errors.New("clip output missing or too small")
)

// Media is the media I/O collaborator. *ffmpeg.Executor implements it.
type Media interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	FrameAt(ctx context.Context, path string, at time.Duration) (image.Image, error)
	Transcode(ctx context.Context, opts ffmpeg.TranscodeOptions) error
	Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error
}

// Workspace hands out paths for intermediate files.
type Workspace interface {
	NewPath(prefix, ext string) string
}

// Clip is a lazy description of media to cut: a range of a file plus
// pending video filters. Nothing is decoded until it is materialized.
type Clip struct {
	Source   string
	Start    time.Duration
	Duration time.Duration // zero means to the end of Source
	Loop     bool          // repeat Source to fill Duration
	Filters  []string
	Label    string
}

// WithFilters returns a copy of c with filters appended.
func (c Clip) WithFilters(filters ...string) Clip {
	out := c
	out.Filters = make([]string, 0, len(c.Filters)+len(filters))
	out.Filters = append(out.Filters, c.Filters...)
	for _, f := range filters {
		if f != "" {
			out.Filters = append(out.Filters, f)
		}
	}
	return out
}

// Trimmed returns a copy of c limited to d.
func (c Clip) Trimmed(d time.Duration) Clip {
	out := c
	out.Duration = d
	return out
}

// Materialized is a clip written to disk and verified decodable. It owns its
// backing file until Release is called.
type Materialized struct {
	Path     string
	Duration time.Duration
	Width    int
	Height   int
	FPS      float64
	HasAudio bool

	owned bool
}

// Handle returns a clip covering the whole materialized file.
func (m *Materialized) Handle() Clip {
	return Clip{Source: m.Path, Label: strings.TrimSuffix(filepath.Base(m.Path), filepath.Ext(m.Path))}
}

// Size returns the frame size.
func (m *Materialized) Size() image.Point {
	return image.Pt(m.Width, m.Height)
}

// Release deletes the backing file if this handle owns it.
func (m *Materialized) Release() error {
	if m == nil || !m.owned {
		return nil
	}
	m.owned = false
	if err := os.Remove(m.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release %s: %w", m.Path, err)
	}
	return nil
}

// Disown transfers the file out of this handle so Release leaves it alone.
func (m *Materialized) Disown() string {
	m.owned = false
	return m.Path
}

// ReleaseAll releases every handle. Failures are logged and otherwise
// ignored.
func ReleaseAll(logger zerolog.Logger, clips ...*Materialized) {
	for _, c := range clips {
		if err := c.Release(); err != nil {
			logger.Warn().Err(err).Msg("failed to release clip")
		}
	}
}
