package media

import (
	"context"
	"fmt"
	"os"

	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/rs/zerolog"
)

// minOutputBytes is the smallest file accepted as a written clip.
const minOutputBytes = 1024

// Settings is the intermediate encoding profile. Intermediates favour speed.
type Settings struct {
	Preset  string
	CRF     int
	FPS     float64
	Threads int
}

// DefaultSettings returns ultrafast, crf 23, 30 fps, two threads.
func DefaultSettings() Settings {
	return Settings{Preset: "ultrafast", CRF: ffmpeg.DefaultCRF, FPS: 30, Threads: 2}
}

// Materializer writes clips to disk and reopens them before handing them on.
type Materializer struct {
	logger   zerolog.Logger
	media    Media
	ws       Workspace
	settings Settings
}

// NewMaterializer creates a Materializer writing into ws.
func NewMaterializer(logger zerolog.Logger, m Media, ws Workspace, settings Settings) *Materializer {
	return &Materializer{
		logger:   logger.With().Str("component", "materializer").Logger(),
		media:    m,
		ws:       ws,
		settings: settings,
	}
}

// Media returns the underlying media collaborator.
func (m *Materializer) Media() Media {
	return m.media
}

// Workspace returns the workspace intermediates are written into.
func (m *Materializer) Workspace() Workspace {
	return m.ws
}

// Settings returns the intermediate encoding profile.
func (m *Materializer) Settings() Settings {
	return m.settings
}

// Materialize probes the clip's first frame, writes it with the fast
// profile, then reopens and validates the written file. A failed write is
// deleted before the error is returned.
func (m *Materializer) Materialize(ctx context.Context, clip Clip, name string) (*Materialized, error) {
	if err := m.probeStart(ctx, clip); err != nil {
		return nil, err
	}

	out := m.ws.NewPath(name, ".mp4")
	err := m.media.Transcode(ctx, ffmpeg.TranscodeOptions{
		Input:    clip.Source,
		Output:   out,
		Start:    clip.Start,
		Duration: clip.Duration,
		Loop:     clip.Loop,
		Filters:  clip.Filters,
		Preset:   m.settings.Preset,
		CRF:      m.settings.CRF,
		FPS:      m.settings.FPS,
		Threads:  m.settings.Threads,
	})
	if err != nil {
		m.discard(out)
		return nil, fmt.Errorf("materialize %s: %w", labelOf(clip), err)
	}

	mat, err := m.Open(ctx, out)
	if err != nil {
		m.discard(out)
		return nil, fmt.Errorf("materialize %s: %w", labelOf(clip), err)
	}

	m.logger.Debug().
		Str("clip", labelOf(clip)).
		Str("path", out).
		Dur("duration", mat.Duration).
		Msg("clip materialized")

	return mat, nil
}

// Open validates an existing file and returns an owning handle for it: the
// file must exist with a plausible size, probe with a positive duration and
// decode a frame at zero.
func (m *Materializer) Open(ctx context.Context, path string) (*Materialized, error) {
	st, err := os.Stat(path)
	if err != nil || st.Size() < minOutputBytes {
		return nil, fmt.Errorf("%w: %s", ErrOutputTooSmall, path)
	}

	info, err := m.media.ProbeVideo(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reopen %s: %w", path, err)
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, path)
	}

	if _, err := m.media.FrameAt(ctx, path, 0); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFrameProbe, path, err)
	}

	return &Materialized{
		Path:     path,
		Duration: info.Duration,
		Width:    info.Width,
		Height:   info.Height,
		FPS:      info.FPS,
		HasAudio: info.HasAudio,
		owned:    true,
	}, nil
}

// probeStart reads the clip's first frame, reopening the source once when
// the first read fails.
func (m *Materializer) probeStart(ctx context.Context, clip Clip) error {
	_, err := m.media.FrameAt(ctx, clip.Source, clip.Start)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.logger.Debug().Err(err).Str("clip", labelOf(clip)).Msg("first frame probe failed, reopening source")

	if _, err := m.media.ProbeVideo(ctx, clip.Source); err != nil {
		return fmt.Errorf("%w: reopen %s: %v", ErrFrameProbe, clip.Source, err)
	}
	if _, err := m.media.FrameAt(ctx, clip.Source, clip.Start); err != nil {
		return fmt.Errorf("%w: %s at %s: %v", ErrFrameProbe, clip.Source, clip.Start, err)
	}
	return nil
}

func (m *Materializer) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn().Err(err).Str("path", path).Msg("failed to remove partial clip")
	}
}

func labelOf(c Clip) string {
	if c.Label != "" {
		return c.Label
	}
	return c.Source
}
