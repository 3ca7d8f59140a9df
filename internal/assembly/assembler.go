package assembly

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/keagan/reelmixer/internal/media"
	"github.com/keagan/reelmixer/internal/normalize"
	"github.com/keagan/reelmixer/internal/overlays"
	"github.com/keagan/reelmixer/internal/profile"
	"github.com/rs/zerolog"
)

// minFinalBytes is the smallest acceptable delivery file.
const minFinalBytes = 1024 * 1024 / 10

// Renderer is the media collaborator for the later assembly stages.
// *ffmpeg.Executor implements it.
type Renderer interface {
	media.Media
	ProbeAudio(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	OverlayImage(ctx context.Context, opts ffmpeg.OverlayOptions) error
	Encode(ctx context.Context, opts ffmpeg.EncodeOptions) error
}

// Audio is the soundtrack attached in the final encode.
type Audio struct {
	Path    string
	Volume  float64
	FadeIn  time.Duration
	FadeOut time.Duration
	// AdaptVideo stretches or trims the video to the track length plus Extra.
	AdaptVideo bool
	Extra      time.Duration
}

// Options drive one assembly.
type Options struct {
	Profile        profile.ExecutionProfile
	TargetDuration time.Duration
	Logo           *overlays.Logo
	Audio          *Audio
	TaglinePath    string
	Output         string
}

// Result describes the encoded reel.
type Result struct {
	Path     string
	Duration time.Duration
	Clips    int
	HasAudio bool
}

// Assembler turns extracted clips into the final encoded reel.
type Assembler struct {
	logger   zerolog.Logger
	renderer Renderer
	mat      *media.Materializer
	norm     *normalize.Normalizer
	concat   *Concatenator
}

// NewAssembler wires the stages together.
func NewAssembler(logger zerolog.Logger, r Renderer, mat *media.Materializer, norm *normalize.Normalizer) *Assembler {
	return &Assembler{
		logger:   logger.With().Str("component", "assembler").Logger(),
		renderer: r,
		mat:      mat,
		norm:     norm,
		concat:   NewConcatenator(logger, mat),
	}
}

// Assemble runs every stage and writes opts.Output. It takes ownership of
// clips. Each stage's output is materialized before the next stage runs.
// Only a failed final encode, or having nothing to concatenate, is fatal.
func (a *Assembler) Assemble(ctx context.Context, clips []*media.Materialized, opts Options) (*Result, error) {
	if len(clips) == 0 {
		return nil, ErrNoClips
	}
	if err := ctx.Err(); err != nil {
		media.ReleaseAll(a.logger, clips...)
		return nil, fmt.Errorf("assembly cancelled: %w", err)
	}
	prof := opts.Profile

	a.logger.Info().
		Int("clips", len(clips)).
		Str("profile", prof.Name).
		Str("method", string(prof.ConcatMethod)).
		Dur("target", opts.TargetDuration).
		Msg("starting assembly")

	// prepare
	prepared := clips
	if !a.norm.Compatible(ctx, clips) {
		prepared = a.norm.Batch(ctx, clips, "prepared")
	}
	if len(prepared) == 0 {
		return nil, ErrNoClips
	}

	// concatenate
	handles := make([]media.Clip, len(prepared))
	for i, c := range prepared {
		handles[i] = c.Handle()
	}
	working, err := a.concat.Concatenate(ctx, handles, prof.ConcatMethod, prof.BatchSize)
	media.ReleaseAll(a.logger, prepared...)
	if err != nil {
		return nil, fmt.Errorf("concatenate: %w", err)
	}

	stages := []struct {
		name string
		run  func(context.Context, *media.Materialized) (*media.Materialized, error)
	}{
		{"validate", a.validate},
		{"trim", func(ctx context.Context, w *media.Materialized) (*media.Materialized, error) {
			if opts.Audio != nil && opts.Audio.AdaptVideo {
				return w, nil
			}
			return a.trim(ctx, w, opts.TargetDuration), nil
		}},
		{"logo", func(ctx context.Context, w *media.Materialized) (*media.Materialized, error) {
			return a.overlayLogo(ctx, w, opts.Logo), nil
		}},
		{"adapt", func(ctx context.Context, w *media.Materialized) (*media.Materialized, error) {
			return a.adaptToAudio(ctx, w, opts.Audio), nil
		}},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			media.ReleaseAll(a.logger, working)
			return nil, fmt.Errorf("assembly cancelled before %s: %w", stage.name, err)
		}
		next, err := stage.run(ctx, working)
		if err != nil {
			media.ReleaseAll(a.logger, working)
			return nil, fmt.Errorf("%s: %w", stage.name, err)
		}
		if next != working {
			media.ReleaseAll(a.logger, working)
			working = next
		}
		a.logger.Debug().Str("stage", stage.name).Dur("duration", working.Duration).Msg("stage complete")
	}

	body := working.Duration
	working = a.appendTagline(ctx, working, opts.TaglinePath, prof)

	if err := ctx.Err(); err != nil {
		media.ReleaseAll(a.logger, working)
		return nil, fmt.Errorf("assembly cancelled before encode: %w", err)
	}

	res, err := a.encode(ctx, working, opts, body)
	media.ReleaseAll(a.logger, working)
	if err != nil {
		return nil, err
	}
	res.Clips = len(prepared)
	return res, nil
}

// validate checks the working clip still decodes, rewriting it once if not.
func (a *Assembler) validate(ctx context.Context, w *media.Materialized) (*media.Materialized, error) {
	if _, err := a.renderer.FrameAt(ctx, w.Path, 0); err == nil {
		return w, nil
	}
	a.logger.Warn().Str("clip", w.Path).Msg("concatenated clip failed validation, rewriting")
	return a.mat.Materialize(ctx, w.Handle(), "validated")
}

// trim cuts the clip to target. Failure keeps the untrimmed clip.
func (a *Assembler) trim(ctx context.Context, w *media.Materialized, target time.Duration) *media.Materialized {
	if target <= 0 || w.Duration <= target {
		return w
	}
	a.logger.Info().Dur("from", w.Duration).Dur("to", target).Msg("trimming to target duration")
	m, err := a.mat.Materialize(ctx, w.Handle().Trimmed(target), "trimmed")
	if err != nil {
		a.logger.Warn().Err(err).Dur("target", target).Msg("trimming failed, keeping full length")
		return w
	}
	return m
}

// overlayLogo composites the logo. Failure keeps the clip without it.
func (a *Assembler) overlayLogo(ctx context.Context, w *media.Materialized, logo *overlays.Logo) *media.Materialized {
	if logo == nil || logo.Path == "" {
		return w
	}

	out := a.mat.Workspace().NewPath("logo", ".mp4")
	opts := logo.Options(w.Path, out, w.Width)
	settings := a.mat.Settings()
	opts.Preset, opts.CRF, opts.Threads = settings.Preset, settings.CRF, settings.Threads

	if err := a.renderer.OverlayImage(ctx, opts); err != nil {
		a.logger.Warn().Err(err).Str("logo", logo.Path).Msg("logo overlay failed, continuing without logo")
		_ = os.Remove(out)
		return w
	}
	m, err := a.mat.Open(ctx, out)
	if err != nil {
		a.logger.Warn().Err(err).Msg("logo overlay output invalid, continuing without logo")
		_ = os.Remove(out)
		return w
	}
	return m
}

// adaptToAudio loops or trims the clip to the soundtrack length. Failures
// keep the clip unchanged.
func (a *Assembler) adaptToAudio(ctx context.Context, w *media.Materialized, audio *Audio) *media.Materialized {
	if audio == nil || !audio.AdaptVideo || audio.Path == "" {
		return w
	}

	info, err := a.renderer.ProbeAudio(ctx, audio.Path)
	if err != nil {
		a.logger.Warn().Err(err).Str("audio", audio.Path).Msg("cannot read audio length, video left as is")
		return w
	}
	target := info.Duration + audio.Extra
	if target <= 0 || target == w.Duration {
		return w
	}

	clip := w.Handle().Trimmed(target)
	if w.Duration < target {
		clip.Loop = true
	}

	m, err := a.mat.Materialize(ctx, clip, "adapted")
	if err != nil {
		a.logger.Warn().Err(err).Dur("target", target).Msg("adapting to audio failed, video left as is")
		return w
	}
	a.logger.Info().Dur("from", w.Duration).Dur("to", m.Duration).Bool("looped", clip.Loop).Msg("video adapted to audio")
	return m
}

// appendTagline normalizes the closing clip and joins it on. Failures keep
// the clip without the tagline.
func (a *Assembler) appendTagline(ctx context.Context, w *media.Materialized, path string, prof profile.ExecutionProfile) *media.Materialized {
	if path == "" {
		return w
	}

	raw, err := a.mat.Materialize(ctx, media.Clip{Source: path, Label: "tagline"}, "tagline")
	if err != nil {
		a.logger.Warn().Err(err).Str("tagline", path).Msg("tagline unreadable, skipping")
		return w
	}
	tagline, err := a.norm.Normalize(ctx, raw, "tagline_norm")
	if tagline != raw {
		media.ReleaseAll(a.logger, raw)
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("tagline normalization failed, skipping")
		return w
	}

	joined, err := a.concat.JoinAll(ctx, []media.Clip{w.Handle(), tagline.Handle()}, prof.ConcatMethod, prof.BatchSize)
	media.ReleaseAll(a.logger, tagline)
	if err != nil {
		a.logger.Warn().Err(err).Msg("appending tagline failed, skipping")
		return w
	}
	media.ReleaseAll(a.logger, w)
	return joined
}

// encode writes the delivery file. The soundtrack, when it probes with an
// audio stream, is capped to the pre-tagline body length.
func (a *Assembler) encode(ctx context.Context, w *media.Materialized, opts Options, body time.Duration) (*Result, error) {
	prof := opts.Profile
	enc := ffmpeg.EncodeOptions{
		Input:   w.Path,
		Output:  opts.Output,
		FPS:     a.norm.Target().FPS,
		Bitrate: prof.Bitrate,
		Preset:  prof.Preset,
		Threads: prof.Threads,
	}

	if opts.Audio != nil && opts.Audio.Path != "" {
		if _, err := a.renderer.ProbeAudio(ctx, opts.Audio.Path); err != nil {
			a.logger.Warn().Err(err).Str("audio", opts.Audio.Path).Msg("audio track invalid, encoding without audio")
		} else {
			enc.Audio = &ffmpeg.AudioInput{
				Path:    opts.Audio.Path,
				Volume:  opts.Audio.Volume,
				FadeIn:  opts.Audio.FadeIn,
				FadeOut: opts.Audio.FadeOut,
				Length:  body,
			}
		}
	}

	if err := a.renderer.Encode(ctx, enc); err != nil {
		_ = os.Remove(opts.Output)
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	st, err := os.Stat(opts.Output)
	if err != nil || st.Size() < minFinalBytes {
		_ = os.Remove(opts.Output)
		return nil, fmt.Errorf("%w: output missing or undersized: %s", ErrEncodeFailed, opts.Output)
	}

	a.logger.Info().
		Str("output", opts.Output).
		Dur("duration", w.Duration).
		Int64("bytes", st.Size()).
		Bool("audio", enc.Audio != nil).
		Msg("reel encoded")

	return &Result{Path: opts.Output, Duration: w.Duration, HasAudio: enc.Audio != nil}, nil
}
