package pipeline

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keagan/reelmixer/internal/clips"
	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/keagan/reelmixer/internal/media"
	"github.com/keagan/reelmixer/internal/scoring"
)

const (
	maxInputBytes = 500 << 20
	probeOffset   = 100 * time.Millisecond
)

var supportedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
	".mkv":  true,
}

// ingest checks every input, converting those that do not decode cleanly.
// Inputs that still fail are returned as skipped.
func (p *Pipeline) ingest(ctx context.Context, ws media.Workspace, paths []string, threads int) ([]clips.Source, []*InputError, error) {
	var (
		sources []clips.Source
		skipped []*InputError
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("ingest cancelled: %w", err)
		}

		src, err := p.ingestOne(ctx, ws, path, threads)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, fmt.Errorf("ingest cancelled: %w", ctx.Err())
			}
			ie := &InputError{Path: path, Err: err}
			p.logger.Warn().Err(err).Str("input", path).Msg("skipping input")
			skipped = append(skipped, ie)
			continue
		}
		src.Index = len(sources)
		sources = append(sources, src)
	}

	if len(sources) == 0 {
		return nil, skipped, ErrNoUsableInputs
	}
	return sources, skipped, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, ws media.Workspace, path string, threads int) (clips.Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return clips.Source{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	st, err := os.Stat(path)
	if err != nil {
		return clips.Source{}, err
	}
	if st.Size() > maxInputBytes {
		return clips.Source{}, fmt.Errorf("%w: %d MB", ErrFileTooLarge, st.Size()>>20)
	}

	src, err := p.inspect(ctx, path)
	if err == nil {
		return src, nil
	}
	p.logger.Info().Err(err).Str("input", path).Msg("input failed validation, converting")

	converted := ws.NewPath("converted", ".mp4")
	if err := p.media.Transcode(ctx, ffmpeg.TranscodeOptions{
		Input:      path,
		Output:     converted,
		VideoCodec: ffmpeg.DefaultVideoCodec,
		Preset:     ffmpeg.DefaultPreset,
		CRF:        ffmpeg.DefaultCRF,
		KeepAudio:  true,
		AudioCodec: ffmpeg.DefaultAudioCodec,
		FastStart:  true,
		Threads:    threads,
	}); err != nil {
		_ = os.Remove(converted)
		return clips.Source{}, fmt.Errorf("convert: %w", err)
	}

	src, err = p.inspect(ctx, converted)
	if err != nil {
		return clips.Source{}, fmt.Errorf("converted file unusable: %w", err)
	}
	return src, nil
}

// inspect probes path and reads a frame just after the start.
func (p *Pipeline) inspect(ctx context.Context, path string) (clips.Source, error) {
	info, err := p.media.ProbeVideo(ctx, path)
	if err != nil {
		return clips.Source{}, err
	}
	if info.Duration <= 0 || info.Width == 0 || info.Height == 0 {
		return clips.Source{}, fmt.Errorf("%w: %s", media.ErrInvalidDuration, path)
	}
	if _, err := p.media.FrameAt(ctx, path, probeOffset); err != nil {
		return clips.Source{}, fmt.Errorf("%w: %v", media.ErrFrameProbe, err)
	}
	return clips.Source{
		Path:     path,
		Duration: info.Duration,
		FPS:      info.FPS,
		Width:    info.Width,
		Height:   info.Height,
	}, nil
}

// referenceEmbedding embeds the largest face in the reference image. Any
// failure leaves the run without a target identity.
func (p *Pipeline) referenceEmbedding(ctx context.Context, path, model string, upsample int) []float32 {
	if path == "" {
		return nil
	}

	img, err := decodeImage(path)
	if err != nil {
		p.logger.Warn().Err(&InputError{Path: path, Err: err}).Msg("reference image unreadable, continuing without target face")
		return nil
	}

	emb, err := scoring.ReferenceEmbedding(ctx, p.faces, img, model, upsample)
	switch {
	case err == nil:
		p.logger.Info().Str("reference", path).Int("dims", len(emb)).Msg("target face loaded")
		return emb
	case scoring.IsUnavailable(err):
		p.logger.Warn().Err(err).Msg("face backend unavailable, continuing without target face")
	default:
		p.logger.Warn().Err(&InputError{Path: path, Err: ErrNoReferenceFace}).Msg("continuing without target face")
	}
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
