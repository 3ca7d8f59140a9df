package analyzer

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/keagan/reelmixer/internal/clips"
	"github.com/keagan/reelmixer/internal/scoring"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
)

const (
	targetFaceBoost = 2.0
	defaultMergeGap = 2 * time.Second
)

// FrameSource decodes single frames from a video.
type FrameSource interface {
	FrameAt(ctx context.Context, path string, at time.Duration) (image.Image, error)
}

// Scorer scores one sampled frame.
type Scorer interface {
	Score(ctx context.Context, in scoring.FrameInput) scoring.FrameScore
}

// Config controls one analysis run.
type Config struct {
	Preset       Preset
	MinClip      time.Duration
	ExcludeFirst time.Duration
	FrameWidth   int // frames wider than this are downscaled before scoring

	Target        []float32
	FaceThreshold float64

	AvoidText      bool
	TextAvailable  bool
	TextRemoval    bool // a removal method handles text downstream instead
	TextConfidence float64

	MergeAdjacent bool
	MergeGap      time.Duration
}

// textAvoidance reports whether the text penalty should apply while scoring.
func (c Config) textAvoidance() bool {
	return c.AvoidText && c.TextAvailable && !c.TextRemoval && c.Preset.Mode != ModeFast
}

// Analyzer samples a source over time and ranks its segments.
type Analyzer struct {
	logger zerolog.Logger
	frames FrameSource
	scorer Scorer
}

// New creates an Analyzer.
func New(logger zerolog.Logger, frames FrameSource, scorer Scorer) *Analyzer {
	return &Analyzer{
		logger: logger.With().Str("component", "analyzer").Logger(),
		frames: frames,
		scorer: scorer,
	}
}

// Analyze scores fixed segments of src and returns them ranked. A source
// shorter than the minimum clip length yields no segments and no error.
// Cancellation is checked before each segment.
func (a *Analyzer) Analyze(ctx context.Context, src clips.Source, cfg Config) ([]clips.Segment, error) {
	log := a.logger.With().Str("video", src.Path).Str("mode", string(cfg.Preset.Mode)).Logger()

	if src.Duration < cfg.MinClip {
		log.Info().Dur("duration", src.Duration).Msg("video shorter than minimum clip, skipping analysis")
		return nil, nil
	}

	count := cfg.Preset.SegmentCount(src.Duration, cfg.ExcludeFirst, cfg.MinClip)
	log.Info().
		Dur("duration", src.Duration).
		Int("segments", count).
		Int("frames_per_segment", cfg.Preset.FramesPerSegment).
		Msg("starting segment analysis")

	run := &segmentRun{
		analyzer:  a,
		cfg:       cfg,
		src:       src,
		log:       log,
		avoidText: cfg.textAvoidance(),
	}

	segments := make([]clips.Segment, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis cancelled at segment %d: %w", i, err)
		}

		start := cfg.ExcludeFirst + time.Duration(i)*cfg.Preset.SegmentDuration
		if start+cfg.MinClip > src.Duration {
			break
		}

		seg, ok := run.score(ctx, start)
		if !ok {
			continue
		}
		segments = append(segments, seg)
	}

	if cfg.MergeAdjacent && len(segments) > 1 {
		gap := cfg.MergeGap
		if gap <= 0 {
			gap = defaultMergeGap
		}
		before := len(segments)
		segments = clips.MergeAdjacent(segments, clips.MeanScore(segments), gap)
		log.Debug().Int("before", before).Int("after", len(segments)).Msg("merged adjacent segments")
	}

	ranked := clips.Rank(segments, cfg.Target != nil)

	faceSegments := 0
	for _, s := range ranked {
		if s.HasTargetFace {
			faceSegments++
		}
	}
	log.Info().
		Int("segments", len(ranked)).
		Int("target_face_segments", faceSegments).
		Msg("segment analysis complete")

	return ranked, nil
}

// segmentRun carries per-video state across segments.
type segmentRun struct {
	analyzer   *Analyzer
	cfg        Config
	src        clips.Source
	log        zerolog.Logger
	avoidText  bool
	prev       image.Image
	warnedFace bool
	warnedText bool
}

func (r *segmentRun) score(ctx context.Context, start time.Duration) (clips.Segment, bool) {
	preset := r.cfg.Preset
	frames := preset.FramesPerSegment
	if frames < 1 {
		frames = 1
	}
	step := preset.SegmentDuration / time.Duration(frames)

	var (
		total   float64
		scored  int
		matched bool
		faces   []clips.FaceObservation
	)

	for j := 0; j < frames; j++ {
		at := start + time.Duration(j)*step
		frame, err := r.analyzer.frames.FrameAt(ctx, r.src.Path, at)
		if err != nil {
			r.log.Debug().Err(err).Dur("at", at).Msg("frame read failed")
			continue
		}
		frame = downscale(frame, r.cfg.FrameWidth)

		res := r.analyzer.scorer.Score(ctx, scoring.FrameInput{
			Frame: frame,
			Prev:  r.prev,
			Face: scoring.FaceQuery{
				Target:    r.cfg.Target,
				Threshold: r.cfg.FaceThreshold,
				Model:     preset.FaceModel,
				Upsample:  preset.Upsample,
			},
			Text: scoring.TextQuery{
				MinConfidence:  r.cfg.TextConfidence,
				FocusSubtitles: true,
			},
			AvoidText: r.avoidText,
		})
		r.prev = frame
		r.noteUnavailable(res)

		total += res.Total
		scored++
		matched = matched || res.HasTarget
		faces = append(faces, res.Faces...)
	}

	if scored == 0 {
		r.log.Warn().Dur("start", start).Msg("no frames could be read for segment, skipping")
		return clips.Segment{}, false
	}

	score := total / float64(scored)
	if matched {
		score *= targetFaceBoost
	}

	r.log.Debug().
		Dur("start", start).
		Float64("score", score).
		Bool("target_face", matched).
		Int("faces", len(faces)).
		Msg("segment scored")

	return clips.Segment{
		Start:         start,
		End:           start + preset.SegmentDuration,
		Score:         score,
		HasTargetFace: matched,
		SourceIndex:   r.src.Index,
		Faces:         faces,
	}, true
}

func (r *segmentRun) noteUnavailable(res scoring.FrameScore) {
	if res.FaceErr != nil && !r.warnedFace {
		r.log.Warn().Err(res.FaceErr).Msg("face scoring disabled for this video")
		r.warnedFace = true
	}
	if res.TextErr != nil && !r.warnedText {
		r.log.Warn().Err(res.TextErr).Msg("text penalty disabled for this video")
		r.warnedText = true
	}
}

func downscale(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() <= width {
		return img
	}
	return resize.Resize(uint(width), 0, img, resize.Bilinear)
}
