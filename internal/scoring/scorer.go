package scoring

import (
	"context"
	"image"

	"github.com/keagan/reelmixer/internal/clips"
	"github.com/rs/zerolog"
)

// Weights for the combined frame score.
type Weights struct {
	Visual float64
	Face   float64
	Motion float64
}

// DefaultWeights returns the standard 0.3/0.4/0.3 blend.
func DefaultWeights() Weights {
	return Weights{Visual: 0.3, Face: 0.4, Motion: 0.3}
}

// FrameInput is one sampled frame and the detection settings for it.
type FrameInput struct {
	Frame     image.Image
	Prev      image.Image // previous sampled frame, nil for the first
	Face      FaceQuery
	Text      TextQuery
	AvoidText bool // apply the text penalty
}

// FrameScore holds every signal for one frame. FaceErr and TextErr carry a
// DetectionUnavailableError when that backend produced nothing.
type FrameScore struct {
	Visual      float64
	Face        float64
	Motion      float64
	TextPenalty float64
	Total       float64
	Faces       []clips.FaceObservation
	HasTarget   bool
	FaceErr     error
	TextErr     error
}

// Combine blends the signals with w and applies the text penalty.
func (s FrameScore) Combine(w Weights) float64 {
	return (s.Visual*w.Visual + s.Face*w.Face + s.Motion*w.Motion) * s.TextPenalty
}

// FrameScorer scores single frames using pluggable detectors.
type FrameScorer struct {
	logger  zerolog.Logger
	faces   FaceBackend
	text    TextBackend
	weights Weights
}

// NewFrameScorer creates a scorer. Either backend may be nil; the matching
// signal is then reported unavailable.
func NewFrameScorer(logger zerolog.Logger, faces FaceBackend, text TextBackend, weights Weights) *FrameScorer {
	return &FrameScorer{
		logger:  logger.With().Str("component", "frame-scorer").Logger(),
		faces:   faces,
		text:    text,
		weights: weights,
	}
}

// FaceBackend exposes the face detector, nil when none is loaded.
func (s *FrameScorer) FaceBackend() FaceBackend {
	return s.faces
}

// TextBackend exposes the text detector, nil when none is loaded.
func (s *FrameScorer) TextBackend() TextBackend {
	return s.text
}

// Score computes all signals for in.Frame. Detector failures zero that
// signal and are reported on the result, never as a returned error.
func (s *FrameScorer) Score(ctx context.Context, in FrameInput) FrameScore {
	result := FrameScore{
		Visual:      MeasureVisual(in.Frame).Score(),
		Motion:      Motion(in.Frame, in.Prev),
		TextPenalty: 1.0,
	}

	faces, err := ObserveFaces(ctx, s.faces, in.Frame, in.Face)
	if err != nil {
		result.FaceErr = err
	} else {
		result.Faces = faces
		result.HasTarget = HasTarget(faces)
		result.Face = FaceScore(faces, in.Face.Target != nil)
	}

	if in.AvoidText {
		likelihood, err := TextLikelihood(ctx, s.text, in.Frame, in.Text)
		if err != nil {
			result.TextErr = err
		} else {
			result.TextPenalty = TextPenalty(likelihood)
		}
	}

	result.Total = result.Combine(s.weights)

	s.logger.Trace().
		Float64("visual", result.Visual).
		Float64("face", result.Face).
		Float64("motion", result.Motion).
		Float64("text_penalty", result.TextPenalty).
		Float64("total", result.Total).
		Int("faces", len(result.Faces)).
		Msg("frame scored")

	return result
}
