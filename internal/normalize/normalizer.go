package normalize

import (
	"context"
	"fmt"
	"math"

	"github.com/keagan/reelmixer/internal/media"
	"github.com/rs/zerolog"
)

// Normalizer brings materialized clips to the target frame format.
type Normalizer struct {
	logger zerolog.Logger
	mat    *media.Materializer
	target Target
}

// New creates a Normalizer for target.
func New(logger zerolog.Logger, mat *media.Materializer, target Target) *Normalizer {
	return &Normalizer{
		logger: logger.With().Str("component", "normalizer").Logger(),
		mat:    mat,
		target: target,
	}
}

// Target returns the output format.
func (n *Normalizer) Target() Target {
	return n.target
}

// Normalize returns clip in the target format. A clip that already matches
// is returned as is; otherwise a new clip is materialized and the caller
// keeps ownership of the input.
func (n *Normalizer) Normalize(ctx context.Context, clip *media.Materialized, name string) (*media.Materialized, error) {
	plan := PlanFor(Request{Size: clip.Size(), FPS: clip.FPS}, n.target)
	if plan.Empty() {
		return clip, nil
	}

	n.logger.Debug().
		Str("clip", clip.Path).
		Int("width", clip.Width).
		Int("height", clip.Height).
		Float64("fps", clip.FPS).
		Bool("crop", !plan.Crop.Empty()).
		Bool("fps_change", plan.FPS).
		Msg("normalizing clip")

	out, err := n.mat.Materialize(ctx, clip.Handle().WithFilters(plan.Filters...), name)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", clip.Path, err)
	}
	return out, nil
}

// Batch normalizes every clip and takes ownership of the inputs. Clips that
// fail, or whose result does not decode a first frame, are released and
// dropped with a warning.
func (n *Normalizer) Batch(ctx context.Context, clips []*media.Materialized, prefix string) []*media.Materialized {
	out := make([]*media.Materialized, 0, len(clips))
	for i, clip := range clips {
		if ctx.Err() != nil {
			media.ReleaseAll(n.logger, clips[i:]...)
			break
		}

		norm, err := n.Normalize(ctx, clip, fmt.Sprintf("%s_%02d", prefix, i))
		if err != nil {
			n.logger.Warn().Err(err).Int("clip", i).Msg("dropping clip that failed normalization")
			media.ReleaseAll(n.logger, clip)
			continue
		}
		if norm != clip {
			media.ReleaseAll(n.logger, clip)
		}

		if _, err := n.mat.Media().FrameAt(ctx, norm.Path, 0); err != nil {
			n.logger.Warn().Err(err).Int("clip", i).Msg("dropping normalized clip without a readable first frame")
			media.ReleaseAll(n.logger, norm)
			continue
		}
		out = append(out, norm)
	}

	n.logger.Info().Int("input", len(clips)).Int("output", len(out)).Msg("batch normalization complete")
	return out
}

// Compatible reports whether clips can skip normalization: each must already
// be at the target size, within one frame per second of the target rate and
// decode a first frame.
func (n *Normalizer) Compatible(ctx context.Context, clips []*media.Materialized) bool {
	for _, c := range clips {
		if c.Width != n.target.Width || c.Height != n.target.Height {
			return false
		}
		if math.Abs(c.FPS-n.target.FPS) > 1 {
			return false
		}
		if _, err := n.mat.Media().FrameAt(ctx, c.Path, 0); err != nil {
			n.logger.Debug().Err(err).Str("clip", c.Path).Msg("compatibility probe failed")
			return false
		}
	}
	return true
}
