package selector

import (
	"math/rand"
	"time"

	"github.com/keagan/reelmixer/internal/clips"
	"github.com/rs/zerolog"
)

const (
	DefaultMinDistance   = 5 * time.Second
	DiversityMinDistance = 10 * time.Second
)

// Options bound the clips picked from one source.
type Options struct {
	MinClip   time.Duration
	MaxClip   time.Duration
	Diversity bool
	// MinDistance overrides the spacing between accepted starts when set.
	MinDistance time.Duration
}

func (o Options) minDistance() time.Duration {
	if o.MinDistance > 0 {
		return o.MinDistance
	}
	if o.Diversity {
		return DiversityMinDistance
	}
	return DefaultMinDistance
}

// Selector greedily turns ranked segments into clip intervals.
type Selector struct {
	logger zerolog.Logger
	rng    *rand.Rand
}

// New creates a Selector drawing clip lengths from rng.
func New(logger zerolog.Logger, rng *rand.Rand) *Selector {
	return &Selector{
		logger: logger.With().Str("component", "selector").Logger(),
		rng:    rng,
	}
}

// Select walks segments in rank order and accepts each whose start is at
// least the minimum distance from every accepted start. Clip length is drawn
// uniformly between MinClip and the smaller of MaxClip and the remaining
// source time.
func (s *Selector) Select(segments []clips.Segment, sourceDuration time.Duration, opts Options) []clips.Interval {
	minDist := opts.minDistance()
	var (
		accepted []clips.Interval
		starts   []time.Duration
	)

	for _, seg := range segments {
		if tooClose(seg.Start, starts, minDist) {
			continue
		}

		remaining := sourceDuration - seg.Start
		if remaining < opts.MinClip {
			continue
		}

		upper := opts.MaxClip
		if remaining < upper {
			upper = remaining
		}
		length := opts.MinClip
		if upper > opts.MinClip {
			length += time.Duration(s.rng.Float64() * float64(upper-opts.MinClip))
		}

		end := seg.Start + length
		if end > sourceDuration {
			end = sourceDuration
		}
		if end-seg.Start < opts.MinClip {
			continue
		}

		accepted = append(accepted, clips.Interval{
			Start:         seg.Start,
			End:           end,
			Duration:      end - seg.Start,
			Score:         seg.Score,
			HasTargetFace: seg.HasTargetFace,
			SourceIndex:   seg.SourceIndex,
			Faces:         seg.Faces,
		})
		starts = append(starts, seg.Start)
	}

	s.logger.Debug().
		Int("segments", len(segments)).
		Int("selected", len(accepted)).
		Dur("min_distance", minDist).
		Msg("clip selection complete")

	return accepted
}

func tooClose(start time.Duration, accepted []time.Duration, minDist time.Duration) bool {
	for _, a := range accepted {
		d := start - a
		if d < 0 {
			d = -d
		}
		if d < minDist {
			return true
		}
	}
	return false
}

// Truncate keeps at most n intervals; n <= 0 keeps all.
func Truncate(intervals []clips.Interval, n int) []clips.Interval {
	if n <= 0 || len(intervals) <= n {
		return intervals
	}
	return intervals[:n]
}

// FilterTargetFace keeps only intervals containing the target face.
func FilterTargetFace(intervals []clips.Interval) []clips.Interval {
	out := make([]clips.Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.HasTargetFace {
			out = append(out, iv)
		}
	}
	return out
}
