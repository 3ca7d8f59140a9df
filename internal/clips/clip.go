package clips

import (
	"image"
	"sort"
	"time"
)

// Source is a probed, decodable input video.
type Source struct {
	Path     string
	Index    int
	Duration time.Duration
	FPS      float64
	Width    int
	Height   int
}

// FaceObservation is a face found in one sampled frame.
type FaceObservation struct {
	Box           image.Rectangle
	Embedding     []float32
	IsTarget      bool
	Similarity    float64 // 1 - distance to the target, in [0,1]
	PositionScore float64
	SizeScore     float64
}

// Score is the face's contribution before multi-face and target weighting.
func (f FaceObservation) Score() float64 {
	return f.SizeScore * f.PositionScore
}

// Segment is a fixed window of a source with its aggregate score.
type Segment struct {
	Start         time.Duration
	End           time.Duration
	Score         float64
	HasTargetFace bool
	SourceIndex   int
	Faces         []FaceObservation
}

// Interval is a clip range picked for output.
type Interval struct {
	Start         time.Duration
	End           time.Duration
	Duration      time.Duration
	Score         float64
	HasTargetFace bool
	SourceIndex   int
	Faces         []FaceObservation
}

// Rank sorts segments by descending score. With prioritizeFaces, segments
// holding the target face are moved ahead of the rest, keeping score order
// inside each group.
func Rank(segments []Segment, prioritizeFaces bool) []Segment {
	ranked := make([]Segment, len(segments))
	copy(ranked, segments)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if !prioritizeFaces {
		return ranked
	}

	out := make([]Segment, 0, len(ranked))
	for _, s := range ranked {
		if s.HasTargetFace {
			out = append(out, s)
		}
	}
	for _, s := range ranked {
		if !s.HasTargetFace {
			out = append(out, s)
		}
	}
	return out
}

// MergeAdjacent joins time-ordered neighbours that both score at least
// threshold and are at most maxGap apart. A merged segment keeps the higher
// score and the union of face flags. The result is in time order.
func MergeAdjacent(segments []Segment, threshold float64, maxGap time.Duration) []Segment {
	if len(segments) == 0 {
		return segments
	}

	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	merged := make([]Segment, 0, len(ordered))
	current := ordered[0]

	for _, next := range ordered[1:] {
		gap := next.Start - current.End
		if gap <= maxGap && current.Score >= threshold && next.Score >= threshold {
			if next.End > current.End {
				current.End = next.End
			}
			if next.Score > current.Score {
				current.Score = next.Score
			}
			current.HasTargetFace = current.HasTargetFace || next.HasTargetFace
			faces := make([]FaceObservation, 0, len(current.Faces)+len(next.Faces))
			current.Faces = append(append(faces, current.Faces...), next.Faces...)
			continue
		}
		merged = append(merged, current)
		current = next
	}

	return append(merged, current)
}

// MeanScore returns the average segment score, or 0 for none.
func MeanScore(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segments {
		sum += s.Score
	}
	return sum / float64(len(segments))
}
