package scoring

import (
	"context"
	"fmt"
	"image"

	"github.com/keagan/reelmixer/internal/clips"
)

const (
	targetFaceMultiplier = 3.0
	multiFaceMultiplier  = 1.2
	untargetedFaceWeight = 200.0
)

// FaceBackend locates faces and produces identity embeddings.
type FaceBackend interface {
	Locate(ctx context.Context, img image.Image, model string, upsample int) ([]image.Rectangle, error)
	Embed(ctx context.Context, img image.Image, box image.Rectangle) ([]float32, error)
	Distance(a, b []float32) float64
}

// FaceQuery describes what to look for in a frame.
type FaceQuery struct {
	Target    []float32 // reference embedding, nil when no identity is known
	Threshold float64   // distances below this match the target
	Model     string
	Upsample  int
}

// ObserveFaces locates faces in img and, when a target is set, compares
// each against it. Backend failures come back as DetectionUnavailableError.
func ObserveFaces(ctx context.Context, backend FaceBackend, img image.Image, q FaceQuery) ([]clips.FaceObservation, error) {
	if backend == nil {
		return nil, unavailable("face", ErrNoBackend)
	}

	boxes, err := backend.Locate(ctx, img, q.Model, q.Upsample)
	if err != nil {
		return nil, unavailable("face", err)
	}

	bounds := img.Bounds()
	frameArea := float64(bounds.Dx() * bounds.Dy())
	observations := make([]clips.FaceObservation, 0, len(boxes))

	for _, box := range boxes {
		obs := clips.FaceObservation{
			Box:           box,
			SizeScore:     float64(box.Dx()*box.Dy()) / frameArea * 1000,
			PositionScore: positionScore(box, bounds),
		}

		if q.Target != nil {
			emb, err := backend.Embed(ctx, img, box)
			if err != nil {
				return nil, unavailable("face", fmt.Errorf("embed face: %w", err))
			}
			dist := backend.Distance(emb, q.Target)
			obs.Embedding = emb
			obs.IsTarget = dist < q.Threshold
			obs.Similarity = clamp01(1 - dist)
		}

		observations = append(observations, obs)
	}

	return observations, nil
}

// FaceScore sums per-face scores, tripling target matches, then applies a
// single 1.2 boost when more than one face is present. Without a target
// identity the score is a flat 200 per face.
func FaceScore(faces []clips.FaceObservation, withTarget bool) float64 {
	if !withTarget {
		return float64(len(faces)) * untargetedFaceWeight
	}

	var total float64
	for _, f := range faces {
		s := f.Score()
		if f.IsTarget {
			s *= targetFaceMultiplier
		}
		total += s
	}
	if len(faces) > 1 {
		total *= multiFaceMultiplier
	}
	return total
}

// HasTarget reports whether any face matched the target identity.
func HasTarget(faces []clips.FaceObservation) bool {
	for _, f := range faces {
		if f.IsTarget {
			return true
		}
	}
	return false
}

// ReferenceEmbedding embeds the largest face in img.
func ReferenceEmbedding(ctx context.Context, backend FaceBackend, img image.Image, model string, upsample int) ([]float32, error) {
	if backend == nil {
		return nil, unavailable("face", ErrNoBackend)
	}
	boxes, err := backend.Locate(ctx, img, model, upsample)
	if err != nil {
		return nil, unavailable("face", err)
	}
	largest, ok := LargestBox(boxes)
	if !ok {
		return nil, ErrNoFace
	}
	emb, err := backend.Embed(ctx, img, largest)
	if err != nil {
		return nil, unavailable("face", fmt.Errorf("embed reference: %w", err))
	}
	return emb, nil
}

// LargestBox returns the box with the greatest area.
func LargestBox(boxes []image.Rectangle) (image.Rectangle, bool) {
	if len(boxes) == 0 {
		return image.Rectangle{}, false
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Dx()*b.Dy() > best.Dx()*best.Dy() {
			best = b
		}
	}
	return best, true
}

// positionScore favours faces in the upper half of the frame.
func positionScore(box, frame image.Rectangle) float64 {
	if frame.Dy() == 0 {
		return 1
	}
	centerY := float64((box.Min.Y+box.Max.Y)/2-frame.Min.Y) / float64(frame.Dy())
	switch {
	case centerY > 2.0/3.0:
		return 0.3
	case centerY > 0.5:
		return 0.7
	default:
		return 1.0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
