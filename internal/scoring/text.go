package scoring

import (
	"context"
	"image"
	"math"
)

const (
	subtitleBandStart    = 0.7
	subtitleBrightness   = 200.0
	subtitleMinRatio     = 0.01
	subtitleScore        = 0.8
	textSaturationCount  = 20.0
	bottomTextMultiplier = 1.5
)

// TextRegion is a detected block of on-screen text.
type TextRegion struct {
	Box        image.Rectangle
	Confidence float64
}

// TextBackend finds text regions in a frame.
type TextBackend interface {
	DetectRegions(ctx context.Context, img image.Image) ([]TextRegion, error)
}

// TextQuery controls text likelihood scoring.
type TextQuery struct {
	MinConfidence  float64
	FocusSubtitles bool
}

// TextLikelihood estimates how much on-screen text a frame carries, in [0,1].
// Bright pixels in the bottom band short-circuit to a subtitle score when
// FocusSubtitles is set.
func TextLikelihood(ctx context.Context, backend TextBackend, img image.Image, q TextQuery) (float64, error) {
	if backend == nil {
		return 0, unavailable("text", ErrNoBackend)
	}

	if q.FocusSubtitles && SubtitleRatio(img) > subtitleMinRatio {
		return subtitleScore, nil
	}

	regions, err := backend.DetectRegions(ctx, img)
	if err != nil {
		return 0, unavailable("text", err)
	}

	bounds := img.Bounds()
	var (
		count  int
		bottom int
		conf   float64
	)
	for _, r := range regions {
		if r.Confidence < q.MinConfidence {
			continue
		}
		count++
		conf += r.Confidence
		centerY := float64((r.Box.Min.Y+r.Box.Max.Y)/2 - bounds.Min.Y)
		if centerY > float64(bounds.Dy())*subtitleBandStart {
			bottom++
		}
	}
	if count == 0 {
		return 0, nil
	}

	score := math.Min(float64(count)/textSaturationCount*(conf/float64(count)), 1)
	if bottom > 2 {
		score = math.Min(score*bottomTextMultiplier, 1)
	}
	return score, nil
}

// SubtitleRatio is the share of near-white pixels in the bottom 30% of img.
func SubtitleRatio(img image.Image) float64 {
	rgba := toRGBA(img)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	start := int(float64(h) * subtitleBandStart)
	if w == 0 || start >= h {
		return 0
	}

	bright := 0
	for y := start; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			lum := 0.299*float64(row[i]) + 0.587*float64(row[i+1]) + 0.114*float64(row[i+2])
			if lum > subtitleBrightness {
				bright++
			}
		}
	}
	return float64(bright) / float64(w*(h-start))
}

// TextPenalty maps a text likelihood to a multiplicative frame penalty.
func TextPenalty(likelihood float64) float64 {
	switch {
	case likelihood >= 0.3:
		return 0.1
	case likelihood >= 0.2:
		return 0.5
	default:
		return 1.0
	}
}

// MergeRegions unions overlapping or nearly touching boxes. Boxes closer
// than gap pixels are joined.
func MergeRegions(boxes []image.Rectangle, gap int) []image.Rectangle {
	merged := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		if !b.Empty() {
			merged = append(merged, b)
		}
	}

	for changed := true; changed; {
		changed = false
		for i := 0; i < len(merged) && !changed; i++ {
			grown := merged[i].Inset(-gap)
			for j := i + 1; j < len(merged); j++ {
				if grown.Overlaps(merged[j]) {
					merged[i] = merged[i].Union(merged[j])
					merged = append(merged[:j], merged[j+1:]...)
					changed = true
					break
				}
			}
		}
	}
	return merged
}
