package ffmpeg

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// Scale adds a scale filter
func (fb *FilterBuilder) Scale(width, height int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		// skip and keep chaining
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("scale=%d:%d", width, height))
	return fb
}

// FPS adds an fps filter. The filter resamples to the new rate by dropping
// or duplicating frames, so the clip's wall-clock duration is unchanged.
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("fps=%f", fps))
	return fb
}

// Crop adds a crop filter
func (fb *FilterBuilder) Crop(width, height, x, y int) *FilterBuilder {
	if width <= 0 || height <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("crop=%d:%d:%d:%d", width, height, x, y))
	return fb
}

// CropRect adds a crop filter for r.
func (fb *FilterBuilder) CropRect(r image.Rectangle) *FilterBuilder {
	return fb.Crop(r.Dx(), r.Dy(), r.Min.X, r.Min.Y)
}

// SquarePixels resets the sample aspect ratio to 1:1.
func (fb *FilterBuilder) SquarePixels() *FilterBuilder {
	fb.filters = append(fb.filters, "setsar=1")
	return fb
}

// Delogo masks r by interpolating from its border pixels. The rectangle must
// lie strictly inside a frame of the given size, so it is shrunk to fit.
func (fb *FilterBuilder) Delogo(r image.Rectangle, frameW, frameH int) *FilterBuilder {
	inner := image.Rect(1, 1, frameW-1, frameH-1)
	r = r.Intersect(inner)
	if r.Dx() < 2 || r.Dy() < 2 {
		return fb
	}
	fb.filters = append(fb.filters,
		fmt.Sprintf("delogo=x=%d:y=%d:w=%d:h=%d", r.Min.X, r.Min.Y, r.Dx(), r.Dy()))
	return fb
}

// AudioTrim keeps the first d of the audio stream.
func (fb *FilterBuilder) AudioTrim(d time.Duration) *FilterBuilder {
	if d <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("atrim=0:%.3f", d.Seconds()), "asetpts=PTS-STARTPTS")
	return fb
}

// AudioVolume scales audio by a linear factor
func (fb *FilterBuilder) AudioVolume(factor float64) *FilterBuilder {
	if factor < 0 || factor == 1 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf("volume=%.2f", factor))
	return fb
}

// AudioFade adds fade in at the start and fade out ending at total.
func (fb *FilterBuilder) AudioFade(in, out, total time.Duration) *FilterBuilder {
	if in > 0 {
		fb.filters = append(fb.filters, fmt.Sprintf("afade=t=in:st=0:d=%.3f", in.Seconds()))
	}
	if out > 0 && total > out {
		fb.filters = append(fb.filters,
			fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", (total - out).Seconds(), out.Seconds()))
	}
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	if filter != "" {
		fb.filters = append(fb.filters, filter)
	}
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}

// BuildAll returns all filters as a slice
func (fb *FilterBuilder) BuildAll() []string {
	return fb.filters
}
