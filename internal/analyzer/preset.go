package analyzer

import (
	"fmt"
	"time"
)

// Mode names an analysis preset.
type Mode string

const (
	ModeFast        Mode = "fast"
	ModePrecise     Mode = "precise"
	ModeVeryPrecise Mode = "very-precise"
)

// Preset controls how densely a source is sampled.
type Preset struct {
	Mode             Mode
	SegmentDuration  time.Duration
	FramesPerSegment int
	MaxSegments      int
	FaceModel        string
	Upsample         int
}

var presets = map[Mode]Preset{
	ModeFast: {
		Mode:             ModeFast,
		SegmentDuration:  3 * time.Second,
		FramesPerSegment: 1,
		MaxSegments:      30,
		FaceModel:        "default",
		Upsample:         0,
	},
	ModePrecise: {
		Mode:             ModePrecise,
		SegmentDuration:  1500 * time.Millisecond,
		FramesPerSegment: 2,
		MaxSegments:      60,
		FaceModel:        "default",
		Upsample:         1,
	},
	ModeVeryPrecise: {
		Mode:             ModeVeryPrecise,
		SegmentDuration:  time.Second,
		FramesPerSegment: 3,
		MaxSegments:      100,
		FaceModel:        "default",
		Upsample:         1,
	},
}

// PresetFor returns the preset for mode.
func PresetFor(mode Mode) (Preset, error) {
	p, ok := presets[mode]
	if !ok {
		return Preset{}, fmt.Errorf("unknown analysis mode %q", mode)
	}
	return p, nil
}

// SegmentCount is the number of segments examined for a source of the given
// duration.
func (p Preset) SegmentCount(duration, excludeFirst, minClip time.Duration) int {
	if p.SegmentDuration <= 0 {
		return 0
	}
	available := duration - excludeFirst - minClip
	if available <= 0 {
		return 0
	}
	n := int(available / p.SegmentDuration)
	if n > p.MaxSegments {
		n = p.MaxSegments
	}
	return n
}
