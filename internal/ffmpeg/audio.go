package ffmpeg

import "time"

// AudioInput is a soundtrack muxed in by Encode.
type AudioInput struct {
	Path    string
	Volume  float64
	FadeIn  time.Duration
	FadeOut time.Duration
	// Length caps the track; zero keeps it whole. Fades are placed
	// relative to this length.
	Length time.Duration
}

func (a *AudioInput) filter() string {
	fb := NewFilterBuilder()
	fb.AudioTrim(a.Length)
	if a.Volume > 0 {
		fb.AudioVolume(a.Volume)
	}
	fb.AudioFade(a.FadeIn, a.FadeOut, a.Length)
	return fb.Build()
}
