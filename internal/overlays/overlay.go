package overlays

import (
	"fmt"
	"image"

	"github.com/keagan/reelmixer/internal/ffmpeg"
)

// Anchor selects where a logo sits on the frame.
type Anchor string

const (
	TopLeft   Anchor = "top-left"
	TopRight  Anchor = "top-right"
	TopCenter Anchor = "top-center"
)

// ParseAnchor validates a placement name.
func ParseAnchor(s string) (Anchor, error) {
	switch a := Anchor(s); a {
	case TopLeft, TopRight, TopCenter:
		return a, nil
	case "":
		return TopRight, nil
	default:
		return "", fmt.Errorf("unknown logo position %q", s)
	}
}

// Logo is a still image composited over the whole reel.
type Logo struct {
	Path        string
	Anchor      Anchor
	SizePercent float64 // logo width as a share of frame width
	Opacity     float64
	Margin      int // horizontal inset from the frame edge
	Vertical    int // offset from the top edge
}

// Width returns the logo width in pixels for a frame frameW wide.
func (l Logo) Width(frameW int) int {
	w := int(float64(frameW) * l.SizePercent / 100)
	if w < 2 {
		w = 2
	}
	return w &^ 1
}

// Position returns the top-left corner of the logo.
func (l Logo) Position(frameW int) image.Point {
	w := l.Width(frameW)
	switch l.Anchor {
	case TopLeft:
		return image.Pt(l.Margin, l.Vertical)
	case TopCenter:
		return image.Pt((frameW-w)/2, l.Vertical)
	default:
		return image.Pt(frameW-w-l.Margin, l.Vertical)
	}
}

// Options builds the overlay render request for input.
func (l Logo) Options(input, output string, frameW int) ffmpeg.OverlayOptions {
	pos := l.Position(frameW)
	return ffmpeg.OverlayOptions{
		Input:   input,
		Image:   l.Path,
		Output:  output,
		X:       pos.X,
		Y:       pos.Y,
		Width:   l.Width(frameW),
		Opacity: l.Opacity,
	}
}
