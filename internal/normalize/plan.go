package normalize

import (
	"image"
	"math"

	"github.com/keagan/reelmixer/internal/ffmpeg"
)

const (
	aspectTolerance = 0.1
	fpsTolerance    = 0.01
	inpaintPadding  = 5
)

// Target is the output frame format.
type Target struct {
	Width  int
	Height int
	FPS    float64
}

// DefaultTarget is 1080x1920 at 30 fps.
func DefaultTarget() Target {
	return Target{Width: 1080, Height: 1920, FPS: 30}
}

// Aspect returns width/height.
func (t Target) Aspect() float64 {
	return float64(t.Width) / float64(t.Height)
}

// Size returns the frame size.
func (t Target) Size() image.Point {
	return image.Pt(t.Width, t.Height)
}

// Request describes a source frame and optional content hints.
type Request struct {
	Size image.Point
	FPS  float64
	// Faces steer the crop window; coordinates are in source pixels.
	Faces []image.Rectangle
	// TextCrop, when non-empty, is cut out first to drop on-screen text.
	TextCrop image.Rectangle
	// Inpaint regions are masked before any cropping.
	Inpaint []image.Rectangle
}

// Plan is the filter chain that brings a source to the target format.
type Plan struct {
	Crop    image.Rectangle // zero when no aspect crop is needed
	Scale   bool
	FPS     bool
	Filters []string
}

// Empty reports whether the source already matches the target.
func (p Plan) Empty() bool {
	return len(p.Filters) == 0
}

// PlanFor computes the filters for req. Sources already at the target size
// need nothing; a near-matching aspect is resized directly; anything else is
// cropped to the target aspect first.
func PlanFor(req Request, target Target) Plan {
	var plan Plan
	fb := ffmpeg.NewFilterBuilder()

	size := req.Size
	faces := req.Faces

	for _, r := range req.Inpaint {
		fb.Delogo(r.Inset(-inpaintPadding), size.X, size.Y)
	}

	if !req.TextCrop.Empty() {
		crop := evenRect(req.TextCrop.Intersect(image.Rectangle{Max: size}))
		if !crop.Empty() && crop.Size() != size {
			fb.CropRect(crop)
			faces = shiftFaces(faces, crop)
			size = crop.Size()
		}
	}

	if size != target.Size() {
		srcAspect := float64(size.X) / float64(size.Y)
		if math.Abs(srcAspect-target.Aspect()) >= aspectTolerance {
			plan.Crop = SmartCrop(size, target.Aspect(), faces)
			fb.CropRect(plan.Crop)
		}
		fb.Scale(target.Width, target.Height)
		fb.SquarePixels()
		plan.Scale = true
	}

	if target.FPS > 0 && math.Abs(req.FPS-target.FPS) > fpsTolerance {
		fb.FPS(target.FPS)
		plan.FPS = true
	}

	plan.Filters = fb.BuildAll()
	return plan
}

// SmartCrop returns the largest window of the given aspect inside a frame
// of size, positioned to keep faces in view. Without faces it is centred.
func SmartCrop(size image.Point, aspect float64, faces []image.Rectangle) image.Rectangle {
	w, h := size.X, size.Y
	srcAspect := float64(w) / float64(h)

	if srcAspect > aspect {
		cw := even(int(math.Round(float64(h) * aspect)))
		x := (w - cw) / 2
		if len(faces) > 0 {
			var sum float64
			for _, f := range faces {
				sum += float64(f.Min.X+f.Max.X) / 2
			}
			x = int(sum/float64(len(faces))) - cw/2
		}
		x = clampInt(x, 0, w-cw)
		return image.Rect(x, 0, x+cw, h)
	}

	ch := even(int(math.Round(float64(w) / aspect)))
	y := (h - ch) / 2
	if len(faces) > 0 {
		top, bottom := faces[0].Min.Y, faces[0].Max.Y
		for _, f := range faces[1:] {
			top = min(top, f.Min.Y)
			bottom = max(bottom, f.Max.Y)
		}
		if float64(bottom-top) > 0.8*float64(ch) {
			y = top - int(0.1*float64(ch))
		} else {
			y = (top+bottom)/2 - ch/2
		}
	}
	y = clampInt(y, 0, h-ch)
	return image.Rect(0, y, w, y+ch)
}

// TextCropRect picks the part of a frame to keep when cutting text away.
// Text low in the frame keeps everything above it; text high in the frame
// keeps everything below it. The kept band is then narrowed to a centred
// 9:16 window. It returns false when too little of the frame would remain.
func TextCropRect(size image.Point, regions []image.Rectangle) (image.Rectangle, bool) {
	if len(regions) == 0 || size.X == 0 || size.Y == 0 {
		return image.Rectangle{}, false
	}
	h := float64(size.Y)

	highestTop := regions[0].Min.Y
	lowestBottom := regions[0].Max.Y
	bottomText, topText := false, false
	for _, r := range regions {
		highestTop = min(highestTop, r.Min.Y)
		lowestBottom = max(lowestBottom, r.Max.Y)
		cy := float64(r.Min.Y+r.Max.Y) / 2
		switch {
		case cy > 0.7*h:
			bottomText = true
		case cy < 0.3*h:
			topText = true
		}
	}

	var y0, y1 int
	switch {
	case bottomText:
		y0, y1 = 0, int(0.9*float64(highestTop))
	case topText:
		y0, y1 = int(1.1*float64(lowestBottom)), size.Y
	default:
		y0, y1 = 0, highestTop
	}
	y0 = clampInt(y0, 0, size.Y)
	y1 = clampInt(y1, 0, size.Y)
	if float64(y1-y0) < 0.25*h {
		return image.Rectangle{}, false
	}

	kh := y1 - y0
	kw := min(int(float64(kh)*9/16), size.X)
	x := (size.X - kw) / 2
	return evenRect(image.Rect(x, y0, x+kw, y1)), true
}

func shiftFaces(faces []image.Rectangle, crop image.Rectangle) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(faces))
	for _, f := range faces {
		shifted := f.Intersect(crop).Sub(crop.Min)
		if !shifted.Empty() {
			out = append(out, shifted)
		}
	}
	return out
}

func evenRect(r image.Rectangle) image.Rectangle {
	r.Max.X = r.Min.X + even(r.Dx())
	r.Max.Y = r.Min.Y + even(r.Dy())
	return r
}

func even(n int) int {
	return n &^ 1
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
