package scoring

import "image"

// Motion is ten times the mean absolute RGB difference between two frames.
// It is zero without a previous frame or when the frame sizes differ.
func Motion(cur, prev image.Image) float64 {
	if cur == nil || prev == nil {
		return 0
	}
	a, b := toRGBA(cur), toRGBA(prev)
	if a.Rect.Size() != b.Rect.Size() || a.Rect.Empty() {
		return 0
	}

	w, h := a.Rect.Dx(), a.Rect.Dy()
	var sum uint64
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride:]
		rb := b.Pix[y*b.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			for c := 0; c < 3; c++ {
				sum += uint64(absDiff(ra[i+c], rb[i+c]))
			}
		}
	}
	return float64(sum) / float64(w*h*3) * 10
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
