package scoring

import (
	"image"
	"image/draw"
	"math"
)

// toRGBA returns img as a zero-origin *image.RGBA, converting when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// plane is a single-channel float image.
type plane struct {
	w, h int
	pix  []float64
}

func (p *plane) at(x, y int) float64 {
	return p.pix[y*p.w+x]
}

// grayPlane converts to luminance with BT.601 weights on a 0-255 scale.
func grayPlane(rgba *image.RGBA) *plane {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	p := &plane{w: w, h: h, pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			r, g, b := float64(row[i]), float64(row[i+1]), float64(row[i+2])
			p.pix[y*w+x] = 0.299*r + 0.587*g + 0.114*b
		}
	}
	return p
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std /= float64(len(values))
	return mean, math.Sqrt(std)
}
