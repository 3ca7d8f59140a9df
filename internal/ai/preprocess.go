package ai

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// channelNorm maps an 8-bit channel value to model input space.
type channelNorm struct {
	mean  [3]float32
	scale [3]float32
}

func (n channelNorm) apply(ch int, v uint8) float32 {
	return (float32(v) - n.mean[ch]) * n.scale[ch]
}

// resizeRGBA scales img to exactly w x h.
func resizeRGBA(img image.Image, w, h int) *image.RGBA {
	scaled := resize.Resize(uint(w), uint(h), img, resize.Bilinear)
	if rgba, ok := scaled.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(out, out.Bounds(), scaled, scaled.Bounds().Min, draw.Src)
	return out
}

// crop copies r out of img into a zero-origin RGBA.
func crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), img, r.Min, draw.Src)
	return out
}

// toNCHW lays out an RGB image as planar [3,H,W] floats.
func toNCHW(rgba *image.RGBA, norm channelNorm) []float32 {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	data := make([]float32, 3*w*h)
	plane := w * h
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			for ch := 0; ch < 3; ch++ {
				data[ch*plane+y*w+x] = norm.apply(ch, row[i+ch])
			}
		}
	}
	return data
}

// toNHWC lays out an RGB image as interleaved [H,W,3] floats.
func toNHWC(rgba *image.RGBA, norm channelNorm) []float32 {
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	data := make([]float32, 3*w*h)
	idx := 0
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			for ch := 0; ch < 3; ch++ {
				data[idx] = norm.apply(ch, row[i+ch])
				idx++
			}
		}
	}
	return data
}
