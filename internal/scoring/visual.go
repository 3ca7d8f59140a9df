package scoring

import (
	"image"
	"math"
)

const (
	hueBins           = 180
	edgeLowThreshold  = 50.0
	edgeHighThreshold = 150.0
)

// VisualFeatures are the raw measurements behind the visual interest score.
type VisualFeatures struct {
	HueStd       float64 // std of the 180-bin hue histogram counts
	LuminanceStd float64
	EdgeDensity  float64 // fraction of edge pixels
	Sharpness    float64 // variance of the Laplacian
}

// Score combines the features into the visual interest term.
func (f VisualFeatures) Score() float64 {
	return f.HueStd*0.2 + f.LuminanceStd*0.2 + f.EdgeDensity*10000*0.3 + f.Sharpness*0.3
}

// MeasureVisual computes colour variety, contrast, edge density and sharpness.
func MeasureVisual(img image.Image) VisualFeatures {
	rgba := toRGBA(img)
	if rgba.Rect.Empty() {
		return VisualFeatures{}
	}
	gray := grayPlane(rgba)
	_, lumStd := meanStd(gray.pix)

	return VisualFeatures{
		HueStd:       hueHistogramStd(rgba),
		LuminanceStd: lumStd,
		EdgeDensity:  edgeDensity(gray),
		Sharpness:    laplacianVariance(gray),
	}
}

// hueHistogramStd bins hue on the 0-179 half-degree scale and returns the
// population standard deviation of the bin counts.
func hueHistogramStd(rgba *image.RGBA) float64 {
	var bins [hueBins]float64
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			bins[hue(row[i], row[i+1], row[i+2])]++
		}
	}
	_, std := meanStd(bins[:])
	return std
}

func hue(r8, g8, b8 uint8) int {
	r, g, b := float64(r8), float64(g8), float64(b8)
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC
	if delta == 0 {
		return 0
	}

	var deg float64
	switch maxC {
	case r:
		deg = 60 * (g - b) / delta
	case g:
		deg = 120 + 60*(b-r)/delta
	default:
		deg = 240 + 60*(r-g)/delta
	}
	if deg < 0 {
		deg += 360
	}
	bin := int(math.Round(deg / 2))
	if bin >= hueBins {
		bin -= hueBins
	}
	return bin
}

// edgeDensity runs a Sobel-based edge detector with non-maximum suppression
// and single-pass hysteresis, returning the share of pixels marked as edges.
func edgeDensity(gray *plane) float64 {
	w, h := gray.w, gray.h
	if w < 3 || h < 3 {
		return 0
	}

	mag := make([]float64, w*h)
	horizontal := make([]bool, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -gray.at(x-1, y-1) - 2*gray.at(x-1, y) - gray.at(x-1, y+1) +
				gray.at(x+1, y-1) + 2*gray.at(x+1, y) + gray.at(x+1, y+1)
			gy := -gray.at(x-1, y-1) - 2*gray.at(x, y-1) - gray.at(x+1, y-1) +
				gray.at(x-1, y+1) + 2*gray.at(x, y+1) + gray.at(x+1, y+1)
			mag[y*w+x] = math.Abs(gx) + math.Abs(gy)
			horizontal[y*w+x] = math.Abs(gx) >= math.Abs(gy)
		}
	}

	// 0 none, 1 weak, 2 strong
	class := make([]uint8, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m < edgeLowThreshold {
				continue
			}
			var a, b float64
			if horizontal[i] {
				a, b = mag[i-1], mag[i+1]
			} else {
				a, b = mag[i-w], mag[i+w]
			}
			if m < a || m < b {
				continue
			}
			if m >= edgeHighThreshold {
				class[i] = 2
			} else {
				class[i] = 1
			}
		}
	}

	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			switch class[i] {
			case 2:
				edges++
			case 1:
				if hasStrongNeighbour(class, w, x, y) {
					edges++
				}
			}
		}
	}
	return float64(edges) / float64(w*h)
}

func hasStrongNeighbour(class []uint8, w, x, y int) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && class[(y+dy)*w+x+dx] == 2 {
				return true
			}
		}
	}
	return false
}

// laplacianVariance is the variance of the 4-neighbour Laplacian over
// interior pixels.
func laplacianVariance(gray *plane) float64 {
	w, h := gray.w, gray.h
	if w < 3 || h < 3 {
		return 0
	}
	values := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := gray.at(x-1, y) + gray.at(x+1, y) + gray.at(x, y-1) + gray.at(x, y+1) - 4*gray.at(x, y)
			values = append(values, v)
		}
	}
	_, std := meanStd(values)
	return std * std
}
