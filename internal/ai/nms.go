package ai

import (
	"image"
	"sort"
)

// detection is a scored box in frame coordinates.
type detection struct {
	box   image.Rectangle
	score float64
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}

// nms keeps the highest scoring boxes, dropping any that overlap a kept box
// by more than threshold IoU.
func nms(dets []detection, threshold float64) []detection {
	sorted := make([]detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].score > sorted[j].score
	})

	kept := make([]detection, 0, len(sorted))
	for _, d := range sorted {
		keep := true
		for _, k := range kept {
			if iou(d.box, k.box) > threshold {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, d)
		}
	}
	return kept
}
