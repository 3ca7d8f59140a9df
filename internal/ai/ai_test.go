package ai

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIoU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	assert.Equal(t, 1.0, iou(a, a))
	assert.Equal(t, 0.0, iou(a, image.Rect(20, 20, 30, 30)))
	assert.InDelta(t, 50.0/150.0, iou(a, image.Rect(5, 0, 15, 10)), 1e-9)
}

func TestNMSKeepsHighestScore(t *testing.T) {
	dets := []detection{
		{box: image.Rect(0, 0, 10, 10), score: 0.6},
		{box: image.Rect(1, 1, 11, 11), score: 0.9},
		{box: image.Rect(50, 50, 60, 60), score: 0.7},
	}
	kept := nms(dets, 0.3)
	require.Len(t, kept, 2)
	assert.Equal(t, 0.9, kept[0].score)
	assert.Equal(t, image.Rect(50, 50, 60, 60), kept[1].box)
}

func TestDecodeEAST(t *testing.T) {
	rows, cols := 2, 2
	scores := []float32{0.1, 0.9, 0.2, 0.3}
	geometry := make([]float32, rows*cols*5)
	// cell (0,1): 4px above, 8px right, 4px below, 8px left, no rotation
	copy(geometry[5:10], []float32{4, 8, 4, 8, 0})

	dets := decodeEAST(scores, geometry, rows, cols, 0.5)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.9, dets[0].score, 1e-6)
	assert.Equal(t, image.Rect(-4, -4, 12, 4), dets[0].box)
}

func TestDecodeUltraFace(t *testing.T) {
	scores := []float32{0.9, 0.1, 0.2, 0.8}
	boxes := []float32{
		0, 0, 1, 1,
		0.25, 0.5, 0.75, 1.0,
	}
	region := image.Rect(100, 100, 300, 200)

	dets := decodeUltraFace(scores, boxes, region, 0.7)
	require.Len(t, dets, 1)
	assert.Equal(t, image.Rect(150, 150, 250, 200), dets[0].box)
}

func TestQuadrantsCoverFrame(t *testing.T) {
	r := image.Rect(0, 0, 80, 40)
	tiles := quadrants(r)
	require.Len(t, tiles, 4)

	union := tiles[0]
	for _, tile := range tiles[1:] {
		union = union.Union(tile)
		assert.True(t, tile.In(r))
	}
	assert.Equal(t, r, union)
}

func TestEmbeddingDistance(t *testing.T) {
	a := []float32{1, 0}
	assert.InDelta(t, 0.0, embeddingDistance(a, a), 1e-9)
	assert.InDelta(t, 1.0, embeddingDistance(a, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 0.5, embeddingDistance(a, []float32{0, 3}), 1e-9)
	assert.Equal(t, 1.0, embeddingDistance(a, []float32{1}))
}

func TestNormalize(t *testing.T) {
	v := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}

func TestPreprocessLayouts(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 40, G: 50, B: 60, A: 255})
	identity := channelNorm{scale: [3]float32{1, 1, 1}}

	assert.Equal(t, []float32{10, 40, 20, 50, 30, 60}, toNCHW(img, identity))
	assert.Equal(t, []float32{10, 20, 30, 40, 50, 60}, toNHWC(img, identity))
}

func TestCropClampsToBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	out := crop(img, image.Rect(5, 5, 20, 20))
	assert.Equal(t, image.Rect(0, 0, 5, 5), out.Bounds())
}
