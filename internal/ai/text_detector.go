package ai

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/keagan/reelmixer/internal/scoring"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// TextDetectorConfig configures the EAST scene text model.
type TextDetectorConfig struct {
	ModelPath      string
	LibraryPath    string
	InputName      string
	ScoreName      string
	GeometryName   string
	Width          int // multiple of 32
	Height         int // multiple of 32
	ScoreThreshold float64
	NMSThreshold   float64
}

// DefaultTextDetectorConfig returns settings for the stock 320x320 EAST export.
func DefaultTextDetectorConfig(modelPath string) TextDetectorConfig {
	return TextDetectorConfig{
		ModelPath:      modelPath,
		InputName:      "input_images:0",
		ScoreName:      "feature_fusion/Conv_7/Sigmoid:0",
		GeometryName:   "feature_fusion/concat_3:0",
		Width:          320,
		Height:         320,
		ScoreThreshold: 0.5,
		NMSThreshold:   0.4,
	}
}

var eastNorm = channelNorm{
	mean:  [3]float32{123.68, 116.78, 103.94},
	scale: [3]float32{1, 1, 1},
}

// TextDetector finds text regions with an EAST model.
type TextDetector struct {
	logger  zerolog.Logger
	cfg     TextDetectorConfig
	session *session
}

// NewTextDetector loads the EAST model.
func NewTextDetector(logger zerolog.Logger, cfg TextDetectorConfig) (*TextDetector, error) {
	if cfg.Width%32 != 0 || cfg.Height%32 != 0 || cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("EAST input size must be a non-zero multiple of 32, got %dx%d", cfg.Width, cfg.Height)
	}

	sess, err := openSession(cfg.ModelPath, cfg.LibraryPath,
		[]string{cfg.InputName}, []string{cfg.ScoreName, cfg.GeometryName})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("model", cfg.ModelPath).
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Msg("text detector loaded")

	return &TextDetector{
		logger:  logger.With().Str("detector", "east").Logger(),
		cfg:     cfg,
		session: sess,
	}, nil
}

// DetectRegions returns text boxes in img coordinates.
func (d *TextDetector) DetectRegions(ctx context.Context, img image.Image) ([]scoring.TextRegion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := d.cfg.Width, d.cfg.Height
	input, err := ort.NewTensor(ort.NewShape(1, int64(h), int64(w), 3), toNHWC(resizeRGBA(img, w, h), eastNorm))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	rows, cols := h/4, w/4
	scores, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(rows), int64(cols), 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create score tensor: %w", err)
	}
	defer scores.Destroy()

	geometry, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(rows), int64(cols), 5))
	if err != nil {
		return nil, fmt.Errorf("failed to create geometry tensor: %w", err)
	}
	defer geometry.Destroy()

	if err := d.session.run([]ort.Value{input}, []ort.Value{scores, geometry}); err != nil {
		return nil, fmt.Errorf("EAST inference failed: %w", err)
	}

	dets := decodeEAST(scores.GetData(), geometry.GetData(), rows, cols, d.cfg.ScoreThreshold)
	dets = nms(dets, d.cfg.NMSThreshold)

	bounds := img.Bounds()
	sx := float64(bounds.Dx()) / float64(w)
	sy := float64(bounds.Dy()) / float64(h)

	regions := make([]scoring.TextRegion, 0, len(dets))
	for _, det := range dets {
		box := scaleRect(det.box, sx, sy).Add(bounds.Min).Intersect(bounds)
		if box.Empty() {
			continue
		}
		regions = append(regions, scoring.TextRegion{Box: box, Confidence: det.score})
	}

	d.logger.Trace().Int("regions", len(regions)).Msg("text detection complete")
	return regions, nil
}

// Close releases the model session.
func (d *TextDetector) Close() error {
	return d.session.close()
}

// decodeEAST turns NHWC score and geometry maps into axis-aligned boxes in
// model input coordinates. Each cell covers a 4x4 pixel block.
func decodeEAST(scores, geometry []float32, rows, cols int, threshold float64) []detection {
	var dets []detection
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			cell := y*cols + x
			score := float64(scores[cell])
			if score < threshold {
				continue
			}

			g := geometry[cell*5 : cell*5+5]
			top, right, bottom, left := float64(g[0]), float64(g[1]), float64(g[2]), float64(g[3])
			angle := float64(g[4])
			cos, sin := math.Cos(angle), math.Sin(angle)

			offsetX, offsetY := float64(x)*4, float64(y)*4
			bh := top + bottom
			bw := right + left

			endX := offsetX + cos*right + sin*bottom
			endY := offsetY - sin*right + cos*bottom
			startX := endX - bw
			startY := endY - bh

			dets = append(dets, detection{
				box:   image.Rect(int(startX), int(startY), int(math.Ceil(endX)), int(math.Ceil(endY))),
				score: score,
			})
		}
	}
	return dets
}

func scaleRect(r image.Rectangle, sx, sy float64) image.Rectangle {
	return image.Rect(
		int(float64(r.Min.X)*sx),
		int(float64(r.Min.Y)*sy),
		int(math.Ceil(float64(r.Max.X)*sx)),
		int(math.Ceil(float64(r.Max.Y)*sy)),
	)
}
