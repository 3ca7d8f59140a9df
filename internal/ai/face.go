package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// FaceConfig locates the face detection and embedding models.
type FaceConfig struct {
	DetectorPath  string
	EmbedderPath  string
	LibraryPath   string
	Confidence    float64
	NMSThreshold  float64
	DetectorInput string
	ScoresName    string
	BoxesName     string
	EmbedderInput string
	EmbeddingName string
	EmbeddingSize int
}

// DefaultFaceConfig returns settings for UltraFace RFB-320 and a 112x112
// ArcFace export.
func DefaultFaceConfig(detectorPath, embedderPath string) FaceConfig {
	return FaceConfig{
		DetectorPath:  detectorPath,
		EmbedderPath:  embedderPath,
		Confidence:    0.7,
		NMSThreshold:  0.3,
		DetectorInput: "input",
		ScoresName:    "scores",
		BoxesName:     "boxes",
		EmbedderInput: "data",
		EmbeddingName: "fc1",
		EmbeddingSize: 512,
	}
}

const (
	ultraFaceWidth   = 320
	ultraFaceHeight  = 240
	ultraFaceAnchors = 4420
	arcFaceSize      = 112
)

var (
	ultraFaceNorm = channelNorm{
		mean:  [3]float32{127, 127, 127},
		scale: [3]float32{1.0 / 128, 1.0 / 128, 1.0 / 128},
	}
	arcFaceNorm = channelNorm{
		mean:  [3]float32{127.5, 127.5, 127.5},
		scale: [3]float32{1.0 / 127.5, 1.0 / 127.5, 1.0 / 127.5},
	}

	errEmptyFace = errors.New("face box is empty")
)

// FaceAnalyzer detects faces and computes identity embeddings.
type FaceAnalyzer struct {
	logger   zerolog.Logger
	cfg      FaceConfig
	detector *session
	embedder *session
}

// NewFaceAnalyzer loads both face models.
func NewFaceAnalyzer(logger zerolog.Logger, cfg FaceConfig) (*FaceAnalyzer, error) {
	detector, err := openSession(cfg.DetectorPath, cfg.LibraryPath,
		[]string{cfg.DetectorInput}, []string{cfg.ScoresName, cfg.BoxesName})
	if err != nil {
		return nil, fmt.Errorf("face detector: %w", err)
	}

	embedder, err := openSession(cfg.EmbedderPath, cfg.LibraryPath,
		[]string{cfg.EmbedderInput}, []string{cfg.EmbeddingName})
	if err != nil {
		_ = detector.close()
		return nil, fmt.Errorf("face embedder: %w", err)
	}

	logger.Info().
		Str("detector", cfg.DetectorPath).
		Str("embedder", cfg.EmbedderPath).
		Msg("face models loaded")

	return &FaceAnalyzer{
		logger:   logger.With().Str("detector", "face").Logger(),
		cfg:      cfg,
		detector: detector,
		embedder: embedder,
	}, nil
}

// Locate finds faces in img. With upsample above zero each quadrant is also
// scanned at full model resolution so smaller faces are picked up; the
// results are merged with NMS.
func (f *FaceAnalyzer) Locate(ctx context.Context, img image.Image, model string, upsample int) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	dets, err := f.detect(img, bounds)
	if err != nil {
		return nil, err
	}

	if upsample > 0 {
		for _, tile := range quadrants(bounds) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tileDets, err := f.detect(img, tile)
			if err != nil {
				return nil, err
			}
			dets = append(dets, tileDets...)
		}
		dets = nms(dets, f.cfg.NMSThreshold)
	}

	boxes := make([]image.Rectangle, 0, len(dets))
	for _, d := range dets {
		boxes = append(boxes, d.box)
	}

	f.logger.Trace().Str("model", model).Int("upsample", upsample).Int("faces", len(boxes)).Msg("faces located")
	return boxes, nil
}

func (f *FaceAnalyzer) detect(img image.Image, region image.Rectangle) ([]detection, error) {
	rgba := resizeRGBA(crop(img, region), ultraFaceWidth, ultraFaceHeight)

	input, err := ort.NewTensor(ort.NewShape(1, 3, ultraFaceHeight, ultraFaceWidth), toNCHW(rgba, ultraFaceNorm))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	scores, err := ort.NewEmptyTensor[float32](ort.NewShape(1, ultraFaceAnchors, 2))
	if err != nil {
		return nil, fmt.Errorf("failed to create scores tensor: %w", err)
	}
	defer scores.Destroy()

	boxes, err := ort.NewEmptyTensor[float32](ort.NewShape(1, ultraFaceAnchors, 4))
	if err != nil {
		return nil, fmt.Errorf("failed to create boxes tensor: %w", err)
	}
	defer boxes.Destroy()

	if err := f.detector.run([]ort.Value{input}, []ort.Value{scores, boxes}); err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	dets := decodeUltraFace(scores.GetData(), boxes.GetData(), region, f.cfg.Confidence)
	return nms(dets, f.cfg.NMSThreshold), nil
}

// Embed returns an L2-normalized identity vector for the face in box.
func (f *FaceAnalyzer) Embed(ctx context.Context, img image.Image, box image.Rectangle) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	region := box.Intersect(img.Bounds())
	if region.Empty() {
		return nil, errEmptyFace
	}

	rgba := resizeRGBA(crop(img, region), arcFaceSize, arcFaceSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, arcFaceSize, arcFaceSize), toNCHW(rgba, arcFaceNorm))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(f.cfg.EmbeddingSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding tensor: %w", err)
	}
	defer output.Destroy()

	if err := f.embedder.run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("face embedding failed: %w", err)
	}

	emb := make([]float32, len(output.GetData()))
	copy(emb, output.GetData())
	return normalize(emb), nil
}

// Distance maps cosine similarity of two embeddings onto [0,1], where 0 is
// identical and 1 is opposite.
func (f *FaceAnalyzer) Distance(a, b []float32) float64 {
	return embeddingDistance(a, b)
}

// Close releases both sessions.
func (f *FaceAnalyzer) Close() error {
	return errors.Join(f.detector.close(), f.embedder.close())
}

// decodeUltraFace converts anchor outputs with normalized corner boxes into
// frame-space detections inside region.
func decodeUltraFace(scores, boxes []float32, region image.Rectangle, threshold float64) []detection {
	var dets []detection
	n := len(scores) / 2
	w, h := float64(region.Dx()), float64(region.Dy())
	for i := 0; i < n && i*4+3 < len(boxes); i++ {
		conf := float64(scores[i*2+1])
		if conf < threshold {
			continue
		}
		x1 := clampUnit(float64(boxes[i*4]))
		y1 := clampUnit(float64(boxes[i*4+1]))
		x2 := clampUnit(float64(boxes[i*4+2]))
		y2 := clampUnit(float64(boxes[i*4+3]))

		box := image.Rect(
			region.Min.X+int(x1*w),
			region.Min.Y+int(y1*h),
			region.Min.X+int(math.Ceil(x2*w)),
			region.Min.Y+int(math.Ceil(y2*h)),
		)
		if box.Empty() {
			continue
		}
		dets = append(dets, detection{box: box, score: conf})
	}
	return dets
}

// quadrants splits r into four overlapping tiles.
func quadrants(r image.Rectangle) []image.Rectangle {
	w, h := r.Dx(), r.Dy()
	tw, th := w*5/8, h*5/8
	return []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+tw, r.Min.Y+th),
		image.Rect(r.Max.X-tw, r.Min.Y, r.Max.X, r.Min.Y+th),
		image.Rect(r.Min.X, r.Max.Y-th, r.Min.X+tw, r.Max.Y),
		image.Rect(r.Max.X-tw, r.Max.Y-th, r.Max.X, r.Max.Y),
	}
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func embeddingDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return (1 - cos) / 2
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
