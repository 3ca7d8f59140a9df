package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keagan/reelmixer/internal/analyzer"
	"github.com/keagan/reelmixer/internal/history"
	"github.com/keagan/reelmixer/internal/media/mediatest"
	"github.com/keagan/reelmixer/internal/profile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// everyoneFaces finds one centred face in every frame and matches it to any
// target.
type everyoneFaces struct{}

func (everyoneFaces) Locate(ctx context.Context, img image.Image, model string, upsample int) ([]image.Rectangle, error) {
	b := img.Bounds()
	cx, cy := b.Dx()/2, b.Dy()/3
	return []image.Rectangle{image.Rect(cx-50, cy-50, cx+50, cy+50)}, nil
}

func (everyoneFaces) Embed(ctx context.Context, img image.Image, box image.Rectangle) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (everyoneFaces) Distance(a, b []float32) float64 { return 0 }

type recordingPublisher struct {
	names []string
}

func (r *recordingPublisher) Publish(ctx context.Context, localPath, name string) (string, error) {
	r.names = append(r.names, name)
	return "https://bucket.example/" + name, nil
}

func baseRequest(dir string, inputs ...string) Request {
	return Request{
		Inputs:           inputs,
		Output:           filepath.Join(dir, "out", "reel.mp4"),
		Mode:             analyzer.ModeFast,
		Profile:          profile.Standard(),
		Seed:             11,
		MaxClipsPerVideo: 3,
		MinClip:          3 * time.Second,
		MaxClip:          5 * time.Second,
		SmartCrop:        true,
		Shuffle:          true,
		SmartShuffle:     true,
		FaceThreshold:    0.4,
		TextConfidence:   0.5,
		FrameWidth:       480,
	}
}

func setup(t *testing.T, deps Deps) (*Pipeline, *mediatest.Fake, string) {
	t.Helper()
	dir := t.TempDir()
	fake := mediatest.New()
	deps.Media = fake
	deps.TempRoot = filepath.Join(dir, "tmp")
	return New(zerolog.Nop(), deps), fake, dir
}

func addSource(t *testing.T, fake *mediatest.Fake, dir, name string, d time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, fake.AddVideo(path, d, 1920, 1080, 25, true))
	return path
}

func TestRunEndToEnd(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	src := addSource(t, fake, dir, "holiday.mp4", 20*time.Second)

	res, err := p.Run(context.Background(), baseRequest(dir, src))
	require.NoError(t, err)

	assert.FileExists(t, res.Output)
	assert.Equal(t, 1, res.Inputs)
	assert.GreaterOrEqual(t, res.Clips, 1)
	assert.LessOrEqual(t, res.Clips, 3)
	assert.GreaterOrEqual(t, res.Duration, time.Duration(res.Clips)*3*time.Second)
	assert.LessOrEqual(t, res.Duration, time.Duration(res.Clips)*5*time.Second)
	assert.NotEmpty(t, res.RunID)

	// every extracted clip was cropped to portrait
	for _, tc := range fake.Transcodes {
		if tc.Input == src {
			assert.Contains(t, tc.Filters, "scale=1080:1920")
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries, "session directory is swept")
}

func TestRunSkipsBadInputs(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	good := addSource(t, fake, dir, "good.MP4", 20*time.Second)

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))
	broken := filepath.Join(dir, "broken.mov")
	require.NoError(t, os.WriteFile(broken, []byte("x"), 0o644))

	res, err := p.Run(context.Background(), baseRequest(dir, notes, good, broken))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Inputs)
	require.Len(t, res.Skipped, 2)
	assert.ErrorIs(t, res.Skipped[0], ErrUnsupportedFormat)
	assert.Equal(t, broken, res.Skipped[1].Path)
}

func TestRunConvertsUndecodableInput(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	src := addSource(t, fake, dir, "odd.mkv", 20*time.Second)
	fake.FrameFailures[src] = 1

	res, err := p.Run(context.Background(), baseRequest(dir, src))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inputs)

	require.NotEmpty(t, fake.Transcodes)
	conv := fake.Transcodes[0]
	assert.Equal(t, src, conv.Input)
	assert.True(t, conv.KeepAudio)
	assert.True(t, conv.FastStart)
}

func TestRunNoUsableInputs(t *testing.T) {
	p, _, dir := setup(t, Deps{})
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o644))

	_, err := p.Run(context.Background(), baseRequest(dir, notes))
	assert.ErrorIs(t, err, ErrNoUsableInputs)
}

func TestRunNoClipsFromShortVideo(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	src := addSource(t, fake, dir, "short.mp4", 2*time.Second)

	_, err := p.Run(context.Background(), baseRequest(dir, src))
	assert.ErrorIs(t, err, ErrNoClipsExtracted)
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	p, _, dir := setup(t, Deps{})
	req := baseRequest(dir, "a.mp4")
	req.MaxClip = time.Second

	_, err := p.Run(context.Background(), req)
	assert.Error(t, err)

	req = baseRequest(dir)
	_, err = p.Run(context.Background(), req)
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	src := addSource(t, fake, dir, "a.mp4", 20*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, baseRequest(dir, src))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunConstrainedCapsPerVideo(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	a := addSource(t, fake, dir, "a.mp4", 60*time.Second)
	b := addSource(t, fake, dir, "b.mp4", 60*time.Second)

	req := baseRequest(dir, a, b)
	req.Profile = profile.Constrained()
	req.MaxClipsPerVideo = 5

	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Clips)
	assert.Equal(t, 2, res.Inputs)
}

func TestRunRecordsHistoryAndPublishes(t *testing.T) {
	store, err := history.Open(context.Background(), zerolog.Nop(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()
	pub := &recordingPublisher{}

	p, fake, dir := setup(t, Deps{History: store, Publisher: pub})
	src := addSource(t, fake, dir, "a.mp4", 20*time.Second)

	req := baseRequest(dir, src)
	req.Upload = true
	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{res.RunID + ".mp4"}, pub.names)
	assert.Equal(t, "https://bucket.example/"+res.RunID+".mp4", res.URL)

	runs, err := store.List(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, history.StatusSucceeded, runs[0].Status)
	assert.Equal(t, res.Clips, runs[0].Clips)
	assert.Equal(t, "fast", runs[0].Mode)
}

func TestRunUploadWithoutPublisher(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	src := addSource(t, fake, dir, "a.mp4", 20*time.Second)

	req := baseRequest(dir, src)
	req.Upload = true
	res, err := p.Run(context.Background(), req)
	assert.Error(t, err)
	require.NotNil(t, res)
	assert.FileExists(t, res.Output)
}

func writeReference(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(1, 1, color.White)
	path := filepath.Join(dir, "me.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestAnalyzeWithReferenceFace(t *testing.T) {
	p, fake, dir := setup(t, Deps{Faces: everyoneFaces{}})
	src := addSource(t, fake, dir, "a.mp4", 30*time.Second)

	req := baseRequest(dir, src)
	req.Reference = writeReference(t, dir)

	report, err := p.Analyze(context.Background(), src, req)
	require.NoError(t, err)

	assert.True(t, report.Target)
	require.NotEmpty(t, report.Segments)
	for _, s := range report.Segments {
		assert.True(t, s.HasTargetFace)
	}
	assert.NotEmpty(t, report.Intervals)
	assert.LessOrEqual(t, len(report.Intervals), 3)
}

func TestAnalyzeWithoutFaceBackendIgnoresReference(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	src := addSource(t, fake, dir, "a.mp4", 30*time.Second)

	req := baseRequest(dir, src)
	req.Reference = writeReference(t, dir)

	report, err := p.Analyze(context.Background(), src, req)
	require.NoError(t, err)
	assert.False(t, report.Target)
}

func TestFaceOnlyRunWithTarget(t *testing.T) {
	p, fake, dir := setup(t, Deps{Faces: everyoneFaces{}})
	src := addSource(t, fake, dir, "a.mp4", 30*time.Second)

	req := baseRequest(dir, src)
	req.Reference = writeReference(t, dir)
	req.FaceOnly = true

	res, err := p.Run(context.Background(), req)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Clips, 1)
}

func TestAnalyzeExcludeLastNarrowsSelectionOnly(t *testing.T) {
	p, fake, dir := setup(t, Deps{})
	src := addSource(t, fake, dir, "a.mp4", 20*time.Second)

	req := baseRequest(dir, src)
	req.ExcludeLast = 5 * time.Second

	report, err := p.Analyze(context.Background(), src, req)
	require.NoError(t, err)

	assert.Len(t, report.Segments, 5)
	require.NotEmpty(t, report.Intervals)
	for _, iv := range report.Intervals {
		assert.LessOrEqual(t, iv.End, 15*time.Second)
	}
}
