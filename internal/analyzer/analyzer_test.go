package analyzer

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/keagan/reelmixer/internal/clips"
	"github.com/keagan/reelmixer/internal/scoring"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFrames struct {
	mu    sync.Mutex
	width int
	calls []time.Duration
	fail  func(time.Duration) bool
}

func (f *fakeFrames) FrameAt(ctx context.Context, path string, at time.Duration) (image.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, at)
	f.mu.Unlock()
	if f.fail != nil && f.fail(at) {
		return nil, errors.New("decode failed")
	}
	w := f.width
	if w == 0 {
		w = 16
	}
	return image.NewRGBA(image.Rect(0, 0, w, w)), nil
}

// scriptedScorer returns totals in call order and flags target matches.
type scriptedScorer struct {
	totals  []float64
	targets []bool
	inputs  []scoring.FrameInput
}

func (s *scriptedScorer) Score(ctx context.Context, in scoring.FrameInput) scoring.FrameScore {
	i := len(s.inputs)
	s.inputs = append(s.inputs, in)
	res := scoring.FrameScore{Total: 1, TextPenalty: 1}
	if i < len(s.totals) {
		res.Total = s.totals[i]
	}
	if i < len(s.targets) {
		res.HasTarget = s.targets[i]
	}
	return res
}

func mustPreset(t *testing.T, mode Mode) Preset {
	t.Helper()
	p, err := PresetFor(mode)
	require.NoError(t, err)
	return p
}

func TestSegmentCount(t *testing.T) {
	precise := mustPreset(t, ModePrecise)
	assert.Equal(t, 60, precise.SegmentCount(100*time.Second, 0, 3*time.Second))

	fast := mustPreset(t, ModeFast)
	assert.Equal(t, 5, fast.SegmentCount(20*time.Second, 0, 3*time.Second))
	assert.Equal(t, 0, fast.SegmentCount(3*time.Second, 0, 3*time.Second))
}

func TestPresetForUnknownMode(t *testing.T) {
	_, err := PresetFor("turbo")
	assert.Error(t, err)
}

func TestAnalyzeProducesSixtySegments(t *testing.T) {
	frames := &fakeFrames{}
	a := New(zerolog.Nop(), frames, &scriptedScorer{})

	segs, err := a.Analyze(context.Background(), clips.Source{Path: "a.mp4", Duration: 100 * time.Second}, Config{
		Preset:  mustPreset(t, ModePrecise),
		MinClip: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Len(t, segs, 60)
	assert.Len(t, frames.calls, 120)
	assert.Equal(t, 750*time.Millisecond, frames.calls[1])
}

func TestAnalyzeFaceBoostAppliedOnce(t *testing.T) {
	scorer := &scriptedScorer{
		totals:  []float64{3, 5, 2, 2},
		targets: []bool{false, true, false, false},
	}
	a := New(zerolog.Nop(), &fakeFrames{}, scorer)

	segs, err := a.Analyze(context.Background(), clips.Source{Path: "a.mp4", Duration: 6 * time.Second}, Config{
		Preset:  mustPreset(t, ModePrecise),
		MinClip: 3 * time.Second,
		Target:  []float32{1},
	})
	require.NoError(t, err)
	require.Len(t, segs, 2)

	assert.True(t, segs[0].HasTargetFace)
	assert.Equal(t, 4.0*2.0, segs[0].Score)
	assert.False(t, segs[1].HasTargetFace)
	assert.Equal(t, 2.0, segs[1].Score)
}

func TestAnalyzeShortSourceIsEmpty(t *testing.T) {
	frames := &fakeFrames{}
	a := New(zerolog.Nop(), frames, &scriptedScorer{})

	segs, err := a.Analyze(context.Background(), clips.Source{Path: "a.mp4", Duration: 2 * time.Second}, Config{
		Preset:  mustPreset(t, ModeFast),
		MinClip: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Empty(t, segs)
	assert.Empty(t, frames.calls)
}

func TestAnalyzeUsesFullSourceDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     int
	}{
		{7 * time.Second, 1},
		{20 * time.Second, 5},
	}
	for _, tt := range tests {
		frames := &fakeFrames{}
		a := New(zerolog.Nop(), frames, &scriptedScorer{})

		segs, err := a.Analyze(context.Background(), clips.Source{Path: "a.mp4", Duration: tt.duration}, Config{
			Preset:  mustPreset(t, ModeFast),
			MinClip: 3 * time.Second,
		})
		require.NoError(t, err)
		assert.Len(t, segs, tt.want, tt.duration.String())
		assert.Equal(t, tt.want, mustPreset(t, ModeFast).SegmentCount(tt.duration, 0, 3*time.Second))
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(zerolog.Nop(), &fakeFrames{}, &scriptedScorer{})
	_, err := a.Analyze(ctx, clips.Source{Path: "a.mp4", Duration: 60 * time.Second}, Config{
		Preset:  mustPreset(t, ModeFast),
		MinClip: 3 * time.Second,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeSkipsUnreadableSegments(t *testing.T) {
	frames := &fakeFrames{fail: func(at time.Duration) bool { return at == 3*time.Second }}
	a := New(zerolog.Nop(), frames, &scriptedScorer{})

	segs, err := a.Analyze(context.Background(), clips.Source{Path: "a.mp4", Duration: 12 * time.Second}, Config{
		Preset:  mustPreset(t, ModeFast),
		MinClip: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Len(t, segs, 2)
}

func TestAnalyzeTextAvoidanceRules(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"enabled", Config{AvoidText: true, TextAvailable: true}, true},
		{"fast mode", Config{AvoidText: true, TextAvailable: true, Preset: Preset{Mode: ModeFast}}, false},
		{"no backend", Config{AvoidText: true}, false},
		{"removal configured", Config{AvoidText: true, TextAvailable: true, TextRemoval: true}, false},
		{"not requested", Config{TextAvailable: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Preset.Mode == "" {
				tt.cfg.Preset = mustPreset(t, ModePrecise)
			}
			assert.Equal(t, tt.want, tt.cfg.textAvoidance())
		})
	}
}

func TestAnalyzeDownscalesAndPassesQuery(t *testing.T) {
	scorer := &scriptedScorer{}
	a := New(zerolog.Nop(), &fakeFrames{width: 960}, scorer)

	_, err := a.Analyze(context.Background(), clips.Source{Path: "a.mp4", Duration: 4 * time.Second}, Config{
		Preset:        mustPreset(t, ModeFast),
		MinClip:       time.Second,
		FrameWidth:    480,
		Target:        []float32{1},
		FaceThreshold: 0.4,
	})
	require.NoError(t, err)
	require.NotEmpty(t, scorer.inputs)

	in := scorer.inputs[0]
	assert.Equal(t, 480, in.Frame.Bounds().Dx())
	assert.Nil(t, in.Prev)
	assert.Equal(t, 0.4, in.Face.Threshold)
	assert.Equal(t, 0, in.Face.Upsample)
	if len(scorer.inputs) > 1 {
		assert.NotNil(t, scorer.inputs[1].Prev)
	}
}

func TestAnalyzeMergesAdjacent(t *testing.T) {
	scorer := &scriptedScorer{totals: []float64{5, 5, 1}}
	a := New(zerolog.Nop(), &fakeFrames{}, scorer)

	segs, err := a.Analyze(context.Background(), clips.Source{Path: "a.mp4", Duration: 12 * time.Second}, Config{
		Preset:        mustPreset(t, ModeFast),
		MinClip:       3 * time.Second,
		MergeAdjacent: true,
	})
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, time.Duration(0), segs[0].Start)
	assert.Equal(t, 6*time.Second, segs[0].End)
}
