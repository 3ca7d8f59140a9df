package media_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/keagan/reelmixer/internal/media"
	"github.com/keagan/reelmixer/internal/media/mediatest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dirWorkspace struct {
	dir string
	n   atomic.Int64
}

func (w *dirWorkspace) NewPath(prefix, ext string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%03d%s", prefix, w.n.Add(1), ext))
}

func setup(t *testing.T) (*mediatest.Fake, *media.Materializer, string) {
	t.Helper()
	dir := t.TempDir()
	fake := mediatest.New()
	src := filepath.Join(dir, "source.mp4")
	require.NoError(t, fake.AddVideo(src, 20*time.Second, 1920, 1080, 25, true))
	m := media.NewMaterializer(zerolog.Nop(), fake, &dirWorkspace{dir: dir}, media.DefaultSettings())
	return fake, m, src
}

func TestMaterializeRange(t *testing.T) {
	fake, m, src := setup(t)

	clip := media.Clip{Source: src, Start: 2 * time.Second, Duration: 5 * time.Second, Label: "cut"}
	mat, err := m.Materialize(context.Background(), clip.WithFilters("scale=1080:1920"), "cut")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, mat.Duration)
	assert.Equal(t, 1080, mat.Width)
	assert.Equal(t, 1920, mat.Height)
	assert.Equal(t, 30.0, mat.FPS)
	assert.False(t, mat.HasAudio)
	assert.FileExists(t, mat.Path)

	require.Len(t, fake.Transcodes, 1)
	opts := fake.Transcodes[0]
	assert.Equal(t, "ultrafast", opts.Preset)
	assert.Equal(t, 2, opts.Threads)
	assert.False(t, opts.KeepAudio)

	require.NoError(t, mat.Release())
	assert.NoFileExists(t, mat.Path)
	require.NoError(t, mat.Release())
}

func TestMaterializeRoundTripKeepsDuration(t *testing.T) {
	_, m, src := setup(t)
	ctx := context.Background()

	first, err := m.Materialize(ctx, media.Clip{Source: src, Start: time.Second, Duration: 4 * time.Second}, "first")
	require.NoError(t, err)
	second, err := m.Materialize(ctx, first.Handle(), "second")
	require.NoError(t, err)

	assert.InDelta(t, first.Duration.Seconds(), second.Duration.Seconds(), 1.0/30)
}

func TestMaterializeRecoversFromOneFrameFailure(t *testing.T) {
	fake, m, src := setup(t)
	fake.FrameFailures[src] = 1

	mat, err := m.Materialize(context.Background(), media.Clip{Source: src, Duration: 3 * time.Second}, "retry")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, mat.Duration)
}

func TestMaterializeFailsAfterRetry(t *testing.T) {
	fake, m, src := setup(t)
	fake.FrameFailures[src] = 2

	_, err := m.Materialize(context.Background(), media.Clip{Source: src, Duration: 3 * time.Second}, "retry")
	assert.ErrorIs(t, err, media.ErrFrameProbe)
	assert.Empty(t, fake.Transcodes)
}

func TestMaterializeRemovesInvalidOutput(t *testing.T) {
	fake, m, src := setup(t)
	// starting at the very end leaves nothing to write
	_, err := m.Materialize(context.Background(), media.Clip{Source: src, Start: 20 * time.Second}, "empty")
	assert.ErrorIs(t, err, media.ErrInvalidDuration)

	require.Len(t, fake.Transcodes, 1)
	assert.NoFileExists(t, fake.Transcodes[0].Output)
}

func TestMaterializeTranscodeError(t *testing.T) {
	fake, m, src := setup(t)
	fake.FailTranscode = func(ffmpeg.TranscodeOptions) bool { return true }

	_, err := m.Materialize(context.Background(), media.Clip{Source: src, Duration: time.Second}, "fail")
	assert.ErrorIs(t, err, mediatest.ErrInjected)
}

func TestOpenRejectsSmallFiles(t *testing.T) {
	_, m, _ := setup(t)
	path := filepath.Join(t.TempDir(), "tiny.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := m.Open(context.Background(), path)
	assert.ErrorIs(t, err, media.ErrOutputTooSmall)
}

func TestDisownKeepsFile(t *testing.T) {
	_, m, src := setup(t)
	mat, err := m.Materialize(context.Background(), media.Clip{Source: src, Duration: time.Second}, "keep")
	require.NoError(t, err)

	path := mat.Disown()
	require.NoError(t, mat.Release())
	assert.FileExists(t, path)
}

func TestClipWithFiltersCopies(t *testing.T) {
	base := media.Clip{Source: "a.mp4", Filters: []string{"scale=10:10"}}
	next := base.WithFilters("", "fps=30")
	assert.Equal(t, []string{"scale=10:10"}, base.Filters)
	assert.Equal(t, []string{"scale=10:10", "fps=30"}, next.Filters)
	assert.Equal(t, 5*time.Second, base.Trimmed(5*time.Second).Duration)
}
