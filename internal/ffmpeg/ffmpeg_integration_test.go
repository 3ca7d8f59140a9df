package ffmpeg_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/keagan/reelmixer/internal/analyzer"
	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/keagan/reelmixer/internal/pipeline"
	"github.com/keagan/reelmixer/internal/profile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// local helper (cannot use unexported ones from ffmpeg package)
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping ffmpeg integration test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

func landscapeSource(t *testing.T, dir, name string, seconds int) string {
	t.Helper()
	out := filepath.Join(dir, name)
	d := strconv.Itoa(seconds)
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "testsrc2=duration="+d+":size=640x360:rate=25",
		"-f", "lavfi", "-i", "sine=frequency=440:duration="+d,
		"-pix_fmt", "yuv420p", "-shortest", out)
	if err := cmd.Run(); err != nil {
		t.Skipf("could not generate test video: %v", err)
	}
	return out
}

func TestIntegration_MixTwoVideos(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	a := landscapeSource(t, dir, "a.mp4", 12)
	b := landscapeSource(t, dir, "b.mov", 10)

	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}).With().Str("test", "integration_mix").Logger()

	exec, err := ffmpeg.New(logger, 2)
	require.NoError(t, err)

	p := pipeline.New(logger, pipeline.Deps{
		Media:    exec,
		TempRoot: filepath.Join(dir, "tmp"),
	})

	prof := profile.Constrained()
	prof.Preset = "ultrafast"

	out := filepath.Join(dir, "reel.mp4")
	start := time.Now()
	res, err := p.Run(context.Background(), pipeline.Request{
		Inputs:           []string{a, b},
		Output:           out,
		Mode:             analyzer.ModeFast,
		Profile:          prof,
		Seed:             7,
		MaxClipsPerVideo: 2,
		MinClip:          2 * time.Second,
		MaxClip:          3 * time.Second,
		SmartCrop:        true,
		Shuffle:          true,
		SmartShuffle:     true,
		FaceThreshold:    0.4,
		FrameWidth:       320,
	})
	require.NoError(t, err)
	t.Logf("mixed %d clips into %s in %v", res.Clips, res.Duration, time.Since(start))

	info, err := exec.ProbeVideo(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 1080, info.Width)
	assert.Equal(t, 1920, info.Height)
	assert.InDelta(t, 30, info.FPS, 0.5)
	assert.Positive(t, info.Duration)
	assert.GreaterOrEqual(t, res.Clips, 2)
}
