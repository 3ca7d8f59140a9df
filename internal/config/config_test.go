package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reelmixer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1080, cfg.Output.Width)
	assert.Equal(t, 1920, cfg.Output.Height)
	assert.Equal(t, "precise", cfg.Analysis.Mode)
	assert.Equal(t, 3, cfg.Clips.MaxPerVideo)
	assert.Zero(t, cfg.Clips.ExcludeLastSeconds)
	assert.True(t, cfg.History.Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Clips, cfg.Clips)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
profile: constrained
clips:
  max_per_video: 5
  min_clip_seconds: 2
  max_clip_seconds: 6
analysis:
  mode: fast
storage:
  s3:
    bucket: from-file
`)
	t.Setenv("REELMIXER_FFMPEG_THREADS", "3")
	t.Setenv("REELMIXER_STORAGE_S3_BUCKET", "from-env")
	t.Setenv("REELMIXER_CLIPS_FACE_ONLY", "true")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "constrained", cfg.Profile)
	assert.Equal(t, 5, cfg.Clips.MaxPerVideo)
	assert.Equal(t, 2.0, cfg.Clips.MinClipSeconds)
	assert.Equal(t, "fast", cfg.Analysis.Mode)
	assert.Equal(t, 3, cfg.FFmpeg.Threads)
	assert.Equal(t, "from-env", cfg.Storage.S3.Bucket)
	assert.True(t, cfg.Clips.FaceOnly)
	// untouched sections keep defaults
	assert.Equal(t, 30.0, cfg.Output.FPS)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"min above max", "clips:\n  min_clip_seconds: 9\n  max_clip_seconds: 4\n"},
		{"unknown mode", "analysis:\n  mode: turbo\n"},
		{"unknown profile", "profile: huge\n"},
		{"unknown text removal", "analysis:\n  text_removal: blur\n"},
		{"unknown logo position", "branding:\n  logo:\n    position: bottom\n"},
		{"odd width", "output:\n  width: 1081\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Storage.S3.AccessKeyID = "AKIAEXAMPLE"
	cfg.Storage.S3.SecretAccessKey = "supersecretvalue"

	out := cfg.String()
	assert.NotContains(t, out, "AKIAEXAMPLE")
	assert.NotContains(t, out, "supersecretvalue")
	assert.Contains(t, out, "su************ue")
	assert.Equal(t, "supersecretvalue", cfg.Storage.S3.SecretAccessKey)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Seed = 42
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), loaded.Seed)
}

func TestContext(t *testing.T) {
	cfg := Default()
	cfg.Seed = 7
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
	assert.Equal(t, int64(0), FromContext(context.Background()).Seed)
}
