package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/keagan/reelmixer/internal/analyzer"
	"github.com/keagan/reelmixer/internal/clips"
	"github.com/keagan/reelmixer/internal/config"
	"github.com/keagan/reelmixer/internal/history"
	"github.com/keagan/reelmixer/internal/overlays"
	"github.com/keagan/reelmixer/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestFromConfig(t *testing.T) {
	mf = mixFlags{output: "out.mp4", upload: true}
	cfg := config.Default()
	cfg.Profile = "constrained"
	cfg.Seed = 42
	cfg.Branding.Logo.Path = "logo.png"
	cfg.Branding.Logo.Position = "top-left"
	cfg.Branding.Audio.Path = "song.mp3"
	cfg.Branding.Audio.ExtraSeconds = 1.5

	req, err := buildRequest(context.Background(), cfg, []string{"a.mp4"})
	require.NoError(t, err)

	assert.Equal(t, "out.mp4", req.Output)
	assert.Equal(t, int64(42), req.Seed)
	assert.Equal(t, "constrained", req.Profile.Name)
	assert.Equal(t, analyzer.ModePrecise, req.Mode)
	assert.Equal(t, 3*time.Second, req.MinClip)
	assert.Equal(t, 8*time.Second, req.MaxClip)
	assert.Equal(t, time.Minute, req.TargetDuration)
	require.NotNil(t, req.Logo)
	assert.Equal(t, overlays.TopLeft, req.Logo.Anchor)
	require.NotNil(t, req.Audio)
	assert.Equal(t, 1500*time.Millisecond, req.Audio.Extra)
	assert.True(t, req.Upload)
}

func TestBuildRequestPicksSeed(t *testing.T) {
	mf = mixFlags{}
	cfg := config.Default()
	cfg.Profile = "standard"

	req, err := buildRequest(context.Background(), cfg, []string{"a.mp4"})
	require.NoError(t, err)
	assert.NotZero(t, req.Seed)
	assert.Nil(t, req.Logo)
	assert.Nil(t, req.Audio)
	assert.Equal(t, "reel.mp4", req.Output)
}

func TestBuildRequestRejectsBadLogoPosition(t *testing.T) {
	mf = mixFlags{}
	cfg := config.Default()
	cfg.Profile = "standard"
	cfg.Branding.Logo.Path = "logo.png"
	cfg.Branding.Logo.Position = "bottom"

	_, err := buildRequest(context.Background(), cfg, []string{"a.mp4"})
	assert.Error(t, err)
}

func TestApplyMixFlagsOnlyChanged(t *testing.T) {
	mf = mixFlags{}
	cfg := config.Default()
	c := &cobra.Command{}
	c.Flags().StringVar(&mf.mode, "mode", "", "")
	c.Flags().Float64Var(&mf.minClip, "min-clip", 0, "")
	c.Flags().Float64Var(&mf.maxClip, "max-clip", 0, "")
	require.NoError(t, c.Flags().Set("mode", "fast"))
	require.NoError(t, c.Flags().Set("min-clip", "2"))

	applyMixFlags(c, cfg)

	assert.Equal(t, "fast", cfg.Analysis.Mode)
	assert.Equal(t, 2.0, cfg.Clips.MinClipSeconds)
	assert.Equal(t, 8.0, cfg.Clips.MaxClipSeconds)
	assert.True(t, cfg.Clips.SmartCrop)
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &pipeline.Report{
		Source:    clips.Source{Path: "a.mp4", Duration: 10 * time.Second, Width: 1920, Height: 1080, FPS: 30},
		Segments:  []clips.Segment{{Start: 0, End: 3 * time.Second, Score: 12.5, HasTargetFace: true}},
		Intervals: []clips.Interval{{Start: 0, End: 3 * time.Second}},
	})

	out := buf.String()
	assert.Contains(t, out, "a.mp4")
	assert.Contains(t, out, "12.5")
	assert.Contains(t, out, "selected 1 intervals")
}

func TestPrintRuns(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, []history.Run{
		{ID: "0123456789abcdef", Status: history.StatusSucceeded, Output: "reel.mp4", StartedAt: time.Now()},
		{ID: "fedcba9876543210", Status: history.StatusFailed, Error: "no usable input videos", StartedAt: time.Now()},
	})

	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "reel.mp4")
	assert.Contains(t, out, "no usable input videos")
}
