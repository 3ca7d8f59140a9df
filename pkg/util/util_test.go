package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:00.000", FormatDuration(0))
	assert.Equal(t, "00:00:01.500", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "01:02:03.250", FormatDuration(time.Hour+2*time.Minute+3250*time.Millisecond))
	assert.Equal(t, "00:00:00.000", FormatDuration(-time.Second))
}

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 30.0, ParseFrameRate("30/1"))
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 25.0, ParseFrameRate("25"))
	assert.Equal(t, 0.0, ParseFrameRate("0/0"))
	assert.Equal(t, 0.0, ParseFrameRate("n/a"))
}

func TestFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.False(t, FileExists(dir))

	f := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	assert.True(t, FileExists(f))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}
