package profile

import (
	"context"
	"testing"

	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiles(t *testing.T) {
	std := Standard()
	assert.Equal(t, 5, std.BatchSize)
	assert.Equal(t, ffmpeg.ConcatFilter, std.ConcatMethod)
	assert.Equal(t, 10, std.MaxClips)
	assert.False(t, std.Constrained())

	c := Constrained()
	assert.Equal(t, 2, c.BatchSize)
	assert.Equal(t, ffmpeg.ConcatDemuxer, c.ConcatMethod)
	assert.Equal(t, 6, c.MaxClips)
	assert.Equal(t, "ultrafast", c.Preset)
	assert.True(t, c.Constrained())
}

func TestPerVideoCap(t *testing.T) {
	assert.Equal(t, 5, Standard().PerVideoCap(5))
	assert.Equal(t, 0, Standard().PerVideoCap(0))
	assert.Equal(t, 2, Constrained().PerVideoCap(5))
	assert.Equal(t, 1, Constrained().PerVideoCap(1))
	assert.Equal(t, 2, Constrained().PerVideoCap(0))
}

func TestChooseByMemory(t *testing.T) {
	assert.Equal(t, NameConstrained, choose(1<<30).Name)
	assert.Equal(t, NameStandard, choose(8<<30).Name)
	assert.Equal(t, NameStandard, choose(ConstrainedMemoryBytes).Name)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	p, err := Resolve(ctx, zerolog.Nop(), "constrained")
	require.NoError(t, err)
	assert.Equal(t, Constrained(), p)

	p, err = Resolve(ctx, zerolog.Nop(), "auto")
	require.NoError(t, err)
	assert.Contains(t, []string{NameStandard, NameConstrained}, p.Name)

	_, err = Resolve(ctx, zerolog.Nop(), "turbo")
	assert.Error(t, err)
}
