package selector

import (
	"math/rand"
	"testing"
	"time"

	"github.com/keagan/reelmixer/internal/clips"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedSegments(duration time.Duration, step time.Duration) []clips.Segment {
	var segs []clips.Segment
	score := 100.0
	for start := time.Duration(0); start < duration; start += step {
		segs = append(segs, clips.Segment{Start: start, End: start + step, Score: score})
		score--
	}
	// ranked order differs from time order
	rand.New(rand.NewSource(7)).Shuffle(len(segs), func(i, j int) { segs[i], segs[j] = segs[j], segs[i] })
	return segs
}

func TestSelectProperties(t *testing.T) {
	duration := 60 * time.Second
	opts := Options{MinClip: 3 * time.Second, MaxClip: 8 * time.Second}

	for seed := int64(0); seed < 20; seed++ {
		s := New(zerolog.Nop(), rand.New(rand.NewSource(seed)))
		got := s.Select(rankedSegments(duration, 1500*time.Millisecond), duration, opts)
		require.NotEmpty(t, got)

		for i, iv := range got {
			assert.GreaterOrEqual(t, iv.Duration, opts.MinClip)
			assert.LessOrEqual(t, iv.Duration, opts.MaxClip)
			assert.LessOrEqual(t, iv.End, duration)
			assert.GreaterOrEqual(t, iv.Start, time.Duration(0))
			assert.Equal(t, iv.End-iv.Start, iv.Duration)

			for _, other := range got[i+1:] {
				d := iv.Start - other.Start
				if d < 0 {
					d = -d
				}
				assert.GreaterOrEqual(t, d, DefaultMinDistance)
			}
		}
	}
}

func TestSelectDiversityWidensSpacing(t *testing.T) {
	duration := 60 * time.Second
	s := New(zerolog.Nop(), rand.New(rand.NewSource(1)))
	got := s.Select(rankedSegments(duration, time.Second), duration, Options{
		MinClip:   3 * time.Second,
		MaxClip:   5 * time.Second,
		Diversity: true,
	})

	for i := range got {
		for j := i + 1; j < len(got); j++ {
			d := got[i].Start - got[j].Start
			if d < 0 {
				d = -d
			}
			assert.GreaterOrEqual(t, d, DiversityMinDistance)
		}
	}
}

func TestSelectSkipsTailSegments(t *testing.T) {
	s := New(zerolog.Nop(), rand.New(rand.NewSource(1)))
	segs := []clips.Segment{
		{Start: 18 * time.Second, Score: 10},
		{Start: 10 * time.Second, Score: 5},
	}
	got := s.Select(segs, 20*time.Second, Options{MinClip: 3 * time.Second, MaxClip: 8 * time.Second})
	require.Len(t, got, 1)
	assert.Equal(t, 10*time.Second, got[0].Start)
}

func TestSelectClampsToRemaining(t *testing.T) {
	s := New(zerolog.Nop(), rand.New(rand.NewSource(3)))
	segs := []clips.Segment{{Start: 16 * time.Second, Score: 1, HasTargetFace: true, SourceIndex: 2}}
	got := s.Select(segs, 20*time.Second, Options{MinClip: 3 * time.Second, MaxClip: 8 * time.Second})
	require.Len(t, got, 1)
	assert.LessOrEqual(t, got[0].End, 20*time.Second)
	assert.True(t, got[0].HasTargetFace)
	assert.Equal(t, 2, got[0].SourceIndex)
}

func TestSelectIsReproducibleWithSeed(t *testing.T) {
	segs := rankedSegments(40*time.Second, 2*time.Second)
	opts := Options{MinClip: 2 * time.Second, MaxClip: 6 * time.Second}

	a := New(zerolog.Nop(), rand.New(rand.NewSource(42))).Select(segs, 40*time.Second, opts)
	b := New(zerolog.Nop(), rand.New(rand.NewSource(42))).Select(segs, 40*time.Second, opts)
	assert.Equal(t, a, b)
}

func TestTruncateAndFilter(t *testing.T) {
	ivs := []clips.Interval{{HasTargetFace: true}, {}, {HasTargetFace: true}}
	assert.Len(t, Truncate(ivs, 2), 2)
	assert.Len(t, Truncate(ivs, 0), 3)
	assert.Len(t, Truncate(ivs, 10), 3)
	assert.Len(t, FilterTargetFace(ivs), 2)
}
