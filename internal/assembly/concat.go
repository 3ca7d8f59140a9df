package assembly

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/keagan/reelmixer/internal/media"
	"github.com/rs/zerolog"
)

var (
	// ErrNoClips is returned when there is nothing to assemble.
	ErrNoClips = errors.New("no clips to assemble")
	// ErrNothingMaterialized means every input clip failed to materialize.
	ErrNothingMaterialized = errors.New("no clip could be materialized")
	// ErrEncodeFailed is the fatal final-encode failure.
	ErrEncodeFailed = errors.New("final encode failed")
	// ErrIncompleteJoin means a join could only keep some of its clips.
	ErrIncompleteJoin = errors.New("not every clip could be joined")
)

// Concatenator joins clips, falling back to pairwise joins and finally to a
// single clip when a bulk join fails.
type Concatenator struct {
	logger zerolog.Logger
	mat    *media.Materializer
}

// NewConcatenator creates a Concatenator writing through mat.
func NewConcatenator(logger zerolog.Logger, mat *media.Materializer) *Concatenator {
	return &Concatenator{
		logger: logger.With().Str("component", "concat").Logger(),
		mat:    mat,
	}
}

// Concatenate materializes each clip, then joins them. With batchSize > 0
// the bulk join runs in groups of that size. If the bulk join fails and at
// least three clips are available, adjacent pairs are joined round by round.
// If that fails too the first clip is returned alone.
func (c *Concatenator) Concatenate(ctx context.Context, clips []media.Clip, method ffmpeg.ConcatMethod, batchSize int) (*media.Materialized, error) {
	out, _, err := c.concatenate(ctx, clips, method, batchSize)
	return out, err
}

// JoinAll is Concatenate for joins that must keep every clip. Where
// Concatenate would skip a clip or fall back to the first one, JoinAll
// returns ErrIncompleteJoin.
func (c *Concatenator) JoinAll(ctx context.Context, clips []media.Clip, method ffmpeg.ConcatMethod, batchSize int) (*media.Materialized, error) {
	out, kept, err := c.concatenate(ctx, clips, method, batchSize)
	if err != nil {
		return nil, err
	}
	if kept < len(clips) {
		media.ReleaseAll(c.logger, out)
		return nil, fmt.Errorf("%w: kept %d of %d", ErrIncompleteJoin, kept, len(clips))
	}
	return out, nil
}

// concatenate also reports how many of the clips the result holds.
func (c *Concatenator) concatenate(ctx context.Context, clips []media.Clip, method ffmpeg.ConcatMethod, batchSize int) (*media.Materialized, int, error) {
	switch len(clips) {
	case 0:
		return nil, 0, ErrNoClips
	case 1:
		m, err := c.mat.Materialize(ctx, clips[0], "single")
		if err != nil {
			return nil, 0, err
		}
		return m, 1, nil
	}

	mats := make([]*media.Materialized, 0, len(clips))
	for i, clip := range clips {
		m, err := c.mat.Materialize(ctx, clip, fmt.Sprintf("part_%02d", i))
		if err != nil {
			if ctx.Err() != nil {
				media.ReleaseAll(c.logger, mats...)
				return nil, 0, ctx.Err()
			}
			c.logger.Warn().Err(err).Int("clip", i).Msg("skipping clip that failed to materialize")
			continue
		}
		mats = append(mats, m)
	}

	switch len(mats) {
	case 0:
		return nil, 0, ErrNothingMaterialized
	case 1:
		return mats[0], 1, nil
	}

	out, err := c.bulk(ctx, mats, method, batchSize)
	if err == nil {
		media.ReleaseAll(c.logger, mats...)
		return out, len(mats), nil
	}
	if ctx.Err() != nil {
		media.ReleaseAll(c.logger, mats...)
		return nil, 0, ctx.Err()
	}
	c.logger.Warn().Err(err).Int("clips", len(mats)).Msg("bulk concatenation failed")

	if len(mats) >= 3 {
		out, err = c.tournament(ctx, mats, method)
		if err == nil {
			media.ReleaseAll(c.logger, mats...)
			return out, len(mats), nil
		}
		if ctx.Err() != nil {
			media.ReleaseAll(c.logger, mats...)
			return nil, 0, ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("pairwise concatenation failed")
	}

	c.logger.Warn().Int("dropped", len(mats)-1).Msg("falling back to the first clip only")
	media.ReleaseAll(c.logger, mats[1:]...)
	return mats[0], 1, nil
}

// bulk joins mats in one pass, or in groups of batchSize whose results are
// joined again until one clip remains. Intermediates are released.
func (c *Concatenator) bulk(ctx context.Context, mats []*media.Materialized, method ffmpeg.ConcatMethod, batchSize int) (*media.Materialized, error) {
	if batchSize <= 1 || len(mats) <= batchSize {
		return c.join(ctx, mats, method, "concat")
	}

	var groups []*media.Materialized
	for start := 0; start < len(mats); start += batchSize {
		end := min(start+batchSize, len(mats))
		part := mats[start:end]

		if len(part) == 1 {
			m, err := c.mat.Materialize(ctx, part[0].Handle(), "group")
			if err != nil {
				media.ReleaseAll(c.logger, groups...)
				return nil, err
			}
			groups = append(groups, m)
			continue
		}

		m, err := c.join(ctx, part, method, "group")
		if err != nil {
			media.ReleaseAll(c.logger, groups...)
			return nil, fmt.Errorf("group %d: %w", start/batchSize, err)
		}
		groups = append(groups, m)
	}

	c.logger.Debug().Int("groups", len(groups)).Int("batch_size", batchSize).Msg("joined clip groups")

	out, err := c.bulk(ctx, groups, method, batchSize)
	media.ReleaseAll(c.logger, groups...)
	return out, err
}

// tournament joins adjacent pairs each round, carrying an odd clip over,
// until one remains. Any failed pair aborts.
func (c *Concatenator) tournament(ctx context.Context, mats []*media.Materialized, method ffmpeg.ConcatMethod) (*media.Materialized, error) {
	owned := make(map[*media.Materialized]bool)
	release := func(ms ...*media.Materialized) {
		for _, m := range ms {
			if owned[m] {
				media.ReleaseAll(c.logger, m)
				delete(owned, m)
			}
		}
	}

	round := mats
	for r := 1; len(round) > 1; r++ {
		if err := ctx.Err(); err != nil {
			release(round...)
			return nil, err
		}

		next := make([]*media.Materialized, 0, (len(round)+1)/2)
		for i := 0; i+1 < len(round); i += 2 {
			joined, err := c.join(ctx, round[i:i+2], method, fmt.Sprintf("pair_r%d", r))
			if err != nil {
				release(round...)
				release(next...)
				return nil, fmt.Errorf("round %d pair %d: %w", r, i/2, err)
			}
			owned[joined] = true
			next = append(next, joined)
		}
		if len(round)%2 == 1 {
			next = append(next, round[len(round)-1])
		}

		c.logger.Debug().Int("round", r).Int("remaining", len(next)).Msg("pairwise round complete")

		carried := map[*media.Materialized]bool{}
		for _, m := range next {
			carried[m] = true
		}
		for _, m := range round {
			if !carried[m] {
				release(m)
			}
		}
		round = next
	}

	// the last survivor may be an input, which the caller still owns
	if !owned[round[0]] {
		return c.mat.Materialize(ctx, round[0].Handle(), "tournament")
	}
	return round[0], nil
}

// join concatenates inputs once and reopens the result.
func (c *Concatenator) join(ctx context.Context, inputs []*media.Materialized, method ffmpeg.ConcatMethod, name string) (*media.Materialized, error) {
	paths := make([]string, len(inputs))
	for i, m := range inputs {
		paths[i] = m.Path
	}

	settings := c.mat.Settings()
	out := c.mat.Workspace().NewPath(name, ".mp4")
	err := c.mat.Media().Concat(ctx, ffmpeg.ConcatOptions{
		Inputs:  paths,
		Output:  out,
		Method:  method,
		Preset:  settings.Preset,
		CRF:     settings.CRF,
		FPS:     settings.FPS,
		Threads: settings.Threads,
	})
	if err != nil {
		c.discard(out)
		return nil, err
	}

	m, err := c.mat.Open(ctx, out)
	if err != nil {
		c.discard(out)
		return nil, fmt.Errorf("concat output invalid: %w", err)
	}
	return m, nil
}

func (c *Concatenator) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn().Err(err).Str("path", path).Msg("failed to remove partial concat output")
	}
}
