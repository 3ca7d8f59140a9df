package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/keagan/reelmixer/internal/analyzer"
	"github.com/keagan/reelmixer/internal/clips"
	"github.com/keagan/reelmixer/internal/media"
	"github.com/keagan/reelmixer/internal/normalize"
	"github.com/keagan/reelmixer/internal/scoring"
	"github.com/rs/zerolog"
)

const (
	minExtractDuration = time.Second
	textMergeGap       = 10
)

// extractor cuts selected intervals out of one source.
type extractor struct {
	p      *Pipeline
	mat    *media.Materializer
	src    clips.Source
	req    *Request
	preset analyzer.Preset
	target []float32
	log    zerolog.Logger
}

// extractAll materializes each interval, skipping those that fail.
func (e *extractor) extractAll(ctx context.Context, intervals []clips.Interval) ([]*media.Materialized, error) {
	var out []*media.Materialized
	for i, iv := range intervals {
		if err := ctx.Err(); err != nil {
			media.ReleaseAll(e.log, out...)
			return nil, fmt.Errorf("extraction cancelled: %w", err)
		}

		m, err := e.extract(ctx, iv, i)
		if err != nil {
			if ctx.Err() != nil {
				media.ReleaseAll(e.log, out...)
				return nil, fmt.Errorf("extraction cancelled: %w", ctx.Err())
			}
			e.log.Warn().Err(err).Dur("start", iv.Start).Msg("clip extraction failed, skipping")
			continue
		}
		if m == nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// extract writes one interval with every pending filter applied. A nil
// result means the interval was too short to use.
func (e *extractor) extract(ctx context.Context, iv clips.Interval, n int) (*media.Materialized, error) {
	end := min(iv.End, e.src.Duration)
	if end-iv.Start < minExtractDuration {
		e.log.Debug().Dur("start", iv.Start).Dur("end", end).Msg("interval too short, skipping")
		return nil, nil
	}

	req := normalize.Request{
		Size: image.Pt(e.src.Width, e.src.Height),
		FPS:  e.src.FPS,
	}

	if e.req.SmartCrop || e.req.TextRemoval != TextRemovalNone {
		frame, err := e.p.media.FrameAt(ctx, e.src.Path, iv.Start+probeOffset)
		if err != nil {
			e.log.Debug().Err(err).Msg("hint frame unreadable, using centred crop")
		} else {
			if e.req.SmartCrop {
				req.Faces = e.faceHints(ctx, frame)
			}
			e.applyTextRemoval(ctx, frame, &req)
		}
	}

	plan := normalize.PlanFor(req, e.p.target)
	clip := media.Clip{
		Source:   e.src.Path,
		Start:    iv.Start,
		Duration: end - iv.Start,
		Label:    fmt.Sprintf("v%02d_%s", e.src.Index, iv.Start),
	}.WithFilters(plan.Filters...)

	m, err := e.mat.Materialize(ctx, clip, fmt.Sprintf("clip_v%02d_%02d", e.src.Index, n))
	if err != nil {
		return nil, err
	}
	e.log.Debug().
		Dur("start", iv.Start).
		Dur("duration", m.Duration).
		Bool("crop", !plan.Crop.Empty()).
		Int("faces", len(req.Faces)).
		Msg("clip extracted")
	return m, nil
}

// faceHints returns target-matching face boxes when any are present,
// otherwise every face found.
func (e *extractor) faceHints(ctx context.Context, frame image.Image) []image.Rectangle {
	if e.p.faces == nil {
		return nil
	}
	faces, err := scoring.ObserveFaces(ctx, e.p.faces, frame, scoring.FaceQuery{
		Target:    e.target,
		Threshold: e.req.FaceThreshold,
		Model:     e.preset.FaceModel,
		Upsample:  e.preset.Upsample,
	})
	if err != nil {
		e.log.Debug().Err(err).Msg("face hints unavailable")
		return nil
	}

	var all, targets []image.Rectangle
	for _, f := range faces {
		all = append(all, f.Box)
		if f.IsTarget {
			targets = append(targets, f.Box)
		}
	}
	if len(targets) > 0 {
		return targets
	}
	return all
}

func (e *extractor) applyTextRemoval(ctx context.Context, frame image.Image, req *normalize.Request) {
	if e.req.TextRemoval == TextRemovalNone || e.p.text == nil {
		return
	}
	regions, err := e.p.text.DetectRegions(ctx, frame)
	if err != nil {
		e.log.Warn().Err(err).Msg("text detection failed, clip keeps its text")
		return
	}

	var boxes []image.Rectangle
	for _, r := range regions {
		if r.Confidence >= e.req.TextConfidence {
			boxes = append(boxes, r.Box)
		}
	}
	if len(boxes) == 0 {
		return
	}
	boxes = scoring.MergeRegions(boxes, textMergeGap)

	switch e.req.TextRemoval {
	case TextRemovalCrop:
		if crop, ok := normalize.TextCropRect(req.Size, boxes); ok {
			req.TextCrop = crop
		} else {
			e.log.Debug().Int("regions", len(boxes)).Msg("text covers too much of the frame to crop")
		}
	case TextRemovalInpaint:
		req.Inpaint = boxes
	}
}
