package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/keagan/reelmixer/internal/analyzer"
	"github.com/keagan/reelmixer/internal/assembly"
	"github.com/keagan/reelmixer/internal/clips"
	"github.com/keagan/reelmixer/internal/history"
	"github.com/keagan/reelmixer/internal/media"
	"github.com/keagan/reelmixer/internal/normalize"
	"github.com/keagan/reelmixer/internal/scoring"
	"github.com/keagan/reelmixer/internal/selector"
	"github.com/keagan/reelmixer/internal/storage"
	"github.com/rs/zerolog"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Deps are the pipeline's collaborators. Faces, Text, Publisher and History
// are optional.
type Deps struct {
	Media     assembly.Renderer
	Faces     scoring.FaceBackend
	Text      scoring.TextBackend
	Target    normalize.Target
	TempRoot  string
	KeepTemp  bool
	Publisher storage.Publisher
	History   *history.Store
}

// Pipeline orchestrates the entire mixing workflow
type Pipeline struct {
	logger    zerolog.Logger
	media     assembly.Renderer
	faces     scoring.FaceBackend
	text      scoring.TextBackend
	target    normalize.Target
	tempRoot  string
	keepTemp  bool
	publisher storage.Publisher
	history   *history.Store
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, deps Deps) *Pipeline {
	target := deps.Target
	if target.Width == 0 || target.Height == 0 {
		target = normalize.DefaultTarget()
	}
	return &Pipeline{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		media:     deps.Media,
		faces:     deps.Faces,
		text:      deps.Text,
		target:    target,
		tempRoot:  deps.TempRoot,
		keepTemp:  deps.KeepTemp,
		publisher: deps.Publisher,
		history:   deps.History,
	}
}

// Run mixes req.Inputs into req.Output.
func (p *Pipeline) Run(ctx context.Context, req Request) (res *Result, err error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	preset, err := analyzer.PresetFor(req.Mode)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := p.logger.With().Str("run", runID).Logger()
	started := time.Now()

	log.Info().
		Int("inputs", len(req.Inputs)).
		Str("mode", string(req.Mode)).
		Str("profile", req.Profile.Name).
		Int64("seed", req.Seed).
		Msg("starting mix")

	p.recordStart(ctx, log, runID, req)
	defer func() {
		clipCount, output := 0, ""
		if res != nil {
			clipCount, output = res.Clips, res.Output
		}
		p.recordFinish(log, runID, clipCount, output, err)
	}()

	session, err := storage.NewSession(log, p.tempRoot)
	if err != nil {
		return nil, err
	}
	if p.keepTemp {
		log.Info().Str("dir", session.Dir).Msg("keeping session directory")
	} else {
		defer session.Sweep()
	}

	settings := media.DefaultSettings()
	settings.FPS = p.target.FPS
	if req.Profile.Threads > 0 {
		settings.Threads = req.Profile.Threads
	}
	mat := media.NewMaterializer(log, p.media, session, settings)

	sources, skipped, err := p.ingest(ctx, session, req.Inputs, settings.Threads)
	if err != nil {
		return nil, err
	}

	target := p.referenceEmbedding(ctx, req.Reference, preset.FaceModel, preset.Upsample)
	rng := rand.New(rand.NewSource(req.Seed))

	groups, err := p.extractSources(ctx, log, mat, sources, &req, preset, target, rng)
	if err != nil {
		return nil, err
	}

	limit := req.Profile.MaxClips
	if req.MaxClips > 0 && (limit == 0 || req.MaxClips < limit) {
		limit = req.MaxClips
	}
	ordered := assembly.Order(rng, groups, req.Shuffle, req.SmartShuffle, 0)
	if limit > 0 && len(ordered) > limit {
		log.Info().Int("clips", len(ordered)).Int("cap", limit).Msg("capping clip count")
		media.ReleaseAll(log, ordered[limit:]...)
		ordered = ordered[:limit]
	}
	if len(ordered) == 0 {
		return nil, ErrNoClipsExtracted
	}

	if err := ctx.Err(); err != nil {
		media.ReleaseAll(log, ordered...)
		return nil, fmt.Errorf("mix cancelled before assembly: %w", err)
	}

	asm := assembly.NewAssembler(log, p.media, mat, normalize.New(log, mat, p.target))
	assembled, err := asm.Assemble(ctx, ordered, assembly.Options{
		Profile:        req.Profile,
		TargetDuration: req.TargetDuration,
		Logo:           req.Logo,
		Audio:          req.Audio,
		TaglinePath:    req.TaglinePath,
		Output:         session.NewPath("final", ".mp4"),
	})
	if err != nil {
		return nil, fmt.Errorf("assemble: %w", err)
	}

	if err := storage.Deliver(ctx, assembled.Path, req.Output); err != nil {
		return nil, fmt.Errorf("deliver output: %w", err)
	}

	res = &Result{
		RunID:    runID,
		Output:   req.Output,
		Duration: assembled.Duration,
		Clips:    assembled.Clips,
		Inputs:   len(sources),
		Skipped:  skipped,
	}

	log.Info().
		Str("output", req.Output).
		Dur("duration", res.Duration).
		Int("clips", res.Clips).
		Dur("elapsed", time.Since(started)).
		Msg("mix complete")

	if req.Upload {
		if p.publisher == nil {
			return res, errors.New("upload requested but no storage bucket is configured")
		}
		url, err := p.publisher.Publish(ctx, req.Output, runID+".mp4")
		if err != nil {
			return res, fmt.Errorf("publish: %w", err)
		}
		res.URL = url
	}

	return res, nil
}

// extractSources analyzes, selects and extracts clips per source, one source
// at a time. Each group holds one source's clips.
func (p *Pipeline) extractSources(ctx context.Context, log zerolog.Logger, mat *media.Materializer, sources []clips.Source, req *Request, preset analyzer.Preset, target []float32, rng *rand.Rand) ([][]*media.Materialized, error) {
	an := analyzer.New(log, p.media, scoring.NewFrameScorer(log, p.faces, p.text, scoring.DefaultWeights()))
	sel := selector.New(log, rng)
	perVideo := req.Profile.PerVideoCap(req.MaxClipsPerVideo)

	var groups [][]*media.Materialized
	release := func() {
		for _, g := range groups {
			media.ReleaseAll(log, g...)
		}
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			release()
			return nil, fmt.Errorf("mix cancelled: %w", err)
		}

		_, intervals, err := p.selectIntervals(ctx, an, sel, src, req, preset, target)
		if err != nil {
			release()
			return nil, err
		}
		intervals = selector.Truncate(intervals, perVideo)
		if req.FaceOnly && target != nil {
			intervals = selector.FilterTargetFace(intervals)
		}

		ex := &extractor{
			p:      p,
			mat:    mat,
			src:    src,
			req:    req,
			preset: preset,
			target: target,
			log:    log.With().Str("video", src.Path).Logger(),
		}
		extracted, err := ex.extractAll(ctx, intervals)
		if err != nil {
			release()
			return nil, err
		}

		log.Info().
			Str("video", src.Path).
			Int("selected", len(intervals)).
			Int("extracted", len(extracted)).
			Msg("video processed")

		if len(extracted) > 0 {
			groups = append(groups, extracted)
		}
		runtime.GC()
	}
	return groups, nil
}

// selectIntervals analyzes src and picks its clip intervals.
func (p *Pipeline) selectIntervals(ctx context.Context, an *analyzer.Analyzer, sel *selector.Selector, src clips.Source, req *Request, preset analyzer.Preset, target []float32) ([]clips.Segment, []clips.Interval, error) {
	segments, err := an.Analyze(ctx, src, analyzer.Config{
		Preset:         preset,
		MinClip:        req.MinClip,
		ExcludeFirst:   req.ExcludeFirst,
		FrameWidth:     req.FrameWidth,
		Target:         target,
		FaceThreshold:  req.FaceThreshold,
		AvoidText:      req.AvoidText,
		TextAvailable:  p.text != nil,
		TextRemoval:    req.TextRemoval != TextRemovalNone,
		TextConfidence: req.TextConfidence,
		MergeAdjacent:  req.MergeAdjacent,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("analyze %s: %w", src.Path, err)
	}

	// the trailing exclusion narrows only where clips may end
	intervals := sel.Select(segments, src.Duration-req.ExcludeLast, selector.Options{
		MinClip:   req.MinClip,
		MaxClip:   req.MaxClip,
		Diversity: req.Diversity,
	})
	return segments, intervals, nil
}

// Analyze scores one video and reports the intervals a mix would pick,
// without extracting anything.
func (p *Pipeline) Analyze(ctx context.Context, path string, req Request) (*Report, error) {
	preset, err := analyzer.PresetFor(req.Mode)
	if err != nil {
		return nil, err
	}
	src, err := p.inspect(ctx, path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	target := p.referenceEmbedding(ctx, req.Reference, preset.FaceModel, preset.Upsample)

	an := analyzer.New(p.logger, p.media, scoring.NewFrameScorer(p.logger, p.faces, p.text, scoring.DefaultWeights()))
	sel := selector.New(p.logger, rand.New(rand.NewSource(req.Seed)))

	segments, intervals, err := p.selectIntervals(ctx, an, sel, src, &req, preset, target)
	if err != nil {
		return nil, err
	}
	intervals = selector.Truncate(intervals, req.Profile.PerVideoCap(req.MaxClipsPerVideo))

	return &Report{Source: src, Segments: segments, Intervals: intervals, Target: target != nil}, nil
}

func (p *Pipeline) recordStart(ctx context.Context, log zerolog.Logger, id string, req Request) {
	if p.history == nil {
		return
	}
	if err := p.history.Start(ctx, history.Run{
		ID:      id,
		Inputs:  len(req.Inputs),
		Profile: req.Profile.Name,
		Mode:    string(req.Mode),
	}); err != nil {
		log.Warn().Err(err).Msg("failed to record run start")
	}
}

func (p *Pipeline) recordFinish(log zerolog.Logger, id string, clipCount int, output string, runErr error) {
	if p.history == nil {
		return
	}
	// the run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.history.Finish(ctx, id, clipCount, output, runErr); err != nil {
		log.Warn().Err(err).Msg("failed to record run result")
	}
}
