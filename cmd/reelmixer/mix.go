package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/keagan/reelmixer/internal/ai"
	"github.com/keagan/reelmixer/internal/analyzer"
	"github.com/keagan/reelmixer/internal/assembly"
	"github.com/keagan/reelmixer/internal/config"
	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/keagan/reelmixer/internal/history"
	"github.com/keagan/reelmixer/internal/normalize"
	"github.com/keagan/reelmixer/internal/overlays"
	"github.com/keagan/reelmixer/internal/pipeline"
	"github.com/keagan/reelmixer/internal/profile"
	"github.com/keagan/reelmixer/internal/storage"
	"github.com/keagan/reelmixer/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// mixFlags override config values when set on the command line.
type mixFlags struct {
	output       string
	reference    string
	mode         string
	profile      string
	seed         int64
	duration     float64
	maxClips     int
	maxPerVideo  int
	minClip      float64
	maxClip      float64
	excludeFirst float64
	excludeLast  float64
	diversity    bool
	faceOnly     bool
	smartCrop    bool
	shuffle      bool
	smartShuffle bool
	merge        bool
	avoidText    bool
	textRemoval  string
	logo         string
	audio        string
	adaptToAudio bool
	tagline      string
	upload       bool
	keepTemp     bool
	json         bool
}

var mf mixFlags

var mixCmd = &cobra.Command{
	Use:   "mix [videos...]",
	Short: "Mix videos into one vertical reel",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		applyMixFlags(cmd, cfg)

		pipe, closeAll, err := buildPipeline(ctx, cfg, mf.keepTemp)
		if err != nil {
			return err
		}
		defer closeAll()

		req, err := buildRequest(ctx, cfg, args)
		if err != nil {
			return err
		}

		res, err := pipe.Run(ctx, req)
		if res != nil {
			for _, s := range res.Skipped {
				log.Warn().Str("input", s.Path).Err(s.Err).Msg("input skipped")
			}
			log.Info().
				Str("output", res.Output).
				Dur("duration", res.Duration).
				Int("clips", res.Clips).
				Str("url", res.URL).
				Msg("reel ready")
		}
		if err != nil {
			log.Error().Err(err).Msg("mix failed")
			return err
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [video]",
	Short: "Score a video and show which clips a mix would use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.FromContext(ctx)
		applyMixFlags(cmd, cfg)

		pipe, closeAll, err := buildPipeline(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer closeAll()

		req, err := buildRequest(ctx, cfg, args)
		if err != nil {
			return err
		}

		report, err := pipe.Analyze(ctx, args[0], req)
		if err != nil {
			return err
		}
		if mf.json {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		printReport(os.Stdout, report)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{mixCmd, analyzeCmd} {
		f := c.Flags()
		f.StringVarP(&mf.reference, "face", "f", "", "image of the person to favour")
		f.StringVarP(&mf.mode, "mode", "m", "", "analysis mode: fast, precise or very-precise")
		f.StringVar(&mf.profile, "profile", "", "execution profile: auto, standard or constrained")
		f.Int64Var(&mf.seed, "seed", 0, "random seed (0 picks one)")
		f.IntVar(&mf.maxPerVideo, "max-per-video", 0, "clips kept per video")
		f.Float64Var(&mf.minClip, "min-clip", 0, "shortest clip in seconds")
		f.Float64Var(&mf.maxClip, "max-clip", 0, "longest clip in seconds")
		f.Float64Var(&mf.excludeFirst, "exclude-first", 0, "seconds skipped at the start of each video")
		f.Float64Var(&mf.excludeLast, "exclude-last", 0, "seconds skipped at the end of each video")
		f.BoolVar(&mf.diversity, "diversity", false, "spread clips across each video")
		f.BoolVar(&mf.faceOnly, "face-only", false, "keep only clips showing the reference face")
		f.BoolVar(&mf.merge, "merge-adjacent", false, "merge adjacent good segments")
		f.BoolVar(&mf.avoidText, "avoid-text", false, "penalise segments with on-screen text")
	}

	analyzeCmd.Flags().BoolVar(&mf.json, "json", false, "print the report as JSON")

	f := mixCmd.Flags()
	f.StringVarP(&mf.output, "output", "o", "", "output file")
	f.Float64VarP(&mf.duration, "duration", "d", 0, "target reel length in seconds")
	f.IntVar(&mf.maxClips, "max-clips", 0, "cap on total clips")
	f.BoolVar(&mf.smartCrop, "smart-crop", true, "crop around faces")
	f.BoolVar(&mf.shuffle, "shuffle", true, "shuffle clip order")
	f.BoolVar(&mf.smartShuffle, "smart-shuffle", true, "interleave clips from different videos")
	f.StringVar(&mf.textRemoval, "remove-text", "", "remove on-screen text: crop or inpaint")
	f.StringVar(&mf.logo, "logo", "", "logo image")
	f.StringVar(&mf.audio, "audio", "", "background audio track")
	f.BoolVar(&mf.adaptToAudio, "adapt-to-audio", false, "fit the reel to the audio length")
	f.StringVar(&mf.tagline, "tagline", "", "closing tagline video")
	f.BoolVar(&mf.upload, "upload", false, "upload the reel to the configured bucket")
	f.BoolVar(&mf.keepTemp, "keep-temp", false, "keep intermediate files")
}

// applyMixFlags copies explicitly set flags over cfg.
func applyMixFlags(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("mode") {
		cfg.Analysis.Mode = mf.mode
	}
	if set("profile") {
		cfg.Profile = mf.profile
	}
	if set("seed") {
		cfg.Seed = mf.seed
	}
	if set("duration") {
		cfg.Output.DurationSeconds = mf.duration
	}
	if set("max-per-video") {
		cfg.Clips.MaxPerVideo = mf.maxPerVideo
	}
	if set("min-clip") {
		cfg.Clips.MinClipSeconds = mf.minClip
	}
	if set("max-clip") {
		cfg.Clips.MaxClipSeconds = mf.maxClip
	}
	if set("exclude-first") {
		cfg.Clips.ExcludeFirstSeconds = mf.excludeFirst
	}
	if set("exclude-last") {
		cfg.Clips.ExcludeLastSeconds = mf.excludeLast
	}
	if set("diversity") {
		cfg.Clips.Diversity = mf.diversity
	}
	if set("face-only") {
		cfg.Clips.FaceOnly = mf.faceOnly
	}
	if set("merge-adjacent") {
		cfg.Clips.MergeAdjacent = mf.merge
	}
	if set("avoid-text") {
		cfg.Analysis.AvoidText = mf.avoidText
	}
	if set("smart-crop") {
		cfg.Clips.SmartCrop = mf.smartCrop
	}
	if set("shuffle") {
		cfg.Clips.Shuffle = mf.shuffle
	}
	if set("smart-shuffle") {
		cfg.Clips.SmartShuffle = mf.smartShuffle
	}
	if set("remove-text") {
		cfg.Analysis.TextRemoval = mf.textRemoval
	}
	if set("logo") {
		cfg.Branding.Logo.Path = mf.logo
	}
	if set("audio") {
		cfg.Branding.Audio.Path = mf.audio
	}
	if set("adapt-to-audio") {
		cfg.Branding.Audio.AdaptToAudio = mf.adaptToAudio
	}
	if set("tagline") {
		cfg.Branding.TaglinePath = mf.tagline
	}
}

// buildPipeline wires the media backend, detectors, publisher and history
// store. The returned func releases whatever was opened.
func buildPipeline(ctx context.Context, cfg *config.Config, keepTemp bool) (*pipeline.Pipeline, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	ff, err := ffmpeg.New(log.Logger, cfg.FFmpeg.Threads, ffmpeg.WithBinary(cfg.FFmpeg.BinaryPath))
	if err != nil {
		return nil, nil, err
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Msg("close failed")
			}
		}
	}

	deps := pipeline.Deps{
		Media: ff,
		Target: normalize.Target{
			Width:  cfg.Output.Width,
			Height: cfg.Output.Height,
			FPS:    cfg.Output.FPS,
		},
		TempRoot: tempRoot(cfg),
		KeepTemp: keepTemp,
	}

	if faces, err := openFaces(cfg); err != nil {
		log.Warn().Err(err).Msg("face detection unavailable")
	} else {
		deps.Faces = faces
		closers = append(closers, faces)
	}

	if cfg.Analysis.AvoidText || cfg.Analysis.TextRemoval != "" {
		if text, err := openText(cfg); err != nil {
			log.Warn().Err(err).Msg("text detection unavailable")
		} else {
			deps.Text = text
			closers = append(closers, text)
		}
	}

	if cfg.Storage.S3.Bucket != "" {
		pub, err := storage.NewS3Publisher(ctx, log.Logger, storage.S3Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Prefix:          cfg.Storage.S3.Prefix,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		deps.Publisher = pub
	}

	if cfg.History.Enabled {
		store, err := history.Open(ctx, log.Logger, cfg.History.Path)
		if err != nil {
			log.Warn().Err(err).Msg("run history unavailable")
		} else {
			deps.History = store
			closers = append(closers, store)
		}
	}

	return pipeline.New(log.Logger, deps), closeAll, nil
}

func openFaces(cfg *config.Config) (*ai.FaceAnalyzer, error) {
	preset, err := analyzer.PresetFor(analyzer.Mode(cfg.Analysis.Mode))
	if err != nil {
		return nil, err
	}
	detector, ok := cfg.Detection.FaceModels[preset.FaceModel]
	if !ok {
		return nil, fmt.Errorf("no face model configured for %q", preset.FaceModel)
	}
	if !util.FileExists(detector) || !util.FileExists(cfg.Detection.EmbedderModel) {
		return nil, errors.New("face models not found")
	}

	fc := ai.DefaultFaceConfig(detector, cfg.Detection.EmbedderModel)
	fc.LibraryPath = cfg.Detection.ONNXLibrary
	return ai.NewFaceAnalyzer(log.Logger, fc)
}

func openText(cfg *config.Config) (*ai.TextDetector, error) {
	if !util.FileExists(cfg.Detection.EASTModel) {
		return nil, fmt.Errorf("text model %s not found", cfg.Detection.EASTModel)
	}
	tc := ai.DefaultTextDetectorConfig(cfg.Detection.EASTModel)
	tc.LibraryPath = cfg.Detection.ONNXLibrary
	return ai.NewTextDetector(log.Logger, tc)
}

func buildRequest(ctx context.Context, cfg *config.Config, inputs []string) (pipeline.Request, error) {
	prof, err := profile.Resolve(ctx, log.Logger, cfg.Profile)
	if err != nil {
		return pipeline.Request{}, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	output := mf.output
	if output == "" {
		output = filepath.Join(cfg.Storage.OutputDir, cfg.Output.Name)
	}

	req := pipeline.Request{
		Inputs:           inputs,
		Output:           output,
		Reference:        mf.reference,
		Mode:             analyzer.Mode(cfg.Analysis.Mode),
		Profile:          prof,
		Seed:             seed,
		TargetDuration:   seconds(cfg.Output.DurationSeconds),
		MaxClipsPerVideo: cfg.Clips.MaxPerVideo,
		MaxClips:         mf.maxClips,
		MinClip:          seconds(cfg.Clips.MinClipSeconds),
		MaxClip:          seconds(cfg.Clips.MaxClipSeconds),
		ExcludeFirst:     seconds(cfg.Clips.ExcludeFirstSeconds),
		ExcludeLast:      seconds(cfg.Clips.ExcludeLastSeconds),
		Diversity:        cfg.Clips.Diversity,
		FaceOnly:         cfg.Clips.FaceOnly,
		SmartCrop:        cfg.Clips.SmartCrop,
		Shuffle:          cfg.Clips.Shuffle,
		SmartShuffle:     cfg.Clips.SmartShuffle,
		MergeAdjacent:    cfg.Clips.MergeAdjacent,
		AvoidText:        cfg.Analysis.AvoidText,
		TextRemoval:      cfg.Analysis.TextRemoval,
		TextConfidence:   cfg.Detection.TextConfidence,
		FaceThreshold:    cfg.Analysis.FaceThreshold,
		FrameWidth:       cfg.Analysis.FrameWidth,
		TaglinePath:      cfg.Branding.TaglinePath,
		Upload:           mf.upload,
	}

	if l := cfg.Branding.Logo; l.Path != "" {
		anchor, err := overlays.ParseAnchor(l.Position)
		if err != nil {
			return pipeline.Request{}, err
		}
		req.Logo = &overlays.Logo{
			Path:        l.Path,
			Anchor:      anchor,
			SizePercent: l.SizePercent,
			Opacity:     l.Opacity,
			Margin:      l.Margin,
			Vertical:    l.Vertical,
		}
	}

	if a := cfg.Branding.Audio; a.Path != "" {
		req.Audio = &assembly.Audio{
			Path:       a.Path,
			Volume:     a.Volume,
			FadeIn:     seconds(a.FadeIn),
			FadeOut:    seconds(a.FadeOut),
			AdaptVideo: a.AdaptToAudio,
			Extra:      seconds(a.ExtraSeconds),
		}
	}

	log.Debug().Int64("seed", seed).Str("profile", prof.Name).Msg("request built")
	return req, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func printReport(w io.Writer, r *pipeline.Report) {
	fmt.Fprintf(w, "%s  %s  %dx%d @ %.2f fps\n\n", r.Source.Path, r.Source.Duration.Round(time.Millisecond),
		r.Source.Width, r.Source.Height, r.Source.FPS)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tSCORE\tFACES\tTARGET")
	for _, s := range r.Segments {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%d\t%t\n", s.Start, s.End, s.Score, len(s.Faces), s.HasTargetFace)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nselected %d intervals\n", len(r.Intervals))
	for _, iv := range r.Intervals {
		fmt.Fprintf(w, "  %s - %s\n", iv.Start, iv.End)
	}
}

func printRuns(w io.Writer, runs []history.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tINPUTS\tCLIPS\tPROFILE\tOUTPUT")
	for _, r := range runs {
		out := r.Output
		if r.Status == history.StatusFailed {
			out = r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID[:8], r.StartedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Inputs, r.Clips, r.Profile, out)
	}
	tw.Flush()
}
