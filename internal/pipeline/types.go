package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/keagan/reelmixer/internal/analyzer"
	"github.com/keagan/reelmixer/internal/assembly"
	"github.com/keagan/reelmixer/internal/clips"
	"github.com/keagan/reelmixer/internal/overlays"
	"github.com/keagan/reelmixer/internal/profile"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrFileTooLarge      = errors.New("video file too large")
	ErrNoReferenceFace   = errors.New("no face found in reference image")
	ErrNoUsableInputs    = errors.New("no usable input videos")
	ErrNoClipsExtracted  = errors.New("no clips could be extracted")
)

// InputError is an input that was skipped. The run continues without it.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// TextRemoval names how on-screen text is cleared from extracted clips.
const (
	TextRemovalNone    = ""
	TextRemovalCrop    = "crop"
	TextRemovalInpaint = "inpaint"
)

// Request is one mix.
type Request struct {
	Inputs    []string `validate:"required,min=1,dive,required"`
	Output    string   `validate:"required"`
	Reference string   // optional image of the person to favour

	Mode    analyzer.Mode `validate:"oneof=fast precise very-precise"`
	Profile profile.ExecutionProfile
	Seed    int64

	TargetDuration   time.Duration `validate:"gte=0"`
	MaxClipsPerVideo int           `validate:"gte=0"`
	MaxClips         int           `validate:"gte=0"` // lowers the profile cap when set
	MinClip          time.Duration `validate:"gt=0"`
	MaxClip          time.Duration `validate:"gtefield=MinClip"`
	ExcludeFirst     time.Duration `validate:"gte=0"`
	ExcludeLast      time.Duration `validate:"gte=0"`

	Diversity     bool
	FaceOnly      bool
	SmartCrop     bool
	Shuffle       bool
	SmartShuffle  bool
	MergeAdjacent bool

	AvoidText      bool
	TextRemoval    string  `validate:"omitempty,oneof=crop inpaint"`
	TextConfidence float64 `validate:"gte=0,lte=1"`
	FaceThreshold  float64 `validate:"gt=0,lte=1"`
	FrameWidth     int     `validate:"gte=0"`

	Logo        *overlays.Logo
	Audio       *assembly.Audio
	TaglinePath string

	Upload bool
}

// Result describes a finished mix.
type Result struct {
	RunID    string
	Output   string
	URL      string
	Duration time.Duration
	Clips    int
	Inputs   int
	Skipped  []*InputError
}

// Report is the analysis of one video without extraction.
type Report struct {
	Source    clips.Source
	Segments  []clips.Segment
	Intervals []clips.Interval
	Target    bool
}
