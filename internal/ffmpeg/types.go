package ffmpeg

import "time"

// VideoInfo contains metadata about a media file
type VideoInfo struct {
	FilePath     string
	Duration     time.Duration
	Width        int
	Height       int
	FPS          float64
	Bitrate      int64
	VideoCodec   string
	HasVideo     bool
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	Speed   string
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	Threads         int
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF          = 23
	DefaultPreset       = "fast"
	DefaultVideoCodec   = "libx264"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "128k"
	DefaultPixelFormat  = "yuv420p"
)

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)

// ConcatMethod selects how Concat joins its inputs.
type ConcatMethod string

const (
	// ConcatFilter decodes every input through one concat filter graph and re-encodes.
	ConcatFilter ConcatMethod = "filter"
	// ConcatDemuxer streams inputs through the concat demuxer, copying when possible.
	// Only one input is decoded at a time, which keeps memory flat.
	ConcatDemuxer ConcatMethod = "demuxer"
)

// Valid reports whether m names a known method.
func (m ConcatMethod) Valid() bool {
	return m == ConcatFilter || m == ConcatDemuxer
}
