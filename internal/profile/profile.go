package profile

import (
	"context"
	"fmt"
	"runtime"

	"github.com/keagan/reelmixer/internal/ffmpeg"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Profile names.
const (
	NameAuto        = "auto"
	NameStandard    = "standard"
	NameConstrained = "constrained"
)

// ConstrainedMemoryBytes is the available-memory level below which Detect
// picks the constrained profile.
const ConstrainedMemoryBytes = 2 << 30

// ExecutionProfile tunes assembly for the host it runs on. It is passed
// explicitly to whatever needs it.
type ExecutionProfile struct {
	Name         string
	BatchSize    int
	ConcatMethod ffmpeg.ConcatMethod
	MaxClips     int
	MaxPerVideo  int // 0 means no per-video cap
	Preset       string
	Threads      int
	Bitrate      string
}

// Standard is the default profile.
func Standard() ExecutionProfile {
	return ExecutionProfile{
		Name:         NameStandard,
		BatchSize:    5,
		ConcatMethod: ffmpeg.ConcatFilter,
		MaxClips:     10,
		MaxPerVideo:  0,
		Preset:       "fast",
		Threads:      4,
		Bitrate:      "6000k",
	}
}

// Constrained trades quality for a smaller memory footprint.
func Constrained() ExecutionProfile {
	return ExecutionProfile{
		Name:         NameConstrained,
		BatchSize:    2,
		ConcatMethod: ffmpeg.ConcatDemuxer,
		MaxClips:     6,
		MaxPerVideo:  2,
		Preset:       "ultrafast",
		Threads:      2,
		Bitrate:      "4000k",
	}
}

// Constrained reports whether this is the low-memory profile.
func (p ExecutionProfile) Constrained() bool {
	return p.Name == NameConstrained
}

// PerVideoCap applies the profile's per-video cap to n.
func (p ExecutionProfile) PerVideoCap(n int) int {
	if p.MaxPerVideo > 0 && (n <= 0 || n > p.MaxPerVideo) {
		return p.MaxPerVideo
	}
	return n
}

// Resolve maps a profile name to a profile. "auto" and "" detect.
func Resolve(ctx context.Context, logger zerolog.Logger, name string) (ExecutionProfile, error) {
	switch name {
	case NameStandard:
		return Standard(), nil
	case NameConstrained:
		return Constrained(), nil
	case NameAuto, "":
		return Detect(ctx, logger), nil
	default:
		return ExecutionProfile{}, fmt.Errorf("unknown execution profile %q", name)
	}
}

// Detect picks Constrained when available memory is under 2 GiB. When the
// host cannot be inspected it falls back to Standard.
func Detect(ctx context.Context, logger zerolog.Logger) ExecutionProfile {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("memory stats unavailable, using standard profile")
		return Standard()
	}

	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}

	p := choose(vm.Available)
	if cores < p.Threads {
		p.Threads = cores
	}

	logger.Info().
		Str("profile", p.Name).
		Uint64("available_mb", vm.Available/(1024*1024)).
		Int("cores", cores).
		Msg("execution profile selected")

	return p
}

func choose(available uint64) ExecutionProfile {
	if available < ConstrainedMemoryBytes {
		return Constrained()
	}
	return Standard()
}
