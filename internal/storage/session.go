// Package storage manages per-run scratch space and delivery of the final
// reel to local disk or S3.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keagan/reelmixer/pkg/util"
	"github.com/rs/zerolog"
)

// sessionPrefix marks directories created by NewSession.
const sessionPrefix = "reelmixer-"

// Session is one run's scratch directory. Every intermediate file lives
// under Dir and is removed by Sweep.
type Session struct {
	ID     string
	Dir    string
	logger zerolog.Logger
}

// NewSession creates a uniquely named directory under root. An empty root
// uses the system temp directory.
func NewSession(logger zerolog.Logger, root string) (*Session, error) {
	if root == "" {
		root = os.TempDir()
	}
	id := uuid.NewString()
	dir := filepath.Join(root, sessionPrefix+id)
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	s := &Session{
		ID:     id,
		Dir:    dir,
		logger: logger.With().Str("component", "session").Str("session", id).Logger(),
	}
	s.logger.Debug().Str("dir", dir).Msg("session created")
	return s, nil
}

// NewPath returns a fresh file path inside the session. Names are unique
// across goroutines.
func (s *Session) NewPath(prefix, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s%s", prefix, uuid.NewString()[:8], ext))
}

// Sweep removes the session directory. Failures are logged.
func (s *Session) Sweep() {
	if err := os.RemoveAll(s.Dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", s.Dir).Msg("failed to remove session directory")
		return
	}
	s.logger.Debug().Str("dir", s.Dir).Msg("session swept")
}

// SweepStale removes session directories under root last modified before
// now minus olderThan. It returns the removed paths.
func SweepStale(ctx context.Context, logger zerolog.Logger, root string, olderThan time.Duration) ([]string, error) {
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	cutoff := time.Now().Add(-olderThan)
	var removed []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !e.IsDir() || !strings.HasPrefix(e.Name(), sessionPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn().Err(err).Str("dir", path).Msg("failed to remove stale session")
			continue
		}
		removed = append(removed, path)
	}

	logger.Info().Int("removed", len(removed)).Dur("older_than", olderThan).Msg("stale sessions swept")
	return removed, nil
}
