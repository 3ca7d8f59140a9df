package scoring

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBackend means the detector was never loaded.
	ErrNoBackend = errors.New("backend not loaded")
	// ErrNoFace is returned when a reference image holds no detectable face.
	ErrNoFace = errors.New("no face detected")
)

// DetectionUnavailableError reports that a detector could not produce a
// result. A signal that fails this way contributes nothing to the frame
// score, which is not the same as "nothing detected".
type DetectionUnavailableError struct {
	Backend string
	Err     error
}

func (e *DetectionUnavailableError) Error() string {
	return fmt.Sprintf("%s detection unavailable: %v", e.Backend, e.Err)
}

func (e *DetectionUnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a DetectionUnavailableError.
func IsUnavailable(err error) bool {
	var target *DetectionUnavailableError
	return errors.As(err, &target)
}

func unavailable(backend string, err error) error {
	return &DetectionUnavailableError{Backend: backend, Err: err}
}
