package ai

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeMu   sync.Mutex
	runtimeRefs int
)

// acquireRuntime initializes the ONNX runtime on first use. Every successful
// call must be paired with releaseRuntime.
func acquireRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeRefs == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	runtimeRefs++
	return nil
}

func releaseRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeRefs == 0 {
		return nil
	}
	runtimeRefs--
	if runtimeRefs == 0 && ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

// session wraps a DynamicAdvancedSession and serializes Run calls.
type session struct {
	mu      sync.Mutex
	inner   *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

func openSession(modelPath, libraryPath string, inputs, outputs []string) (*session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if err := acquireRuntime(libraryPath); err != nil {
		return nil, err
	}

	inner, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, nil)
	if err != nil {
		_ = releaseRuntime()
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}
	return &session{inner: inner, inputs: inputs, outputs: outputs}, nil
}

func (s *session) run(inputs, outputs []ort.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Run(inputs, outputs)
}

func (s *session) close() error {
	if s == nil || s.inner == nil {
		return nil
	}
	err := s.inner.Destroy()
	s.inner = nil
	if rerr := releaseRuntime(); err == nil {
		err = rerr
	}
	return err
}
