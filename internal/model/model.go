package model

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Status is the lifecycle state of a model artifact.
type Status string

const (
	StatusUnloaded Status = "unloaded"
	StatusLoading  Status = "loading"
	StatusLoaded   Status = "loaded"
	StatusFailed   Status = "failed"
)

// Artifact identifiers tracked by the registry.
const (
	IDWhisper = "whisper"
	IDVAD     = "vad"
)

// VADFilename is the Silero VAD model shipped for whisper.cpp.
const VADFilename = "ggml-silero-v5.1.2.bin"

// Instance is a model artifact known to the registry.
type Instance struct {
	loadedAt time.Time
	err      error
	ID       string
	Filename string
	Path     string
	status   Status
	mu       sync.RWMutex
}

// NewInstance creates an unloaded instance.
func NewInstance(id, filename string) *Instance {
	return &Instance{
		ID:       id,
		Filename: filename,
		status:   StatusUnloaded,
	}
}

// SetStatus updates the status of the instance.
func (i *Instance) SetStatus(status Status) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.status = status
	if status == StatusLoaded {
		i.loadedAt = time.Now()
		i.err = nil
	}
}

// Fail marks the instance as failed.
func (i *Instance) Fail(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.status = StatusFailed
	i.err = err
}

// Status returns the current status.
func (i *Instance) Status() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.status
}

// Err returns the last failure, if any.
func (i *Instance) Err() error {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.err
}

// LoadedAt returns when the instance reached StatusLoaded.
func (i *Instance) LoadedAt() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.loadedAt
}

// WhisperFilename maps a model size and compute type to the ggml file name
// published in the whisper.cpp model repository.
func WhisperFilename(size, computeType string) (string, error) {
	size = strings.TrimSpace(size)
	if size == "" {
		return "", ErrInvalidModel
	}

	switch strings.ToLower(strings.TrimSpace(computeType)) {
	case "", "default", "float16":
		return fmt.Sprintf("ggml-%s.bin", size), nil
	case "int8":
		return fmt.Sprintf("ggml-%s-q8_0.bin", size), nil
	case "int5":
		return fmt.Sprintf("ggml-%s-q5_1.bin", size), nil
	default:
		return "", fmt.Errorf("%w: compute type %q", ErrInvalidModel, computeType)
	}
}
