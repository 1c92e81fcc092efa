package stub

import (
	"context"
	"fmt"
	"iter"
	"os"
	"time"

	"github.com/ekisa-team/whisper-api/internal/backend"
)

// DefaultScript is what the stub "hears" when no script is configured.
var DefaultScript = []string{" Halo,", " selamat pagi.", " Apa kabar?"}

const segmentLength = 1.5

// Backend returns deterministic segments without decoding audio.
type Backend struct {
	script []string
}

// NewBackend creates a stub backend. An empty script uses DefaultScript.
func NewBackend(script ...string) *Backend {
	if len(script) == 0 {
		script = DefaultScript
	}
	return &Backend{script: script}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.Provider {
	return backend.ProviderStub
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return nil
}

// Transcribe implements backend.Backend.
func (b *Backend) Transcribe(_ context.Context, req *backend.Request) (*backend.Response, error) {
	if _, err := os.Stat(req.AudioPath); err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrAudioNotFound, err)
	}

	language := req.Language
	if language == "" {
		language = "id"
	}

	return &backend.Response{
		Language: language,
		Duration: segmentLength * float64(len(b.script)),
		Segments: b.segments(req.Temperature),
		Metadata: &backend.ResponseMetadata{
			Provider:  b.Provider(),
			Model:     "stub",
			Timestamp: time.Now(),
		},
	}, nil
}

// segments generates segments lazily as the caller pulls them.
func (b *Backend) segments(temperature float64) iter.Seq2[backend.Segment, error] {
	return func(yield func(backend.Segment, error) bool) {
		for i, text := range b.script {
			start := segmentLength * float64(i)
			seg := backend.Segment{
				ID:               i,
				Seek:             backend.SeekFrames(start),
				Start:            start,
				End:              start + segmentLength,
				Text:             text,
				Tokens:           []int{},
				Temperature:      temperature,
				AvgLogprob:       -0.25,
				CompressionRatio: backend.CompressionRatio(text),
			}
			if !yield(seg, nil) {
				return
			}
		}
	}
}
