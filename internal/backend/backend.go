package backend

import (
	"context"
	"iter"
	"time"
)

// Provider is a string identifier for a backend provider.
type Provider string

const (
	ProviderWhisperServer Provider = "whisper.cpp"
	ProviderWhisperCLI    Provider = "whisper.cpp-cli"
	ProviderOpenAI        Provider = "openai"
	ProviderStub          Provider = "stub"
)

// Task selects between transcription and translation into English.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// Backend defines the core interface for transcription engines.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() Provider

	// Transcribe decodes the audio file referenced by req.
	Transcribe(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// Request encapsulates the decoding options for a single call.
type Request struct {
	// AudioPath is the path to the audio file on local disk.
	AudioPath string

	// Task is TaskTranscribe or TaskTranslate.
	Task Task

	// Language is an ISO 639-1 hint. Empty means auto-detect.
	Language string

	Temperature             float64
	BeamSize                int
	ConditionOnPreviousText bool
	VADFilter               bool
	MinSilenceDuration      time.Duration
}

// Response is the result of a decode call. Segments is a lazy, finite,
// forward-only sequence and must be drained at most once.
type Response struct {
	Segments iter.Seq2[Segment, error]
	Metadata *ResponseMetadata

	// Language is the language the engine decoded in.
	Language string

	// Duration is the length of the input audio in seconds.
	Duration float64
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Timestamp       time.Time      `json:"timestamp"`
	BackendSpecific map[string]any `json:"backend_specific,omitempty"`
	Provider        Provider       `json:"provider"`
	Model           string         `json:"model"`
}

// Segment is a contiguous span of decoded speech.
type Segment struct {
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens"`
	ID               int     `json:"id"`
	Seek             int     `json:"seek"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Temperature      float64 `json:"temperature"`
	AvgLogprob       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}
