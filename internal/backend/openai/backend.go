package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/ekisa-team/whisper-api/internal/backend"
)

// DefaultModel is the upstream model used when none is configured.
const DefaultModel = goopenai.Whisper1

// Options configures the upstream OpenAI-compatible backend.
type Options struct {
	Logger  *slog.Logger
	BaseURL string
	APIKey  string
	Model   string
}

// Backend forwards audio to an OpenAI-compatible transcription API. Beam
// size, VAD and context conditioning cannot be controlled upstream.
type Backend struct {
	client *goopenai.Client
	logger *slog.Logger
	model  string
}

// NewBackend creates a Backend.
func NewBackend(opts Options) (*Backend, error) {
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, errors.New("openai: api key or base url is required")
	}

	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Backend{
		client: goopenai.NewClientWithConfig(cfg),
		logger: logger.With("backend", backend.ProviderOpenAI),
		model:  model,
	}, nil
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.Provider {
	return backend.ProviderOpenAI
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return nil
}

// Transcribe implements backend.Backend.
func (b *Backend) Transcribe(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if _, err := os.Stat(req.AudioPath); err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrAudioNotFound, err)
	}

	audioReq := goopenai.AudioRequest{
		Model:       b.model,
		FilePath:    req.AudioPath,
		Temperature: float32(req.Temperature),
		Format:      goopenai.AudioResponseFormatVerboseJSON,
	}

	var (
		resp goopenai.AudioResponse
		err  error
	)
	if req.Task == backend.TaskTranslate {
		resp, err = b.client.CreateTranslation(ctx, audioReq)
	} else {
		audioReq.Language = req.Language
		resp, err = b.client.CreateTranscription(ctx, audioReq)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %w", backend.ErrEngineFailed, err)
	}

	language := req.Language
	if language == "" {
		language = backend.LanguageCode(resp.Language)
	}

	segments := make([]backend.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		seg := backend.Segment{
			ID:               s.ID,
			Seek:             s.Seek,
			Start:            s.Start,
			End:              s.End,
			Text:             s.Text,
			Tokens:           s.Tokens,
			Temperature:      s.Temperature,
			AvgLogprob:       s.AvgLogprob,
			CompressionRatio: s.CompressionRatio,
			NoSpeechProb:     s.NoSpeechProb,
		}
		if seg.Tokens == nil {
			seg.Tokens = []int{}
		}
		if seg.CompressionRatio == 0 {
			seg.CompressionRatio = backend.CompressionRatio(seg.Text)
		}
		segments = append(segments, seg)
	}

	// Some compatible servers return only text.
	if len(segments) == 0 && resp.Text != "" {
		segments = append(segments, backend.Segment{
			End:              resp.Duration,
			Text:             resp.Text,
			Tokens:           []int{},
			Temperature:      req.Temperature,
			CompressionRatio: backend.CompressionRatio(resp.Text),
		})
	}

	return &backend.Response{
		Language: language,
		Duration: resp.Duration,
		Segments: backend.SliceSegments(segments),
		Metadata: &backend.ResponseMetadata{
			Provider:  b.Provider(),
			Model:     b.model,
			Timestamp: time.Now(),
			BackendSpecific: map[string]any{
				"task": resp.Task,
			},
		},
	}, nil
}
