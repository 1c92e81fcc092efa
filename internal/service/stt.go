package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ekisa-team/whisper-api/internal/backend"
	"github.com/ekisa-team/whisper-api/internal/telemetry"
	"github.com/ekisa-team/whisper-api/internal/xfs"
)

const (
	// DefaultLanguage is applied when a transcription request carries no language.
	DefaultLanguage = "id"
	// LanguageAuto asks the engine to detect the language.
	LanguageAuto = "auto"
	// TranslationLanguage is the language every translation is reported in.
	TranslationLanguage = "en"

	FormatJSON        = "json"
	FormatVerboseJSON = "verbose_json"

	beamSize           = 1
	minSilenceDuration = 500 * time.Millisecond
	audioSuffix        = ".wav"
	previewLength      = 100
)

// Upload is a transcription or translation request as received from a client.
type Upload struct {
	// Audio is nil when the request carried no file part.
	Audio          io.Reader
	Filename       string
	Language       string
	Model          string
	ResponseFormat string
	// Temperature is the raw form value, "0" when the client sent none.
	// It is parsed during processing.
	Temperature string
}

// Transcription is the result returned to clients.
type Transcription struct {
	Text     string            `json:"text"`
	Language string            `json:"language"`
	Segments []backend.Segment `json:"segments,omitzero"`
	Duration float64           `json:"duration"`
}

// Options configures an STT service.
type Options struct {
	Logger   *slog.Logger
	Recorder *telemetry.Recorder
	TempDir  string
}

// STT adapts uploads onto the transcription engine.
type STT struct {
	backend  backend.Backend
	logger   *slog.Logger
	recorder *telemetry.Recorder
	tempDir  string
}

// NewSTT creates a new STT service. A nil backend leaves the service in the
// not-loaded state.
func NewSTT(b backend.Backend, opts Options) *STT {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &STT{
		backend:  b,
		logger:   logger,
		recorder: opts.Recorder,
		tempDir:  opts.TempDir,
	}
}

// Ready reports whether the engine is loaded.
func (s *STT) Ready() bool {
	return s != nil && s.backend != nil
}

// Transcribe transcribes the uploaded audio in its spoken language.
func (s *STT) Transcribe(ctx context.Context, upload *Upload) (*Transcription, error) {
	return s.run(ctx, backend.TaskTranscribe, upload)
}

// Translate transcribes the uploaded audio into English.
func (s *STT) Translate(ctx context.Context, upload *Upload) (*Transcription, error) {
	return s.run(ctx, backend.TaskTranslate, upload)
}

func (s *STT) run(ctx context.Context, task backend.Task, upload *Upload) (result *Transcription, err error) {
	if !s.Ready() {
		return nil, ErrModelNotLoaded
	}
	if upload == nil || upload.Audio == nil {
		return nil, ErrNoFile
	}
	if upload.Filename == "" {
		return nil, ErrNoFileSelected
	}

	if task == backend.TaskTranslate {
		s.logger.Info("Translating audio file", "filename", upload.Filename)
	} else {
		s.logger.Info("Transcribing audio file", "filename", upload.Filename)
	}

	metrics := s.recorder.StartRequest(string(task), upload.Filename)
	start := time.Now()
	segmentCount := 0
	defer func() {
		var audioSeconds float64
		if result != nil {
			audioSeconds = result.Duration
		}
		metrics.Finish(segmentCount, audioSeconds, err)
		if err != nil {
			s.logger.Error("Failed to process audio", "task", task, "filename", upload.Filename, "error", err)
		}
	}()

	temperature, err := parseTemperature(upload.Temperature)
	if err != nil {
		return nil, err
	}

	tmp, err := xfs.SpoolTemp(s.tempDir, audioSuffix, upload.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	defer func() {
		if err := tmp.Remove(); err != nil {
			s.logger.Debug("Failed to remove temp file", "path", tmp.Path(), "error", err)
		}
	}()

	req := &backend.Request{
		AudioPath:               tmp.Path(),
		Task:                    task,
		Temperature:             temperature,
		BeamSize:                beamSize,
		ConditionOnPreviousText: false,
		VADFilter:               true,
		MinSilenceDuration:      minSilenceDuration,
	}
	if task == backend.TaskTranscribe {
		req.Language = languageHint(upload.Language)
	}

	// Client disconnects do not cancel decoding.
	resp, err := s.backend.Transcribe(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}
	if md := resp.Metadata; md != nil {
		s.logger.Debug("Engine response",
			"provider", md.Provider,
			"model", md.Model,
			"timestamp", md.Timestamp,
			"details", md.BackendSpecific,
		)
	}

	var text strings.Builder
	segments := []backend.Segment{}
	for segment, err := range resp.Segments {
		if err != nil {
			return nil, fmt.Errorf("failed to read segment %d: %w", len(segments), err)
		}

		segment.ID = len(segments)
		if segment.Tokens == nil {
			segment.Tokens = []int{}
		}
		text.WriteString(segment.Text)
		segments = append(segments, segment)
	}
	segmentCount = len(segments)

	result = &Transcription{
		Text:     strings.TrimSpace(text.String()),
		Language: resp.Language,
		Duration: resp.Duration,
	}
	if task == backend.TaskTranslate {
		result.Language = TranslationLanguage
	}
	if upload.ResponseFormat == FormatVerboseJSON {
		result.Segments = segments
	}

	s.logger.Info("Audio processed",
		"task", task,
		"elapsed", time.Since(start).Seconds(),
		"preview", preview(result.Text),
	)

	return result, nil
}

// languageHint maps the client's language field onto the engine hint.
// An empty hint asks the engine to detect the language.
func languageHint(language string) string {
	language = strings.TrimSpace(language)
	switch {
	case language == "":
		return DefaultLanguage
	case strings.EqualFold(language, LanguageAuto):
		return ""
	default:
		return language
	}
}

// parseTemperature accepts surrounding whitespace but not an empty value.
func parseTemperature(raw string) (float64, error) {
	t, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: could not convert string to float: '%s'", ErrInvalidArgument, raw)
	}
	return t, nil
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}

	runes := []rune(text)
	return string(runes[:previewLength]) + "..."
}
