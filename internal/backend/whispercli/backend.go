package whispercli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/tidwall/gjson"

	"github.com/ekisa-team/whisper-api/internal/backend"
)

// outputSuffix is appended to the audio path to form whisper-cli's -of base.
const outputSuffix = ".out"

// Options configures the whisper.cpp CLI backend.
type Options struct {
	Logger       *slog.Logger
	Runner       backend.CommandRunner
	BinPath      string
	ModelPath    string
	VADModelPath string
	Threads      int
}

// Backend runs whisper-cli once per request and reads its full JSON output.
type Backend struct {
	executor     *backend.Executor
	logger       *slog.Logger
	modelPath    string
	vadModelPath string
	threads      int
}

// NewBackend validates the binary and model and returns a Backend.
func NewBackend(opts Options) (*Backend, error) {
	if opts.ModelPath == "" {
		return nil, errors.New("whisper.cpp-cli: model path is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var executor *backend.Executor
	if opts.Runner != nil {
		executor = backend.NewExecutorWithRunner(opts.BinPath, 0, opts.Runner)
	} else {
		var err error
		executor, err = backend.NewExecutor(opts.BinPath, 0)
		if err != nil {
			return nil, fmt.Errorf("whisper.cpp-cli: %w", err)
		}
	}

	b := &Backend{
		executor:     executor,
		logger:       logger.With("backend", backend.ProviderWhisperCLI),
		modelPath:    opts.ModelPath,
		vadModelPath: opts.VADModelPath,
		threads:      opts.Threads,
	}
	b.logger.Info("Using whisper-cli", "binary", executor.BinaryPath(), "model", opts.ModelPath)

	return b, nil
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.Provider {
	return backend.ProviderWhisperCLI
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

	outBase := req.AudioPath + outputSuffix
	outPath := outBase + ".json"
	defer func() {
		if err := os.Remove(outPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.logger.Debug("Failed to remove whisper-cli output", "path", outPath, "error", err)
		}
	}()

	if _, _, err := b.executor.Execute(ctx, b.args(req, outBase), nil); err != nil {
		return nil, fmt.Errorf("%w: whisper-cli: %w", backend.ErrEngineFailed, err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper-cli output: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: whisper-cli produced invalid JSON", backend.ErrEngineFailed)
	}

	doc := gjson.ParseBytes(data)
	segments := parseSegments(doc, req.Temperature)

	language := req.Language
	if language == "" {
		language = backend.LanguageCode(doc.Get("result.language").String())
	}

	duration, err := wavDuration(req.AudioPath)
	if err != nil {
		b.logger.Debug("Falling back to segment end for duration", "path", req.AudioPath, "error", err)
		if n := len(segments); n > 0 {
			duration = segments[n-1].End
		}
	}

	return &backend.Response{
		Language: language,
		Duration: duration,
		Segments: backend.SliceSegments(segments),
		Metadata: &backend.ResponseMetadata{
			Provider:  b.Provider(),
			Model:     b.modelPath,
			Timestamp: time.Now(),
			BackendSpecific: map[string]any{
				"model_type": doc.Get("model.type").String(),
				"binary":     b.executor.BinaryPath(),
			},
		},
	}, nil
}

func (b *Backend) args(req *backend.Request, outBase string) []string {
	language := req.Language
	if language == "" {
		language = "auto"
	}

	args := []string{
		"-m", b.modelPath,
		"-f", req.AudioPath,
		"-ojf",
		"-of", outBase,
		"-np",
		"-l", language,
		"-tp", strconv.FormatFloat(req.Temperature, 'f', -1, 64),
		"-tpi", "0",
	}

	if req.Task == backend.TaskTranslate {
		args = append(args, "-tr")
	}
	if req.BeamSize > 0 {
		args = append(args, "-bs", strconv.Itoa(req.BeamSize))
	}
	if !req.ConditionOnPreviousText {
		args = append(args, "-mc", "0")
	}
	if req.VADFilter && b.vadModelPath != "" {
		args = append(args,
			"--vad",
			"-vm", b.vadModelPath,
			"-vsd", strconv.FormatInt(req.MinSilenceDuration.Milliseconds(), 10),
		)
	}
	if b.threads > 0 {
		args = append(args, "-t", strconv.Itoa(b.threads))
	}

	return args
}

// parseSegments reads the transcription array of whisper-cli's full JSON output.
func parseSegments(doc gjson.Result, temperature float64) []backend.Segment {
	entries := doc.Get("transcription").Array()
	segments := make([]backend.Segment, 0, len(entries))

	for i, entry := range entries {
		start := entry.Get("offsets.from").Float() / 1000
		text := entry.Get("text").String()

		tokens := []int{}
		var logprobSum float64
		var logprobCount int
		for _, token := range entry.Get("tokens").Array() {
			if strings.HasPrefix(token.Get("text").String(), "[_") {
				continue
			}
			tokens = append(tokens, int(token.Get("id").Int()))
			if p := token.Get("p").Float(); p > 0 {
				logprobSum += math.Log(p)
				logprobCount++
			}
		}

		var avgLogprob float64
		if logprobCount > 0 {
			avgLogprob = logprobSum / float64(logprobCount)
		}

		segments = append(segments, backend.Segment{
			ID:               i,
			Seek:             backend.SeekFrames(start),
			Start:            start,
			End:              entry.Get("offsets.to").Float() / 1000,
			Text:             text,
			Tokens:           tokens,
			Temperature:      temperature,
			AvgLogprob:       avgLogprob,
			CompressionRatio: backend.CompressionRatio(text),
		})
	}

	return segments
}

// wavDuration returns the duration of a WAV file in seconds.
func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return 0, errors.New("not a valid WAV file")
	}

	// Duration() counts header bytes, so size the data chunk instead.
	if err := decoder.FwdToPCM(); err != nil {
		return 0, err
	}
	if decoder.AvgBytesPerSec == 0 {
		return 0, errors.New("WAV header has no byte rate")
	}

	return float64(decoder.PCMSize) / float64(decoder.AvgBytesPerSec), nil
}
