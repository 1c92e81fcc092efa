package whisperserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ekisa-team/whisper-api/internal/backend"
)

const (
	// BackendName identifies the spawned server process.
	BackendName = "whisper.cpp"

	healthPath    = "/health"
	inferencePath = "/inference"
)

// Options configures the whisper.cpp server backend.
type Options struct {
	Logger       *slog.Logger
	BinPath      string
	ModelPath    string
	VADModelPath string
	// ServerURL attaches to an already running whisper-server instead of spawning one.
	ServerURL    string
	Port         int
	Threads      int
	ReadyTimeout time.Duration
	Convert      bool
}

// Backend implements backend.Backend for whisper.cpp's HTTP server.
type Backend struct {
	serverManager *backend.ServerManager
	client        *http.Client
	logger        *slog.Logger
	baseURL       string
	modelPath     string
	port          int
	vad           bool
}

// TranscriptionResponse represents a verbose_json response from whisper-server.
type TranscriptionResponse struct {
	Task                        string              `json:"task,omitempty"`
	Language                    string              `json:"language,omitempty"`
	Text                        string              `json:"text,omitempty"`
	DetectedLanguage            string              `json:"detected_language,omitempty"`
	Segments                    []TranscriptSegment `json:"segments,omitempty"`
	Duration                    float64             `json:"duration,omitempty"`
	DetectedLanguageProbability float64             `json:"detected_language_probability,omitempty"`
}

// TranscriptSegment represents a single segment in the transcription.
type TranscriptSegment struct {
	Text         string  `json:"text"`
	Tokens       []int   `json:"tokens,omitempty"`
	ID           int     `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Temperature  float64 `json:"temperature,omitempty"`
	AvgLogprob   float64 `json:"avg_logprob,omitempty"`
	NoSpeechProb float64 `json:"no_speech_prob,omitempty"`
}

// errorResponse is the body whisper-server returns on failure.
type errorResponse struct {
	Error string `json:"error"`
}

// NewBackend starts (or attaches to) a whisper-server and waits for it to be ready.
func NewBackend(ctx context.Context, opts Options) (*Backend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backend{
		logger:    logger.With("backend", BackendName),
		modelPath: opts.ModelPath,
		port:      opts.Port,
		vad:       opts.VADModelPath != "",
		// Decoding long audio has no upper bound.
		client: &http.Client{},
	}

	if opts.ServerURL != "" {
		b.baseURL = strings.TrimRight(opts.ServerURL, "/")
		if err := backend.WaitForServer(ctx, b.baseURL+healthPath, readyTimeout(opts), nil); err != nil {
			return nil, fmt.Errorf("whisper-server at %s is not ready: %w", b.baseURL, err)
		}
		b.logger.Info("Attached to whisper-server", "url", b.baseURL)
		return b, nil
	}

	if opts.ModelPath == "" {
		return nil, fmt.Errorf("whisper.cpp: model path is required")
	}

	b.serverManager = backend.NewServerManager(logger)
	b.baseURL = fmt.Sprintf("http://127.0.0.1:%d", opts.Port)

	if err := b.serverManager.StartServer(ctx, backend.ServerConfig{
		Name:         BackendName,
		BinPath:      opts.BinPath,
		Args:         serverArgs(opts),
		Port:         opts.Port,
		HealthPath:   healthPath,
		ReadyTimeout: readyTimeout(opts),
		Output:       newLogWriter(b.logger),
	}); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	return b, nil
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.Provider {
	return backend.ProviderWhisperServer
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	if b.serverManager == nil {
		return nil
	}
	return b.serverManager.StopServer(BackendName, b.port)
}

// Transcribe implements backend.Backend.
func (b *Backend) Transcribe(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	audio, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrAudioNotFound, err)
	}
	defer audio.Close()

	body, contentType := b.multipartBody(audio, filepath.Base(req.AudioPath), req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+inferencePath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var transcription TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcription); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	language := req.Language
	if language == "" {
		language = backend.LanguageCode(transcription.Language)
	}

	return &backend.Response{
		Language: language,
		Duration: transcription.Duration,
		Segments: segments(transcription.Segments),
		Metadata: &backend.ResponseMetadata{
			Provider:  b.Provider(),
			Model:     b.modelPath,
			Timestamp: time.Now(),
			BackendSpecific: map[string]any{
				"detected_language":             transcription.DetectedLanguage,
				"detected_language_probability": transcription.DetectedLanguageProbability,
			},
		},
	}, nil
}

// multipartBody streams the audio file and decoding options as a multipart form.
func (b *Backend) multipartBody(audio io.Reader, filename string, req *backend.Request) (io.Reader, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(b.writeForm(writer, audio, filename, req))
	}()

	return pr, writer.FormDataContentType()
}

func (b *Backend) writeForm(w *multipart.Writer, audio io.Reader, filename string, req *backend.Request) error {
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}

	for _, field := range b.formFields(req) {
		if err := w.WriteField(field[0], field[1]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", field[0], err)
		}
	}

	return w.Close()
}

// formFields maps a request onto whisper-server form fields.
func (b *Backend) formFields(req *backend.Request) [][2]string {
	language := req.Language
	if language == "" {
		language = "auto"
	}

	fields := [][2]string{
		{"response_format", "verbose_json"},
		{"language", language},
		{"temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64)},
		{"temperature_inc", "0"},
		{"translate", strconv.FormatBool(req.Task == backend.TaskTranslate)},
	}

	if req.BeamSize > 0 {
		fields = append(fields, [2]string{"beam_size", strconv.Itoa(req.BeamSize)})
	}
	if !req.ConditionOnPreviousText {
		fields = append(fields, [2]string{"max_context", "0"})
	}
	if req.VADFilter && b.vad {
		fields = append(fields,
			[2]string{"vad", "true"},
			[2]string{"vad_min_silence_duration_ms", strconv.FormatInt(req.MinSilenceDuration.Milliseconds(), 10)},
		)
	}

	return fields
}

func segments(raw []TranscriptSegment) iter.Seq2[backend.Segment, error] {
	return func(yield func(backend.Segment, error) bool) {
		for _, s := range raw {
			seg := backend.Segment{
				ID:               s.ID,
				Seek:             backend.SeekFrames(s.Start),
				Start:            s.Start,
				End:              s.End,
				Text:             s.Text,
				Tokens:           s.Tokens,
				Temperature:      s.Temperature,
				AvgLogprob:       s.AvgLogprob,
				CompressionRatio: backend.CompressionRatio(s.Text),
				NoSpeechProb:     s.NoSpeechProb,
			}
			if seg.Tokens == nil {
				seg.Tokens = []int{}
			}
			if !yield(seg, nil) {
				return
			}
		}
	}
}

func decodeError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%w: whisper-server: %s", backend.ErrEngineFailed, e.Error)
	}

	return fmt.Errorf("%w: request failed with status code %d: %s", backend.ErrEngineFailed, resp.StatusCode, strings.TrimSpace(string(body)))
}

func serverArgs(opts Options) []string {
	args := []string{
		"--model", opts.ModelPath,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(opts.Port),
	}

	if opts.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(opts.Threads))
	}
	if opts.Convert {
		args = append(args, "--convert")
	}
	if opts.VADModelPath != "" {
		args = append(args, "--vad", "--vad-model", opts.VADModelPath)
	}

	return args
}

func readyTimeout(opts Options) time.Duration {
	if opts.ReadyTimeout > 0 {
		return opts.ReadyTimeout
	}
	return 60 * time.Second
}
