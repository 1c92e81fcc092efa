package whisperserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/whisper-api/internal/backend"
)

type fakeServer struct {
	mu     sync.Mutex
	form   map[string]string
	upload []byte
	status int
	body   any
}

func (f *fakeServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /inference", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f.mu.Lock()
		defer f.mu.Unlock()

		f.form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			f.form[k] = v[0]
		}

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		buf := make([]byte, 64)
		n, _ := file.Read(buf)
		f.upload = buf[:n]

		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
		}
		_ = json.NewEncoder(w).Encode(f.body)
	})
	return mux
}

func (f *fakeServer) captured() (map[string]string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.form, f.upload
}

func newAttached(t *testing.T, f *fakeServer, vadModel string) *Backend {
	t.Helper()

	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	b, err := NewBackend(context.Background(), Options{
		ServerURL:    srv.URL + "/",
		VADModelPath: vadModel,
		ReadyTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return b
}

func writeAudio(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "whisper-1.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF fake audio"), 0o644))
	return path
}

func TestBackend_Transcribe(t *testing.T) {
	f := &fakeServer{body: TranscriptionResponse{
		Task:     "transcribe",
		Language: "indonesian",
		Duration: 3.2,
		Text:     " Halo, selamat pagi.",
		Segments: []TranscriptSegment{
			{ID: 0, Text: " Halo,", Start: 0, End: 1.1, Tokens: []int{50364, 389}, AvgLogprob: -0.2, NoSpeechProb: 0.01},
			{ID: 1, Text: " selamat pagi.", Start: 1.1, End: 3.2, AvgLogprob: -0.3},
		},
	}}
	b := newAttached(t, f, "/models/vad.bin")

	resp, err := b.Transcribe(context.Background(), &backend.Request{
		AudioPath:          writeAudio(t),
		Task:               backend.TaskTranscribe,
		Temperature:        0.2,
		BeamSize:           1,
		VADFilter:          true,
		MinSilenceDuration: 500 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, "id", resp.Language)
	assert.InDelta(t, 3.2, resp.Duration, 1e-9)
	assert.Equal(t, backend.ProviderWhisperServer, resp.Metadata.Provider)

	var got []backend.Segment
	for s, err := range resp.Segments {
		require.NoError(t, err)
		got = append(got, s)
	}
	require.Len(t, got, 2)
	assert.Equal(t, " Halo,", got[0].Text)
	assert.Equal(t, []int{50364, 389}, got[0].Tokens)
	assert.Equal(t, []int{}, got[1].Tokens)
	assert.Equal(t, 110, got[1].Seek)
	assert.Greater(t, got[1].CompressionRatio, 0.0)

	form, upload := f.captured()
	assert.Equal(t, "RIFF fake audio", string(upload))
	assert.Equal(t, map[string]string{
		"response_format":             "verbose_json",
		"language":                    "auto",
		"temperature":                 "0.2",
		"temperature_inc":             "0",
		"translate":                   "false",
		"beam_size":                   "1",
		"max_context":                 "0",
		"vad":                         "true",
		"vad_min_silence_duration_ms": "500",
	}, form)
}

func TestBackend_TranslateWithLanguageHint(t *testing.T) {
	f := &fakeServer{body: TranscriptionResponse{Language: "english"}}
	b := newAttached(t, f, "")

	resp, err := b.Transcribe(context.Background(), &backend.Request{
		AudioPath: writeAudio(t),
		Task:      backend.TaskTranslate,
		Language:  "id",
		VADFilter: true,
	})
	require.NoError(t, err)

	form, _ := f.captured()
	assert.Equal(t, "id", resp.Language)
	assert.Equal(t, "true", form["translate"])
	assert.Equal(t, "id", form["language"])
	// No VAD model was configured on the server.
	assert.NotContains(t, form, "vad")
}

func TestBackend_EngineError(t *testing.T) {
	f := &fakeServer{
		status: http.StatusBadRequest,
		body:   map[string]string{"error": "failed to read audio data"},
	}
	b := newAttached(t, f, "")

	_, err := b.Transcribe(context.Background(), &backend.Request{AudioPath: writeAudio(t)})
	require.ErrorIs(t, err, backend.ErrEngineFailed)
	assert.ErrorContains(t, err, "failed to read audio data")
}

func TestBackend_MissingAudio(t *testing.T) {
	b := newAttached(t, &fakeServer{}, "")

	_, err := b.Transcribe(context.Background(), &backend.Request{AudioPath: filepath.Join(t.TempDir(), "absent.wav")})
	assert.ErrorIs(t, err, backend.ErrAudioNotFound)
}

func TestNewBackend_RequiresModel(t *testing.T) {
	_, err := NewBackend(context.Background(), Options{})
	assert.ErrorContains(t, err, "model path is required")
}

func TestServerArgs(t *testing.T) {
	args := serverArgs(Options{
		ModelPath:    "/m/ggml-small-q8_0.bin",
		VADModelPath: "/m/vad.bin",
		Port:         8082,
		Threads:      4,
		Convert:      true,
	})

	assert.Equal(t, []string{
		"--model", "/m/ggml-small-q8_0.bin",
		"--host", "127.0.0.1",
		"--port", "8082",
		"--threads", "4",
		"--convert",
		"--vad", "--vad-model", "/m/vad.bin",
	}, args)
}

func TestBackend_CloseAttached(t *testing.T) {
	b := newAttached(t, &fakeServer{}, "")
	assert.NoError(t, b.Close())
}
