package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/whisper-api/internal/backend"
	"github.com/ekisa-team/whisper-api/internal/telemetry"
)

// --- Mock types ---

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Provider() backend.Provider {
	return backend.ProviderStub
}

func (m *MockBackend) Transcribe(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*backend.Response); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) Close() error {
	return m.Called().Error(0)
}

// --- Helpers ---

func sampleResponse(language string) *backend.Response {
	return &backend.Response{
		Language: language,
		Duration: 3.5,
		Segments: backend.SliceSegments([]backend.Segment{
			{ID: 7, Text: " Halo,", Start: 0, End: 1},
			{ID: 3, Text: " selamat pagi. ", Start: 1, End: 3.5, Tokens: []int{1, 2}},
		}),
	}
}

func newService(t *testing.T, b backend.Backend) (*STT, string, *telemetry.Recorder) {
	t.Helper()

	dir := t.TempDir()
	rec := telemetry.NewRecorder(nil)
	return NewSTT(b, Options{TempDir: dir, Recorder: rec}), dir, rec
}

func upload(format string) *Upload {
	return &Upload{
		Audio:          bytes.NewReader([]byte("RIFF....WAVE")),
		Filename:       "rekaman.wav",
		ResponseFormat: format,
		Temperature:    "0",
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// --- Tests ---

func TestSTT_TranscribeJSON(t *testing.T) {
	b := new(MockBackend)
	svc, dir, rec := newService(t, b)

	b.On("Transcribe", mock.Anything, mock.MatchedBy(func(req *backend.Request) bool {
		data, err := os.ReadFile(req.AudioPath)
		return err == nil &&
			string(data) == "RIFF....WAVE" &&
			strings.HasSuffix(req.AudioPath, ".wav") &&
			req.Task == backend.TaskTranscribe &&
			req.Language == "id" &&
			req.BeamSize == 1 &&
			!req.ConditionOnPreviousText &&
			req.VADFilter &&
			req.MinSilenceDuration.Milliseconds() == 500
	})).Return(sampleResponse("id"), nil).Once()

	got, err := svc.Transcribe(context.Background(), upload(""))
	require.NoError(t, err)

	assert.Equal(t, "Halo, selamat pagi.", got.Text)
	assert.Equal(t, "id", got.Language)
	assert.InDelta(t, 3.5, got.Duration, 1e-9)
	assert.Nil(t, got.Segments)

	assertDirEmpty(t, dir)
	assert.Equal(t, uint64(1), rec.Snapshot().Requests)
	b.AssertExpectations(t)
}

func TestSTT_TranscribeVerboseAssignsIDs(t *testing.T) {
	b := new(MockBackend)
	svc, _, rec := newService(t, b)

	b.On("Transcribe", mock.Anything, mock.Anything).Return(sampleResponse("id"), nil).Once()

	got, err := svc.Transcribe(context.Background(), upload(FormatVerboseJSON))
	require.NoError(t, err)

	require.Len(t, got.Segments, 2)
	assert.Equal(t, 0, got.Segments[0].ID)
	assert.Equal(t, 1, got.Segments[1].ID)
	assert.Equal(t, []int{}, got.Segments[0].Tokens)

	var joined strings.Builder
	for _, s := range got.Segments {
		joined.WriteString(s.Text)
	}
	assert.Equal(t, strings.TrimSpace(joined.String()), got.Text)
	assert.Equal(t, uint64(2), rec.Snapshot().Segments)
}

func TestSTT_TranscribeVerboseNoSpeech(t *testing.T) {
	b := new(MockBackend)
	svc, _, _ := newService(t, b)

	b.On("Transcribe", mock.Anything, mock.Anything).
		Return(&backend.Response{Language: "id", Segments: backend.SliceSegments(nil)}, nil).Once()

	got, err := svc.Transcribe(context.Background(), upload(FormatVerboseJSON))
	require.NoError(t, err)

	assert.Empty(t, got.Text)
	assert.NotNil(t, got.Segments)
	assert.Empty(t, got.Segments)
}

func TestSTT_LanguageHint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "id"},
		{"en", "en"},
		{"auto", ""},
		{"AUTO", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			b := new(MockBackend)
			svc, _, _ := newService(t, b)

			b.On("Transcribe", mock.Anything, mock.MatchedBy(func(req *backend.Request) bool {
				return req.Language == tt.want
			})).Return(sampleResponse("en"), nil).Once()

			u := upload(FormatJSON)
			u.Language = tt.in
			_, err := svc.Transcribe(context.Background(), u)
			require.NoError(t, err)
			b.AssertExpectations(t)
		})
	}
}

func TestSTT_TranslateReportsEnglish(t *testing.T) {
	b := new(MockBackend)
	svc, dir, _ := newService(t, b)

	b.On("Transcribe", mock.Anything, mock.MatchedBy(func(req *backend.Request) bool {
		return req.Task == backend.TaskTranslate && req.Language == ""
	})).Return(sampleResponse("id"), nil).Once()

	u := upload(FormatJSON)
	u.Language = "fr"
	got, err := svc.Translate(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, "en", got.Language)
	assertDirEmpty(t, dir)
	b.AssertExpectations(t)
}

func TestSTT_Temperature(t *testing.T) {
	b := new(MockBackend)
	svc, dir, _ := newService(t, b)

	b.On("Transcribe", mock.Anything, mock.MatchedBy(func(req *backend.Request) bool {
		return req.Temperature == 0.3
	})).Return(sampleResponse("id"), nil).Once()

	u := upload(FormatJSON)
	u.Temperature = " 0.3 "
	_, err := svc.Transcribe(context.Background(), u)
	require.NoError(t, err)

	for _, raw := range []string{"hot", ""} {
		u = upload(FormatJSON)
		u.Temperature = raw
		_, err = svc.Transcribe(context.Background(), u)
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.ErrorContains(t, err, "'"+raw+"'")
	}

	assertDirEmpty(t, dir)
	b.AssertExpectations(t)
}

func TestSTT_Preconditions(t *testing.T) {
	svc, _, _ := newService(t, nil)
	assert.False(t, svc.Ready())

	_, err := svc.Transcribe(context.Background(), upload(FormatJSON))
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	b := new(MockBackend)
	svc, _, _ = newService(t, b)
	assert.True(t, svc.Ready())

	_, err = svc.Transcribe(context.Background(), &Upload{Filename: "a.wav"})
	assert.ErrorIs(t, err, ErrNoFile)

	_, err = svc.Translate(context.Background(), &Upload{Audio: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrNoFileSelected)

	b.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestSTT_EngineFailureCleansUp(t *testing.T) {
	b := new(MockBackend)
	svc, dir, rec := newService(t, b)

	b.On("Transcribe", mock.Anything, mock.Anything).Return(nil, errors.New("decoder crashed")).Once()

	_, err := svc.Transcribe(context.Background(), upload(FormatJSON))
	require.EqualError(t, err, "decoder crashed")

	assertDirEmpty(t, dir)
	assert.Equal(t, uint64(1), rec.Snapshot().Failures)
}

func TestSTT_SegmentErrorCleansUp(t *testing.T) {
	b := new(MockBackend)
	svc, dir, _ := newService(t, b)

	b.On("Transcribe", mock.Anything, mock.Anything).
		Return(&backend.Response{Segments: backend.ErrSegments(errors.New("stream broke"))}, nil).Once()

	_, err := svc.Transcribe(context.Background(), upload(FormatVerboseJSON))
	require.ErrorContains(t, err, "stream broke")

	assertDirEmpty(t, dir)
}

func TestSTT_DetachedFromRequestCancellation(t *testing.T) {
	b := new(MockBackend)
	svc, _, _ := newService(t, b)

	b.On("Transcribe", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(sampleResponse("id"), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Transcribe(ctx, upload(FormatJSON))
	require.NoError(t, err)
	b.AssertExpectations(t)
}

func TestSTT_LogsEngineMetadata(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	resp := sampleResponse("id")
	resp.Metadata = &backend.ResponseMetadata{
		Provider:        backend.ProviderWhisperServer,
		Model:           "/models/ggml-small-q8_0.bin",
		Timestamp:       time.Now(),
		BackendSpecific: map[string]any{"detected_language": "indonesian"},
	}

	b := new(MockBackend)
	b.On("Transcribe", mock.Anything, mock.Anything).Return(resp, nil).Once()

	svc := NewSTT(b, Options{Logger: logger, TempDir: t.TempDir()})
	_, err := svc.Transcribe(context.Background(), upload(FormatJSON))
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"msg":"Engine response"`)
	assert.Contains(t, out, `"model":"/models/ggml-small-q8_0.bin"`)
	assert.Contains(t, out, `"detected_language":"indonesian"`)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	long := strings.Repeat("é", 150)
	got := preview(long)
	assert.Equal(t, strings.Repeat("é", 100)+"...", got)
}
