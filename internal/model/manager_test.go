package model

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/whisper-api/internal/config"
	"github.com/ekisa-team/whisper-api/internal/config/source"
	"github.com/ekisa-team/whisper-api/internal/envvar"
)

type MockDownloader struct {
	mock.Mock
}

func (m *MockDownloader) Download(ctx context.Context, artifact source.Artifact, targetDir string) (string, bool, error) {
	args := m.Called(ctx, artifact, targetDir)
	return args.String(0), args.Bool(1), args.Error(2)
}

func newTestManager(d source.Downloader) *Manager {
	m := NewManager(nil)
	m.getDownloader = func(context.Context, config.SourceType) (source.Downloader, error) {
		return d, nil
	}
	return m
}

func TestWhisperFilename(t *testing.T) {
	tests := []struct {
		size, compute, want string
	}{
		{"small", "int8", "ggml-small-q8_0.bin"},
		{"small", "float16", "ggml-small.bin"},
		{"small", "default", "ggml-small.bin"},
		{"medium", "int5", "ggml-medium-q5_1.bin"},
		{"large-v3", "", "ggml-large-v3.bin"},
	}

	for _, tt := range tests {
		got, err := WhisperFilename(tt.size, tt.compute)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := WhisperFilename("small", "int4")
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = WhisperFilename("", "int8")
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestManager_EnsureDownloads(t *testing.T) {
	t.Setenv(envvar.WhisperAPIModelsPath, "")

	modelsDir := t.TempDir()
	whisperDir := filepath.Join(modelsDir, "ggerganov/whisper.cpp")
	vadDir := filepath.Join(modelsDir, "ggml-org/whisper-vad")
	require.NoError(t, os.MkdirAll(whisperDir, 0o755))
	require.NoError(t, os.MkdirAll(vadDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(whisperDir, "ggml-small-q8_0.bin"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(vadDir, VADFilename), nil, 0o644))

	d := new(MockDownloader)
	d.On("Download", mock.Anything, mock.MatchedBy(func(a source.Artifact) bool {
		return a.ID == IDWhisper && a.Files[0] == "ggml-small-q8_0.bin"
	}), modelsDir).Return(whisperDir, false, nil).Once()
	d.On("Download", mock.Anything, mock.MatchedBy(func(a source.Artifact) bool {
		return a.ID == IDVAD && a.Files[0] == VADFilename
	}), modelsDir).Return(vadDir, true, nil).Once()

	cfg := config.Default()
	cfg.Storage.ModelsDir = modelsDir

	m := newTestManager(d)
	artifacts, err := m.Ensure(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(whisperDir, "ggml-small-q8_0.bin"), artifacts.ModelPath)
	assert.Equal(t, filepath.Join(vadDir, VADFilename), artifacts.VADModelPath)

	instances := m.Registry().List()
	require.Len(t, instances, 2)
	assert.Equal(t, IDVAD, instances[0].ID)
	assert.Equal(t, IDWhisper, instances[1].ID)
	for _, instance := range instances {
		assert.Equal(t, StatusLoaded, instance.Status())
		assert.False(t, instance.LoadedAt().IsZero())
	}

	d.AssertExpectations(t)
}

func TestManager_EnsureExplicitPaths(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.bin")
	vadPath := filepath.Join(dir, "vad.bin")
	require.NoError(t, os.WriteFile(modelPath, nil, 0o644))
	require.NoError(t, os.WriteFile(vadPath, nil, 0o644))

	d := new(MockDownloader)

	cfg := config.Default()
	cfg.Engine.ModelPath = modelPath
	cfg.Engine.VADModelPath = vadPath

	artifacts, err := newTestManager(d).Ensure(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, modelPath, artifacts.ModelPath)
	assert.Equal(t, vadPath, artifacts.VADModelPath)
	d.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_EnsureDownloadFailure(t *testing.T) {
	t.Setenv(envvar.WhisperAPIModelsPath, "")

	d := new(MockDownloader)
	d.On("Download", mock.Anything, mock.Anything, mock.Anything).Return("", false, errors.New("offline"))

	cfg := config.Default()
	cfg.Storage.ModelsDir = t.TempDir()

	m := newTestManager(d)
	_, err := m.Ensure(context.Background(), cfg)
	require.ErrorContains(t, err, "offline")

	instance, err := m.Registry().Get(IDWhisper)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, instance.Status())
	assert.Error(t, instance.Err())
}

func TestManager_EnsureMissingExplicitPath(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.ModelPath = filepath.Join(t.TempDir(), "absent.bin")

	_, err := newTestManager(new(MockDownloader)).Ensure(context.Background(), cfg)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestManager_EnsureReusesLoadedArtifacts(t *testing.T) {
	t.Setenv(envvar.WhisperAPIModelsPath, "")
	modelsDir := t.TempDir()
	whisperDir := filepath.Join(modelsDir, "whisper.cpp")
	vadDir := filepath.Join(modelsDir, "whisper-vad")
	require.NoError(t, os.MkdirAll(whisperDir, 0o755))
	require.NoError(t, os.MkdirAll(vadDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(whisperDir, "ggml-small-q8_0.bin"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(vadDir, VADFilename), nil, 0o644))

	d := new(MockDownloader)
	d.On("Download", mock.Anything, mock.MatchedBy(func(a source.Artifact) bool { return a.ID == IDWhisper }), modelsDir).
		Return(whisperDir, false, nil).Once()
	d.On("Download", mock.Anything, mock.MatchedBy(func(a source.Artifact) bool { return a.ID == IDVAD }), modelsDir).
		Return(vadDir, false, nil).Once()

	cfg := config.Default()
	cfg.Storage.ModelsDir = modelsDir

	m := newTestManager(d)
	first, err := m.Ensure(context.Background(), cfg)
	require.NoError(t, err)
	second, err := m.Ensure(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	d.AssertExpectations(t)
}

func TestManager_LogArtifacts(t *testing.T) {
	var logs bytes.Buffer

	m := NewManager(slog.New(slog.NewJSONHandler(&logs, nil)))
	loaded := NewInstance(IDWhisper, "ggml-small-q8_0.bin")
	loaded.Path = "/models/ggml-small-q8_0.bin"
	loaded.SetStatus(StatusLoaded)
	failed := NewInstance(IDVAD, VADFilename)
	failed.Fail(errors.New("offline"))
	m.Registry().Set(loaded)
	m.Registry().Set(failed)

	m.LogArtifacts()

	out := logs.String()
	assert.Contains(t, out, `"msg":"Model artifact"`)
	assert.Contains(t, out, `"path":"/models/ggml-small-q8_0.bin"`)
	assert.Contains(t, out, `"loaded_at"`)
	assert.Contains(t, out, `"msg":"Model artifact unavailable"`)
	assert.Contains(t, out, `"error":"offline"`)
}

func TestRegistry_GetMissing(t *testing.T) {
	_, err := NewRegistry().Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
