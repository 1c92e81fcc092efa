package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ekisa-team/whisper-api/internal/config"
	"github.com/ekisa-team/whisper-api/internal/config/source"
	"github.com/ekisa-team/whisper-api/internal/envvar"
	"github.com/ekisa-team/whisper-api/internal/xfs"
)

// Artifacts holds the local paths the engine needs.
type Artifacts struct {
	ModelPath    string
	VADModelPath string
}

// Manager resolves and downloads model artifacts.
type Manager struct {
	registry      *Registry
	getDownloader func(ctx context.Context, t config.SourceType) (source.Downloader, error)
	logger        *slog.Logger
}

// NewManager creates a new Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		registry:      NewRegistry(),
		getDownloader: source.GetDownloader,
		logger:        logger,
	}
}

// Registry returns the model registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Ensure makes the whisper model and the VAD model available locally.
// Explicit paths in the engine config bypass downloads.
func (m *Manager) Ensure(ctx context.Context, cfg *config.Config) (*Artifacts, error) {
	filename, err := WhisperFilename(cfg.Engine.Model, cfg.Engine.ComputeType)
	if err != nil {
		return nil, err
	}

	modelsPath := resolveModelsPath(cfg)

	modelPath, err := m.ensureOne(ctx, IDWhisper, filename, cfg.Engine.ModelPath, cfg.Storage.Source, modelsPath)
	if err != nil {
		return nil, err
	}

	vadPath, err := m.ensureOne(ctx, IDVAD, VADFilename, cfg.Engine.VADModelPath, cfg.Storage.VADSource, modelsPath)
	if err != nil {
		return nil, err
	}

	return &Artifacts{ModelPath: modelPath, VADModelPath: vadPath}, nil
}

// LogArtifacts logs the state of every tracked artifact.
func (m *Manager) LogArtifacts() {
	for _, instance := range m.registry.List() {
		if err := instance.Err(); err != nil {
			m.logger.Error("Model artifact unavailable",
				"model_id", instance.ID,
				"file", instance.Filename,
				"status", instance.Status(),
				"error", err,
			)
			continue
		}

		m.logger.Info("Model artifact",
			"model_id", instance.ID,
			"status", instance.Status(),
			"path", instance.Path,
			"loaded_at", instance.LoadedAt(),
		)
	}
}

func (m *Manager) ensureOne(ctx context.Context, id, filename, explicit string, src config.SourceConfig, modelsPath string) (string, error) {
	if path, ok := m.loaded(id, filename, explicit); ok {
		m.logger.Debug("Model already available", "model_id", id, "path", path)
		return path, nil
	}

	instance := NewInstance(id, filename)
	m.registry.Set(instance)
	instance.SetStatus(StatusLoading)

	if explicit != "" {
		path := xfs.ExpandTilde(explicit)
		if _, err := os.Stat(path); err != nil {
			err = fmt.Errorf("model file %s: %w", path, err)
			instance.Fail(err)
			return "", err
		}

		instance.Path = path
		instance.SetStatus(StatusLoaded)
		m.logger.Info("Using configured model file", "model_id", id, "path", path)
		return path, nil
	}

	if err := source.EnsureModelsDirectory(modelsPath); err != nil {
		err = fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
		instance.Fail(err)
		return "", err
	}

	modelSource, err := src.GetSource()
	if err != nil {
		err = fmt.Errorf("failed to get model source for %s: %w", id, err)
		instance.Fail(err)
		return "", err
	}

	downloader, err := m.getDownloader(ctx, modelSource.Type())
	if err != nil {
		err = fmt.Errorf("failed to get downloader for %s: %w", id, err)
		instance.Fail(err)
		return "", err
	}

	dir, cached, err := downloader.Download(ctx, source.Artifact{ID: id, Source: src, Files: []string{filename}}, modelsPath)
	if err != nil {
		err = fmt.Errorf("failed to download model %s into %s: %w", id, modelsPath, err)
		instance.Fail(err)
		return "", err
	}

	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err != nil {
		err = fmt.Errorf("model file %s missing after download: %w", path, err)
		instance.Fail(err)
		return "", err
	}

	instance.Path = path
	instance.SetStatus(StatusLoaded)
	m.logger.Info("Model ready", "model_id", id, "path", path, "cached", cached)

	return path, nil
}

// loaded returns the path of an instance that already satisfies the request.
func (m *Manager) loaded(id, filename, explicit string) (string, bool) {
	instance, err := m.registry.Get(id)
	if err != nil || instance.Status() != StatusLoaded {
		return "", false
	}

	if explicit != "" {
		return instance.Path, instance.Path == xfs.ExpandTilde(explicit)
	}
	return instance.Path, instance.Filename == filename && filepath.Base(instance.Path) == filename
}

// resolveModelsPath returns the path to the models directory.
// Precedence:
// 1. WHISPER_API_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func resolveModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.WhisperAPIModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}
