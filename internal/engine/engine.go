// Package engine constructs the transcription backend selected in the config.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ekisa-team/whisper-api/internal/backend"
	"github.com/ekisa-team/whisper-api/internal/backend/openai"
	"github.com/ekisa-team/whisper-api/internal/backend/stub"
	"github.com/ekisa-team/whisper-api/internal/backend/whispercli"
	"github.com/ekisa-team/whisper-api/internal/backend/whisperserver"
	"github.com/ekisa-team/whisper-api/internal/config"
	"github.com/ekisa-team/whisper-api/internal/model"
)

// ArtifactEnsurer makes model files available locally.
type ArtifactEnsurer interface {
	Ensure(ctx context.Context, cfg *config.Config) (*model.Artifacts, error)
}

// Initializer builds the engine handle once at startup.
type Initializer struct {
	artifacts ArtifactEnsurer
	registry  *backend.Registry
	logger    *slog.Logger
	cfg       *config.Config
}

// NewInitializer registers every supported backend.
func NewInitializer(cfg *config.Config, artifacts ArtifactEnsurer, logger *slog.Logger) (*Initializer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	initializer := &Initializer{
		artifacts: artifacts,
		registry:  backend.NewRegistry(),
		logger:    logger,
		cfg:       cfg,
	}

	factories := map[backend.Provider]backend.Factory{
		backend.ProviderWhisperServer: initializer.newWhisperServer,
		backend.ProviderWhisperCLI:    initializer.newWhisperCLI,
		backend.ProviderOpenAI:        initializer.newOpenAI,
		backend.ProviderStub:          initializer.newStub,
	}
	for p, f := range factories {
		if err := initializer.registry.Register(p, f); err != nil {
			return nil, err
		}
	}

	return initializer, nil
}

// Init resolves the model for CPU inference and starts the configured backend.
func (i *Initializer) Init(ctx context.Context) (backend.Backend, error) {
	provider := backend.Provider(i.cfg.Engine.Backend)

	i.logger.Info("Loading Whisper model",
		"backend", provider,
		"model", i.cfg.Engine.Model,
		"compute_type", i.cfg.Engine.ComputeType,
	)

	b, err := i.registry.New(ctx, provider)
	if err != nil {
		return nil, err
	}

	i.logger.Info("Whisper model loaded successfully", "backend", b.Provider())
	return b, nil
}

// Init is a shorthand for NewInitializer followed by Initializer.Init.
func Init(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	manager := model.NewManager(logger)
	initializer, err := NewInitializer(cfg, manager, logger)
	if err != nil {
		return nil, err
	}

	b, err := initializer.Init(ctx)
	manager.LogArtifacts()
	return b, err
}

func (i *Initializer) newWhisperServer(ctx context.Context) (backend.Backend, error) {
	e := i.cfg.Engine
	opts := whisperserver.Options{
		Logger:       i.logger,
		BinPath:      orDefault(e.BinPath, config.DefaultWhisperServer),
		ServerURL:    e.ServerURL,
		Port:         e.Port,
		Threads:      e.Threads,
		ReadyTimeout: e.ReadyTimeout(),
		Convert:      e.Convert,
		// An attached server loads its own VAD model; a configured path
		// tells us it has one.
		VADModelPath: e.VADModelPath,
	}

	if e.ServerURL == "" {
		artifacts, err := i.ensure(ctx)
		if err != nil {
			return nil, err
		}
		opts.ModelPath = artifacts.ModelPath
		opts.VADModelPath = artifacts.VADModelPath
	}

	return whisperserver.NewBackend(ctx, opts)
}

func (i *Initializer) newWhisperCLI(ctx context.Context) (backend.Backend, error) {
	artifacts, err := i.ensure(ctx)
	if err != nil {
		return nil, err
	}

	return whispercli.NewBackend(whispercli.Options{
		Logger:       i.logger,
		BinPath:      orDefault(i.cfg.Engine.BinPath, config.DefaultWhisperCLI),
		ModelPath:    artifacts.ModelPath,
		VADModelPath: artifacts.VADModelPath,
		Threads:      i.cfg.Engine.Threads,
	})
}

func (i *Initializer) newOpenAI(context.Context) (backend.Backend, error) {
	o := i.cfg.Engine.OpenAI
	return openai.NewBackend(openai.Options{
		Logger:  i.logger,
		BaseURL: o.BaseURL,
		APIKey:  o.APIKey,
		Model:   o.Model,
	})
}

func (i *Initializer) newStub(context.Context) (backend.Backend, error) {
	return stub.NewBackend(), nil
}

func (i *Initializer) ensure(ctx context.Context) (*model.Artifacts, error) {
	if i.artifacts == nil {
		return nil, fmt.Errorf("no artifact manager configured")
	}

	artifacts, err := i.artifacts.Ensure(ctx, i.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare model artifacts: %w", err)
	}
	return artifacts, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
