package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	// Backend identifiers accepted in engine.backend.
	BackendWhisperServer = "whisper.cpp"
	BackendWhisperCLI    = "whisper.cpp-cli"
	BackendOpenAI        = "openai"
	BackendStub          = "stub"

	DefaultHTTPPortValue   = 5001
	DefaultEnginePort      = 8082
	DefaultModel           = "small"
	DefaultComputeType     = "int8"
	DefaultLogLevel        = "info"
	DefaultCORSOrigin      = "http://localhost:3000"
	DefaultModelRepo       = "ggerganov/whisper.cpp"
	DefaultVADModelRepo    = "ggml-org/whisper-vad"
	DefaultWhisperServer   = "whisper-server"
	DefaultWhisperCLI      = "whisper-cli"
	DefaultReadyTimeout    = 60 * time.Second
	DefaultOpenAIModelName = "whisper-1"
)

// Default returns a configuration populated with defaults. It matches the
// behaviour of running without a config file.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			HTTPPort:    DefaultHTTPPort(),
			GRPCPort:    DefaultGRPCPort(),
			CORSOrigins: []string{DefaultCORSOrigin},
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
			File:  "logs/whisper-api.log",
		},
		Engine: EngineConfig{
			Backend:     BackendWhisperServer,
			Model:       DefaultModel,
			ComputeType: DefaultComputeType,
			Port:        DefaultEnginePort,
			Convert:     true,
			OpenAI: OpenAIConfig{
				Model: DefaultOpenAIModelName,
			},
		},
		Storage: StorageConfig{
			ModelsDir: DefaultModelsPath(),
			Source: SourceConfig{
				HuggingFace: &HuggingFaceSource{Repo: DefaultModelRepo},
			},
			VADSource: SourceConfig{
				HuggingFace: &HuggingFaceSource{Repo: DefaultVADModelRepo},
			},
		},
	}
}

// DefaultHTTPPort returns the default HTTP port.
func DefaultHTTPPort() int {
	return DefaultHTTPPortValue
}

// DefaultGRPCPort returns the default gRPC health port. Zero disables the gRPC listener.
func DefaultGRPCPort() int {
	return 0
}

// DefaultConfigPath returns the default path for the whisper-api config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "whisper-api", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "whisper-api")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "whisper-api")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "whisper-api")
		}
		return filepath.Join(home, ".config", "whisper-api")
	}
}

// DefaultModelsPath returns the default path for the whisper-api models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "whisper-api", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "whisper-api", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "whisper-api", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "whisper-api", "models")
		}
		return filepath.Join(home, ".cache", "whisper-api", "models")
	}
}
