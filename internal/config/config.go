package config

import (
	"errors"
	"time"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"
)

// Config holds the main configuration for the application.
type Config struct {
	Version string        `json:"version"           yaml:"version"`
	Server  ServerConfig  `json:"server"            yaml:"server"`
	Logging LoggingConfig `json:"logging"           yaml:"logging"`
	Engine  EngineConfig  `json:"engine"            yaml:"engine"`
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
}

// ServerConfig holds the listener and HTTP surface settings.
type ServerConfig struct {
	Host        string   `json:"host"               yaml:"host"`
	TempDir     string   `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty"`
	CORSOrigins []string `json:"cors_origins"       yaml:"cors_origins"`
	HTTPPort    int      `json:"http_port"          yaml:"http_port"`
	GRPCPort    int      `json:"grpc_port"          yaml:"grpc_port"`
}

// LoggingConfig holds logger settings. Level is the only hot-reloadable field.
type LoggingConfig struct {
	Level  string `json:"level"          yaml:"level"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
	ToFile bool   `json:"to_file"        yaml:"to_file"`
}

// EngineConfig selects and configures the transcription engine.
type EngineConfig struct {
	OpenAI              OpenAIConfig `json:"openai,omitempty"         yaml:"openai,omitempty"`
	Backend             string       `json:"backend"                  yaml:"backend"`
	Model               string       `json:"model"                    yaml:"model"`
	ComputeType         string       `json:"compute_type"             yaml:"compute_type"`
	BinPath             string       `json:"bin_path,omitempty"       yaml:"bin_path,omitempty"`
	ModelPath           string       `json:"model_path,omitempty"     yaml:"model_path,omitempty"`
	VADModelPath        string       `json:"vad_model_path,omitempty" yaml:"vad_model_path,omitempty"`
	ServerURL           string       `json:"server_url,omitempty"     yaml:"server_url,omitempty"`
	Threads             int          `json:"threads"                  yaml:"threads"`
	Port                int          `json:"port"                     yaml:"port"`
	ReadyTimeoutSeconds int          `json:"ready_timeout_seconds"    yaml:"ready_timeout_seconds"`
	Convert             bool         `json:"convert"                  yaml:"convert"`
}

// OpenAIConfig configures the upstream used by the openai backend.
type OpenAIConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"  yaml:"api_key,omitempty"`
	Model   string `json:"model,omitempty"    yaml:"model,omitempty"`
}

// StorageConfig holds configuration for caching and auto-download.
type StorageConfig struct {
	ModelsDir string       `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
	Source    SourceConfig `json:"source"               yaml:"source"`
	VADSource SourceConfig `json:"vad_source"           yaml:"vad_source"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string `json:"repo"                     yaml:"repo"`
	Revision      string `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string `json:"token,omitempty"          yaml:"token,omitempty"`
	MaxWorkers    int    `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool   `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// GetSource returns the active source.
func (s SourceConfig) GetSource() (ModelSource, error) {
	if s.HuggingFace != nil {
		return *s.HuggingFace, nil
	}

	return nil, errors.New("no source configured for model")
}

// ReadyTimeout returns how long to wait for a spawned engine server to come up.
func (e EngineConfig) ReadyTimeout() time.Duration {
	if e.ReadyTimeoutSeconds <= 0 {
		return DefaultReadyTimeout
	}
	return time.Duration(e.ReadyTimeoutSeconds) * time.Second
}

// RestartRequired reports whether moving from c to next changes settings that
// are only read at startup.
func (c *Config) RestartRequired(next *Config) bool {
	if c == nil || next == nil {
		return false
	}

	return c.Engine != next.Engine ||
		c.Server.Host != next.Server.Host ||
		c.Server.HTTPPort != next.Server.HTTPPort ||
		c.Server.GRPCPort != next.Server.GRPCPort ||
		c.Server.TempDir != next.Server.TempDir ||
		!equalStrings(c.Server.CORSOrigins, next.Server.CORSOrigins)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
