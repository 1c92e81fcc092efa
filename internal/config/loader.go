package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cast"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/whisper-api/internal/envvar"
)

const embeddedSchemaURL = "https://ekisa.dev/schemas/whisper-api.v1.schema.json"

//go:embed whisper-api.v1.schema.json
var embeddedSchema string

// LoadAndValidate loads and validates the configuration. An empty schemaPath
// selects the schema embedded in the binary.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: config validation failed: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	return config, nil
}

// LoadOrDefault behaves like LoadAndValidate but falls back to Default when the
// file does not exist. The boolean reports whether a file was read.
func LoadOrDefault(path, schemaPath string) (*Config, bool, error) {
	cfg, err := LoadAndValidate(path, schemaPath)
	if err == nil {
		return cfg, true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}

	return nil, false, err
}

// ApplyEnv overrides cfg with values from environment variables. A nil lookup
// reads the process environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if err := overrideInt(lookup, envvar.WhisperAPIServerHTTPPort, &cfg.Server.HTTPPort); err != nil {
		return err
	}
	if err := overrideInt(lookup, envvar.WhisperAPIServerGRPCPort, &cfg.Server.GRPCPort); err != nil {
		return err
	}
	overrideString(lookup, envvar.WhisperAPIModelsPath, &cfg.Storage.ModelsDir)
	overrideString(lookup, envvar.WhisperAPILogLevel, &cfg.Logging.Level)
	overrideString(lookup, envvar.WhisperAPIOpenAIKey, &cfg.Engine.OpenAI.APIKey)

	return nil
}

func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		return jsonschema.Compile(schemaPath)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(embeddedSchemaURL, strings.NewReader(embeddedSchema)); err != nil {
		return nil, err
	}

	return compiler.Compile(embeddedSchemaURL)
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}

	n, err := cast.ToIntE(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", key, err)
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("config: %s out of range: %d", key, n)
	}

	*target = n
	return nil
}
