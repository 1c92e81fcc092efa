package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/whisper-api/internal/envvar"
)

// Environment is the runtime environment the process is running in.
type Environment string

const (
	// Development enables human-friendly console logging.
	Development Environment = "development"

	// Production enables structured JSON logging.
	Production Environment = "production"
)

// FromEnv reads the environment from WHISPER_API_ENV, defaulting to development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.WhisperAPIEnv))
}

// Parse converts a raw value into an Environment.
func Parse(value string) Environment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "prod", "production":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}
