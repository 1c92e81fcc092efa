package source

import (
	"context"
	"fmt"
	"os"

	"github.com/ekisa-team/whisper-api/internal/config"
)

// Downloader fetches artifacts from a model source into a local directory.
type Downloader interface {
	Download(ctx context.Context, artifact Artifact, targetDir string) (path string, cached bool, err error)
}

// GetDownloader returns the downloader for the given source type.
func GetDownloader(_ context.Context, sourceType config.SourceType) (Downloader, error) {
	switch sourceType {
	case config.SourceTypeHuggingFace:
		return NewHuggingFaceDownloader(), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// EnsureModelsDirectory creates the models directory if it does not exist.
func EnsureModelsDirectory(path string) error {
	if path == "" {
		return fmt.Errorf("models directory is empty")
	}

	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", path)
		}
		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat models directory: %w", err)
	}

	return os.MkdirAll(path, 0o755)
}
