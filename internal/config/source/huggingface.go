package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ekisa-team/whisper-api/internal/config"
)

const (
	defaultBinary     = "hf"
	defaultRetryDelay = 2 * time.Second
	defaultMaxRetries = 3
	defaultTimeout    = 30 * time.Minute
	markerFilename    = ".whisper-api-downloaded"
)

// Artifact describes a set of files to fetch from a model source.
type Artifact struct {
	ID     string
	Source config.SourceConfig
	Files  []string
}

// HuggingFaceDownloader downloads artifacts from Hugging Face using the hf CLI.
type HuggingFaceDownloader struct {
	run        func(ctx context.Context, name string, args ...string) ([]byte, error)
	Binary     string
	RetryDelay time.Duration
	MaxRetries int
}

// NewHuggingFaceDownloader returns a downloader with default settings.
func NewHuggingFaceDownloader() *HuggingFaceDownloader {
	return &HuggingFaceDownloader{
		Binary:     defaultBinary,
		RetryDelay: defaultRetryDelay,
		MaxRetries: defaultMaxRetries,
	}
}

// Download downloads the artifact files into targetDir/<repo>. The boolean
// reports whether a previous download was reused.
func (d *HuggingFaceDownloader) Download(ctx context.Context, artifact Artifact, targetDir string) (string, bool, error) {
	source, err := artifact.Source.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get source for %s: %w", artifact.ID, err)
	}

	hfSource, ok := source.(config.HuggingFaceSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", source)
	}

	repo := strings.TrimSpace(hfSource.Repo)
	if repo == "" {
		return "", false, fmt.Errorf("invalid repo name: %q", hfSource.Repo)
	}

	fullPath := filepath.Join(targetDir, repo)
	markerPath := filepath.Join(fullPath, markerFilename)
	markerContent := d.markerContent(repo, hfSource.Revision, artifact.Files)

	if !hfSource.ForceDownload && !d.shouldRedownload(markerPath, markerContent) && filesPresent(fullPath, artifact.Files) {
		slog.Info("Artifact already downloaded and up-to-date (marker match), skipping", "artifact", artifact.ID, "repo", repo, "path", fullPath)
		return fullPath, true, nil
	}

	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create directory: %w", err)
	}

	args := d.buildArgs(repo, hfSource, artifact.Files, fullPath)

	maxRetries := d.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			slog.Info("Retrying download", "artifact", artifact.ID, "attempt", attempt+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", false, fmt.Errorf("download canceled: %w", ctx.Err())
			case <-time.After(d.RetryDelay):
			}
		} else {
			slog.Info("Downloading artifact", "artifact", artifact.ID, "repo", repo, "files", artifact.Files, "path", fullPath)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		output, err := d.runner()(attemptCtx, d.binary(), args...)
		attemptErr := attemptCtx.Err()
		cancel()

		if err == nil {
			if err := os.WriteFile(markerPath, []byte(markerContent), 0o644); err != nil {
				slog.Warn("Failed to write download marker", "path", markerPath, "error", err)
			}

			slog.Info("Artifact downloaded successfully", "artifact", artifact.ID, "path", fullPath, "attempt", attempt+1)
			return fullPath, false, nil
		}

		lastErr = err
		slog.Error("Failed to download artifact", "artifact", artifact.ID, "repo", repo, "attempt", attempt+1, "error", err, "output", string(output))

		switch {
		case errors.Is(attemptErr, context.DeadlineExceeded):
			slog.Warn("Download timed out", "artifact", artifact.ID, "attempt", attempt+1)
		case errors.Is(attemptErr, context.Canceled):
			return "", false, fmt.Errorf("download canceled: %w", err)
		}
	}

	return "", false, fmt.Errorf("failed to download %s from %s: %w", artifact.ID, repo, lastErr)
}

func (d *HuggingFaceDownloader) buildArgs(repo string, src config.HuggingFaceSource, files []string, dir string) []string {
	args := []string{"download", repo}
	args = append(args, files...)
	args = append(args, "--local-dir", dir)

	if src.Revision != "" {
		args = append(args, "--revision", src.Revision)
	}
	if src.RepoType != "" {
		args = append(args, "--repo-type", src.RepoType)
	}
	if src.ForceDownload {
		args = append(args, "--force-download")
	}
	if src.Token != "" {
		args = append(args, "--token", src.Token)
	}
	if src.MaxWorkers > 0 {
		args = append(args, "--max-workers", fmt.Sprintf("%d", src.MaxWorkers))
	}

	return args
}

func (d *HuggingFaceDownloader) binary() string {
	if d.Binary == "" {
		return defaultBinary
	}
	return d.Binary
}

func (d *HuggingFaceDownloader) runner() func(ctx context.Context, name string, args ...string) ([]byte, error) {
	if d.run != nil {
		return d.run
	}
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
}

// markerContent generates the expected content of the marker file.
// Used to detect if we need to redownload due to config change.
func (d *HuggingFaceDownloader) markerContent(repo, revision string, files []string) string {
	return fmt.Sprintf("repo: %s\nrevision: %s\nfiles: %s\n", repo, revision, strings.Join(files, ","))
}

// shouldRedownload checks if the artifact should be redownloaded by comparing marker content.
func (d *HuggingFaceDownloader) shouldRedownload(markerPath, expectedContent string) bool {
	content, err := os.ReadFile(markerPath)
	if err != nil {
		slog.Debug("Marker file missing or unreadable", "path", markerPath, "error", err)
		return true
	}

	if string(content) != expectedContent {
		slog.Info("Artifact config changed (marker mismatch), will redownload",
			"marker_path", markerPath,
			"expected_snippet", expectedContent,
			"actual_snippet", string(content))
		return true
	}

	return false
}

func filesPresent(dir string, files []string) bool {
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return true
}
