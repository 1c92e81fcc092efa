// Package janitor runs periodic maintenance jobs.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ekisa-team/whisper-api/internal/telemetry"
	"github.com/ekisa-team/whisper-api/internal/xfs"
)

const (
	DefaultSweepSchedule     = "@every 10m"
	DefaultTelemetrySchedule = "@every 15m"
	// DefaultMaxAge bounds how long a transient file may outlive its request.
	DefaultMaxAge = 6 * time.Hour
)

// Options configures the Janitor.
type Options struct {
	Logger            *slog.Logger
	Recorder          *telemetry.Recorder
	TempDir           string
	SweepSchedule     string
	TelemetrySchedule string
	MaxAge            time.Duration
}

// Janitor removes transient audio files left behind by crashed processes and
// periodically logs telemetry totals.
type Janitor struct {
	cron     *cron.Cron
	logger   *slog.Logger
	recorder *telemetry.Recorder
	now      func() time.Time
	tempDir  string
	maxAge   time.Duration
}

// New creates a Janitor with its jobs scheduled. Call Start to run them.
func New(opts Options) (*Janitor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	j := &Janitor{
		logger:   logger,
		recorder: opts.Recorder,
		now:      time.Now,
		tempDir:  opts.TempDir,
		maxAge:   opts.MaxAge,
	}
	if j.tempDir == "" {
		j.tempDir = os.TempDir()
	}
	if j.maxAge <= 0 {
		j.maxAge = DefaultMaxAge
	}

	j.cron = cron.New(cron.WithLogger(cronLogger{logger: logger}), cron.WithChain(cron.Recover(cronLogger{logger: logger})))

	sweep := orDefault(opts.SweepSchedule, DefaultSweepSchedule)
	if _, err := j.cron.AddFunc(sweep, func() { j.Sweep() }); err != nil {
		return nil, fmt.Errorf("janitor: invalid sweep schedule %q: %w", sweep, err)
	}

	if j.recorder != nil {
		report := orDefault(opts.TelemetrySchedule, DefaultTelemetrySchedule)
		if _, err := j.cron.AddFunc(report, j.report); err != nil {
			return nil, fmt.Errorf("janitor: invalid telemetry schedule %q: %w", report, err)
		}
	}

	return j, nil
}

// Start runs the scheduler in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.logger.Warn("Janitor jobs still running at shutdown")
	}
}

// Sweep removes stale transient files and returns how many were deleted.
func (j *Janitor) Sweep() int {
	entries, err := os.ReadDir(j.tempDir)
	if err != nil {
		j.logger.Warn("Failed to list temp directory", "path", j.tempDir, "error", err)
		return 0
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isTransient(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			j.logger.Debug("Failed to remove stale temp file", "path", path, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("Removed stale temp files", "count", removed, "path", j.tempDir)
	}
	return removed
}

func (j *Janitor) report() {
	if snapshot := j.recorder.Snapshot(); snapshot.Requests > 0 {
		j.logger.Info("Telemetry totals", "telemetry", snapshot)
	}
}

// isTransient matches names produced by xfs.SpoolTemp and derived outputs.
func isTransient(name string) bool {
	rest, ok := strings.CutPrefix(name, xfs.TempPrefix)
	if !ok || len(rest) < 36 {
		return false
	}
	_, err := uuid.Parse(rest[:36])
	return err == nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
