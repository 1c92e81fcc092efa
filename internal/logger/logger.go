package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/whisper-api/internal/env"
)

const defaultLogFile = "logs/whisper-api.log"

type options struct {
	level     *slog.LevelVar
	output    io.Writer
	logFile   string
	logToFile bool
}

// Option configures the logger built by New.
type Option func(*options)

// WithLogToFile enables writing logs to a rotated file in addition to the console.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the path of the rotated log file.
func WithLogFile(path string) Option {
	return func(o *options) {
		if path != "" {
			o.logFile = path
		}
	}
}

// WithLevel makes the logger read its level from v, so it can be changed at runtime.
func WithLevel(v *slog.LevelVar) Option {
	return func(o *options) {
		if v != nil {
			o.level = v
		}
	}
}

// WithOutput overrides the console writer (stderr by default).
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// New builds a logger for the given environment.
// Development gets a colored tint handler, production gets JSON.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		level:   new(slog.LevelVar),
		output:  os.Stderr,
		logFile: defaultLogFile,
	}
	for _, opt := range opts {
		opt(o)
	}

	w := o.output
	if o.logToFile {
		w = io.MultiWriter(o.output, &lumberjack.Logger{
			Filename:   o.logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	if environment.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: o.level}))
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      o.level,
		TimeFormat: time.TimeOnly,
		NoColor:    o.logToFile,
	}))
}

// ParseLevel converts a textual level into a slog.Level. Unknown values map to info.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
