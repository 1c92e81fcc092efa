package whisperserver

import (
	"bytes"
	"log/slog"
	"sync"
)

// logWriter forwards subprocess output to the logger line by line at debug level.
type logWriter struct {
	logger *slog.Logger
	buf    bytes.Buffer
	mu     sync.Mutex
}

func newLogWriter(logger *slog.Logger) *logWriter {
	return &logWriter{logger: logger}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Keep the partial line for the next write.
			w.buf.Write(line)
			break
		}
		if text := bytes.TrimSpace(line); len(text) > 0 {
			w.logger.Debug("whisper-server", "output", string(text))
		}
	}

	return len(p), nil
}
