// Package telemetry keeps in-process counters for transcription requests.
package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Recorder aggregates request counters. The zero value is ready to use.
type Recorder struct {
	logger         *slog.Logger
	requests       atomic.Uint64
	failures       atomic.Uint64
	segments       atomic.Uint64
	audioMillis    atomic.Uint64
	processingNano atomic.Int64
	inFlight       atomic.Int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests     uint64        `json:"requests"`
	Failures     uint64        `json:"failures"`
	Segments     uint64        `json:"segments"`
	AudioSeconds float64       `json:"audio_seconds"`
	Processing   time.Duration `json:"processing_ns"`
	InFlight     int64         `json:"in_flight"`
}

// NewRecorder creates a Recorder that logs per-request summaries at debug level.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// RequestMetrics tracks a single request.
type RequestMetrics struct {
	recorder *Recorder
	start    time.Time
	task     string
	filename string
	done     atomic.Bool
}

// StartRequest begins tracking a request.
func (r *Recorder) StartRequest(task, filename string) *RequestMetrics {
	if r == nil {
		return nil
	}

	r.requests.Add(1)
	r.inFlight.Add(1)

	return &RequestMetrics{
		recorder: r,
		start:    time.Now(),
		task:     task,
		filename: filename,
	}
}

// Finish records the outcome of the request. Only the first call counts.
func (m *RequestMetrics) Finish(segments int, audioSeconds float64, err error) time.Duration {
	if m == nil || !m.done.CompareAndSwap(false, true) {
		return 0
	}

	r := m.recorder
	elapsed := time.Since(m.start)

	r.inFlight.Add(-1)
	r.processingNano.Add(int64(elapsed))
	if err != nil {
		r.failures.Add(1)
	} else {
		r.segments.Add(uint64(max(segments, 0)))
		r.audioMillis.Add(uint64(max(audioSeconds, 0) * 1000))
	}

	if r.logger != nil {
		r.logger.Debug("Request summary",
			"task", m.task,
			"filename", m.filename,
			"segments", segments,
			"audio_seconds", audioSeconds,
			"elapsed", elapsed,
			"failed", err != nil,
		)
	}

	return elapsed
}

// Snapshot returns the current counters.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}

	return Snapshot{
		Requests:     r.requests.Load(),
		Failures:     r.failures.Load(),
		Segments:     r.segments.Load(),
		AudioSeconds: float64(r.audioMillis.Load()) / 1000,
		Processing:   time.Duration(r.processingNano.Load()),
		InFlight:     r.inFlight.Load(),
	}
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("requests", s.Requests),
		slog.Uint64("failures", s.Failures),
		slog.Uint64("segments", s.Segments),
		slog.Float64("audio_seconds", s.AudioSeconds),
		slog.Duration("processing", s.Processing),
		slog.Int64("in_flight", s.InFlight),
	)
}
