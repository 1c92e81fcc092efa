package backend

import (
	"bytes"
	"compress/zlib"
	"iter"
	"math"
)

// framesPerSecond is the whisper mel frame rate (10 ms hop).
const framesPerSecond = 100

// SliceSegments yields the given segments in order.
func SliceSegments(segments []Segment) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		for _, s := range segments {
			if !yield(s, nil) {
				return
			}
		}
	}
}

// ErrSegments yields a single error.
func ErrSegments(err error) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		yield(Segment{}, err)
	}
}

// SeekFrames converts a start offset in seconds to mel frames.
func SeekFrames(start float64) int {
	if start <= 0 {
		return 0
	}
	return int(math.Round(start * framesPerSecond))
}

// CompressionRatio returns len(text) / len(zlib(text)). Empty text yields 0.
func CompressionRatio(text string) float64 {
	if text == "" {
		return 0
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write([]byte(text))
	if err := w.Close(); err != nil || buf.Len() == 0 {
		return 0
	}

	return float64(len(text)) / float64(buf.Len())
}
