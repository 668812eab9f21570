// Package ocr defines the text-recognition contract used by the analysis
// flow.
package ocr

import (
	"context"
	"strings"
	"time"
)

// DefaultMinConfidence drops segments the recognizer is unsure about.
const DefaultMinConfidence = 0.5

// Segment is one piece of recognized text with a confidence in [0, 1].
type Segment struct {
	Text       string
	Confidence float64
}

// Reader turns a label image into plain text.
type Reader interface {
	ReadText(ctx context.Context, image []byte) (string, error)
}

// JoinSegments keeps segments whose confidence is strictly above
// minConfidence and joins their text with single spaces.
func JoinSegments(segments []Segment, minConfidence float64) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s.Confidence <= minConfidence {
			continue
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// WithTimeout bounds every ReadText call on reader by d. A non-positive d
// returns reader unchanged.
func WithTimeout(reader Reader, d time.Duration) Reader {
	if reader == nil || d <= 0 {
		return reader
	}
	return &timeoutReader{next: reader, timeout: d}
}

type timeoutReader struct {
	next    Reader
	timeout time.Duration
}

func (r *timeoutReader) ReadText(ctx context.Context, image []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.ReadText(ctx, image)
}
