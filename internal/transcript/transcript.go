// Package transcript holds the word-timed transcript model and the retiming
// engine that moves a transcript onto an edited timeline.
package transcript

import (
	"context"
	"time"
)

// Word is a single recognised word.
type Word struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
}

// Segment is an ordered run of words, usually a sentence or phrase.
type Segment struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Words   []Word `json:"words"`
}

// VideoTranscript is the transcript of one video. Values are treated as
// immutable; retiming produces a new one.
type VideoTranscript struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"video_id"`
	Language   string    `json:"language,omitempty"`
	Segments   []Segment `json:"segments"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// WordCount counts words across all segments.
func (t VideoTranscript) WordCount() int {
	n := 0
	for _, s := range t.Segments {
		n += len(s.Words)
	}
	return n
}

// Transcriber turns audio into a word-timed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioRef, language string) (*VideoTranscript, error)
}
