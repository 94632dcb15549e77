// Package recording defines the physically recorded clip that drafts, EDLs
// and exports are built from.
package recording

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// FillerSpan is a detected filler word inside a segment. The detector is
// external; spans are carried through untouched.
type FillerSpan struct {
	Word       string  `json:"word"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
}

// Segment is one recorded clip. MediaRef is owned by the file store.
type Segment struct {
	ID              string       `json:"id"`
	DurationSeconds float64      `json:"duration_seconds"`
	MediaRef        string       `json:"media_ref"`
	TrimInMs        *int64       `json:"trim_in_ms,omitempty"`
	TrimOutMs       *int64       `json:"trim_out_ms,omitempty"`
	ThumbnailRef    string       `json:"thumbnail_ref,omitempty"`
	FillerWordSpans []FillerSpan `json:"filler_word_spans,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

var ErrInvalidTrim = errors.New("invalid trim")

// NewID returns a fresh segment identifier.
func NewID() string {
	return uuid.NewString()
}

// FullDurationMs is the untrimmed clip length in milliseconds.
func (s Segment) FullDurationMs() int64 {
	return int64(math.Round(s.DurationSeconds * 1000))
}

// KeptRangeMs returns the retained [in, out) range within the clip.
func (s Segment) KeptRangeMs() (int64, int64) {
	in := int64(0)
	if s.TrimInMs != nil {
		in = *s.TrimInMs
	}
	out := s.FullDurationMs()
	if s.TrimOutMs != nil {
		out = *s.TrimOutMs
	}
	return in, out
}

// KeptDurationSeconds is the length of the retained range in seconds.
func (s Segment) KeptDurationSeconds() float64 {
	in, out := s.KeptRangeMs()
	return float64(out-in) / 1000
}

// WithTrim returns a copy of s with the given trim points. A nil bound
// clears that side of the trim.
func (s Segment) WithTrim(inMs, outMs *int64) (Segment, error) {
	full := s.FullDurationMs()
	in, out := int64(0), full
	if inMs != nil {
		in = *inMs
	}
	if outMs != nil {
		out = *outMs
	}
	if in < 0 || out > full || in >= out {
		return s, fmt.Errorf("%w [%d, %d) for segment of %dms", ErrInvalidTrim, in, out, full)
	}

	trimmed := s
	trimmed.TrimInMs = cloneInt64(inMs)
	trimmed.TrimOutMs = cloneInt64(outMs)
	return trimmed, nil
}

// Refs collects the media refs of segs in order.
func Refs(segs []Segment) []string {
	refs := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.MediaRef != "" {
			refs = append(refs, s.MediaRef)
		}
	}
	return refs
}

// TotalKeptSeconds sums the kept durations of segs.
func TotalKeptSeconds(segs []Segment) float64 {
	var total float64
	for _, s := range segs {
		total += s.KeptDurationSeconds()
	}
	return total
}

// Int64 is a convenience for building optional trim values.
func Int64(v int64) *int64 {
	return &v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
