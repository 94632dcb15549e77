// Package pipeline wraps the external media tools an export needs: segment
// concatenation through ffmpeg, plus stand-ins for transcription and filler
// detection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/heimdex/reeldraft/internal/recording"
)

type Quality string

var ErrInvalidQuality = errors.New("unknown export quality")

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// ParseQuality accepts high, medium or low. Empty means high.
func ParseQuality(s string) (Quality, error) {
	switch Quality(s) {
	case "":
		return QualityHigh, nil
	case QualityHigh, QualityMedium, QualityLow:
		return Quality(s), nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidQuality, s)
	}
}

// CRF is the x264 constant rate factor used for q.
func (q Quality) CRF() int {
	switch q {
	case QualityLow:
		return 28
	case QualityMedium:
		return 23
	default:
		return 18
	}
}

type Options struct {
	Quality    Quality
	OutputPath string
}

// Result is the outcome of one external tool run.
type Result struct {
	OutputPath string        `json:"output_path"`
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r Result) IsSuccess() bool { return r.ExitCode == 0 }

// Concatenator joins media files, in order, into opts.OutputPath.
type Concatenator interface {
	Concatenate(ctx context.Context, refs []string, opts Options) (Result, error)
}

// FillerDetector finds filler words ("um", "uh") in a recorded clip.
type FillerDetector interface {
	Detect(ctx context.Context, mediaRef string) ([]recording.FillerSpan, error)
}
