package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/reeldraft/internal/logging"
	"github.com/heimdex/reeldraft/internal/recording"
	"github.com/heimdex/reeldraft/internal/transcript"
)

// StubConcatenator byte-appends its inputs instead of running ffmpeg. The
// output is not a playable container; it exists so the export path can run
// on machines without ffmpeg.
type StubConcatenator struct {
	logger *slog.Logger
}

func NewStubConcatenator(logger *slog.Logger) *StubConcatenator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StubConcatenator{logger: logger}
}

func (c *StubConcatenator) Concatenate(ctx context.Context, refs []string, opts Options) (Result, error) {
	if len(refs) == 0 {
		return Result{}, errors.New("no inputs to concatenate")
	}
	start := time.Now()
	c.logger.Info("concat stub: joining inputs without re-encoding", "inputs", len(refs), "quality", opts.Quality)

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0755); err != nil {
		return Result{}, fmt.Errorf("cannot create output dir: %w", err)
	}
	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return Result{}, fmt.Errorf("cannot create output: %w", err)
	}
	defer out.Close()

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := appendFile(out, ref); err != nil {
			return Result{ExitCode: 1, StderrTail: err.Error()}, err
		}
	}
	if err := out.Close(); err != nil {
		return Result{}, err
	}
	return Result{OutputPath: opts.OutputPath, Duration: time.Since(start)}, nil
}

func appendFile(dst io.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(dst, f)
	return err
}

// StubTranscriber returns an empty transcript for any input.
type StubTranscriber struct {
	logger *slog.Logger
}

func NewStubTranscriber(logger *slog.Logger) *StubTranscriber {
	if logger == nil {
		logger = logging.Discard()
	}
	return &StubTranscriber{logger: logger}
}

func (s *StubTranscriber) Transcribe(ctx context.Context, audioRef, language string) (*transcript.VideoTranscript, error) {
	s.logger.Info("transcriber stub: transcription requested", "input", logging.SanitizePath(audioRef))
	base := filepath.Base(audioRef)
	return &transcript.VideoTranscript{
		ID:        uuid.NewString(),
		VideoID:   strings.TrimSuffix(base, filepath.Ext(base)),
		Language:  language,
		Segments:  []transcript.Segment{},
		CreatedAt: time.Now(),
	}, nil
}

// StubFillerDetector never finds filler words.
type StubFillerDetector struct{}

func (StubFillerDetector) Detect(ctx context.Context, mediaRef string) ([]recording.FillerSpan, error) {
	return nil, nil
}
