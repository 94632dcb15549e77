package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/reeldraft/internal/edl"
	"github.com/heimdex/reeldraft/internal/observe"
	"github.com/heimdex/reeldraft/internal/pipeline"
	"github.com/heimdex/reeldraft/internal/recording"
	"github.com/heimdex/reeldraft/internal/store"
	"github.com/heimdex/reeldraft/internal/transcript"
)

const (
	transcriptKeyPrefix = "transcripts/"
	defaultFrameRate    = 30
)

var (
	ErrNoSegments         = errors.New("nothing to export: no segments")
	ErrTranscriptNotFound = errors.New("transcript not found")
)

type ExportService interface {
	Export(ctx context.Context, req Request) (*Result, error)
	LoadTranscript(ctx context.Context, videoID string) (*transcript.VideoTranscript, error)
}

type Config struct {
	ExportDir    string
	Concatenator pipeline.Concatenator

	// Transcriber is optional; without it only a supplied transcript is
	// retimed.
	Transcriber transcript.Transcriber
	Blobs       store.BlobStore
	Logger      *slog.Logger
	Metrics     *observe.Metrics
}

type Service struct {
	exportDir   string
	concat      pipeline.Concatenator
	transcriber transcript.Transcriber
	blobs       store.BlobStore
	logger      *slog.Logger
	metrics     *observe.Metrics
	newID       func() string
}

func NewService(cfg Config) *Service {
	return &Service{
		exportDir:   cfg.ExportDir,
		concat:      cfg.Concatenator,
		transcriber: cfg.Transcriber,
		blobs:       cfg.Blobs,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		newID:       uuid.NewString,
	}
}

// Export concatenates req.Segments, writes a CMX3600 sidecar and persists
// the transcript. A structurally invalid EDL is reported in the
// result and does not fail the export.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := s.export(ctx, req)
	s.metrics.RecordExport(ctx, time.Since(start).Seconds(), err)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("export failed", "draft_id", req.DraftID, "error", err)
		}
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (s *Service) export(ctx context.Context, req Request) (*Result, error) {
	if len(req.Segments) == 0 {
		return nil, ErrNoSegments
	}
	quality := req.Quality
	if quality == "" {
		quality = pipeline.QualityHigh
	}
	if _, err := pipeline.ParseQuality(string(quality)); err != nil {
		return nil, err
	}

	outDir, err := s.outputDir(req.OutputDir)
	if err != nil {
		return nil, err
	}

	videoID := s.newID()
	stem := fileStem(req.ProjectName, videoID)
	res := &Result{VideoID: videoID}

	res.EDL = edl.Build(req.Segments)
	res.EDL.VideoID = videoID
	res.EDLValid = edl.Validate(res.EDL, s.logger)
	if !res.EDLValid {
		res.EDLProblems = edl.Check(res.EDL)
	}

	if len(req.Segments) == 1 {
		res.OutputPath = req.Segments[0].MediaRef
	} else {
		out := filepath.Join(outDir, stem+".mp4")
		run, err := s.concat.Concatenate(ctx, recording.Refs(req.Segments), pipeline.Options{
			Quality:    quality,
			OutputPath: out,
		})
		if err != nil {
			return nil, fmt.Errorf("concatenate: %w", err)
		}
		res.OutputPath = run.OutputPath
		res.Concatenated = true
	}

	frameRate := req.FrameRate
	if frameRate <= 0 {
		frameRate = defaultFrameRate
	}
	res.EDLPath = filepath.Join(outDir, stem+".edl")
	text := edl.RenderCMX3600(res.EDL, edl.ReelsFor(req.Segments), titleFor(req.ProjectName, videoID), frameRate)
	if err := os.WriteFile(res.EDLPath, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("write edl: %w", err)
	}

	if req.Transcript != nil {
		retimed, stats := transcript.RetimeWithStats(*req.Transcript, res.EDL)
		retimed.VideoID = videoID
		if err := s.saveTranscript(ctx, retimed); err != nil {
			return nil, err
		}
		res.Transcript = &retimed
		res.RetimeStats = &stats
		s.metrics.RecordRetime(ctx, stats.WordsKept, stats.WordsDropped)
	} else {
		// The transcriber hears the exported file, so its timestamps are
		// already on the output timeline.
		t, err := s.transcribeOutput(ctx, req.Language, res.OutputPath)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out := *t
			out.VideoID = videoID
			if err := s.saveTranscript(ctx, out); err != nil {
				return nil, err
			}
			res.Transcript = &out
		}
	}

	if s.logger != nil {
		s.logger.Info("export complete",
			"draft_id", req.DraftID,
			"video_id", videoID,
			"segments", len(req.Segments),
			"edl_valid", res.EDLValid,
			"concatenated", res.Concatenated,
		)
	}
	return res, nil
}

// transcribeOutput runs the transcriber on the exported file. Failures are
// logged and the export continues without a transcript.
func (s *Service) transcribeOutput(ctx context.Context, language, outputPath string) (*transcript.VideoTranscript, error) {
	if s.transcriber == nil {
		return nil, nil
	}
	t, err := s.transcriber.Transcribe(ctx, outputPath, language)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if s.logger != nil {
			s.logger.Warn("transcription failed, exporting without transcript", "error", err)
		}
		return nil, nil
	}
	return t, nil
}

func (s *Service) saveTranscript(ctx context.Context, t transcript.VideoTranscript) error {
	if s.blobs == nil {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if err := s.blobs.Set(ctx, transcriptKeyPrefix+t.VideoID, string(data)); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// LoadTranscript returns the retimed transcript stored for an exported video.
func (s *Service) LoadTranscript(ctx context.Context, videoID string) (*transcript.VideoTranscript, error) {
	if s.blobs == nil {
		return nil, ErrTranscriptNotFound
	}
	raw, ok, err := s.blobs.Get(ctx, transcriptKeyPrefix+videoID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if !ok {
		return nil, ErrTranscriptNotFound
	}
	var t transcript.VideoTranscript
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &t, nil
}

func (s *Service) outputDir(requested string) (string, error) {
	if requested != "" {
		if err := ValidateOutputDir(requested); err != nil {
			return "", err
		}
		return requested, nil
	}
	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	return s.exportDir, nil
}

func titleFor(projectName, videoID string) string {
	if projectName != "" {
		return projectName
	}
	return videoID
}
