package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/reeldraft/internal/draft"
	"github.com/heimdex/reeldraft/internal/export"
	"github.com/heimdex/reeldraft/internal/pipeline"
	"github.com/heimdex/reeldraft/internal/recording"
)

const (
	defaultVersion = "0.1.0"
	maxBodyBytes   = 8 << 20
)

var errEmptyBody = errors.New("request body is empty")

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Blobs, cfg.Logger))

		r.Get("/drafts", listDraftsHandler(cfg))
		r.Delete("/drafts/{id}", deleteDraftHandler(cfg))

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessionStateHandler(cfg))
			r.Post("/load", loadSessionHandler(cfg))
			r.Post("/segments", appendSegmentHandler(cfg))
			r.Patch("/segments/{id}/trim", trimSegmentHandler(cfg))
			r.Post("/undo", undoHandler(cfg))
			r.Post("/redo", redoHandler(cfg))
			r.Post("/start-over", startOverHandler(cfg))
			r.Post("/start-new", startNewHandler(cfg))
			r.Post("/save", saveDraftHandler(cfg))
			r.Post("/close", closeSessionHandler(cfg))

			r.Group(func(r chi.Router) {
				r.Use(LoopbackGuard())
				r.Get("/segments/{id}/media", segmentMediaHandler(cfg))
				r.Head("/segments/{id}/media", segmentMediaHandler(cfg))
			})
		})

		r.Post("/export", exportHandler(cfg))
		r.Get("/transcripts/{videoID}", getTranscriptHandler(cfg))

		r.Route("/edl", func(r chi.Router) {
			r.Post("/build", buildEDLHandler(cfg))
			r.Post("/validate", validateEDLHandler(cfg))
			r.Post("/map", mapEDLHandler(cfg))
			r.Post("/retime", retimeHandler(cfg))
			r.Post("/cmx3600", cmx3600Handler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = defaultVersion
		}
		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		}
		// Peek never blocks on spawning ffmpeg; the cache is warmed at startup.
		if cfg.Probe != nil {
			if caps := cfg.Probe.Peek(); caps != nil {
				resp.FFmpeg = capabilitiesToStatus(caps)
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func capabilitiesToStatus(c *pipeline.Capabilities) *FFmpegStatus {
	return &FFmpegStatus{
		Available: c.FFmpeg,
		Version:   c.Version,
		ProbedAt:  c.ProbedAt.Format(time.RFC3339),
	}
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, draft.ErrNothingToUndo):
		WriteError(w, http.StatusConflict, err.Error(), "NOTHING_TO_UNDO")
	case errors.Is(err, draft.ErrNothingToRedo):
		WriteError(w, http.StatusConflict, err.Error(), "NOTHING_TO_REDO")
	case errors.Is(err, draft.ErrNothingToSave):
		WriteError(w, http.StatusConflict, err.Error(), "NOTHING_TO_SAVE")
	case errors.Is(err, draft.ErrMediaMissing):
		WriteError(w, http.StatusConflict, err.Error(), "MEDIA_MISSING")
	case errors.Is(err, draft.ErrInvalidMode):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_MODE")
	case errors.Is(err, draft.ErrInvalidSegment), errors.Is(err, recording.ErrInvalidTrim):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_SEGMENT")
	case errors.Is(err, pipeline.ErrInvalidQuality):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_QUALITY")
	case errors.Is(err, export.ErrInvalidOutputDir):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_OUTPUT_DIR")
	case errors.Is(err, draft.ErrSegmentNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "SEGMENT_NOT_FOUND")
	case errors.Is(err, export.ErrTranscriptNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "TRANSCRIPT_NOT_FOUND")
	case errors.Is(err, export.ErrNoSegments):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NO_SEGMENTS")
	default:
		logger.Error("request failed", "op", op, "error", err)
		WriteError(w, http.StatusInternalServerError, fmt.Sprintf("%s failed", op), "INTERNAL_ERROR")
	}
}

// decodeBody decodes a JSON body into v. An empty body is reported as
// errEmptyBody so handlers with optional bodies can accept it.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func writeBadBody(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "BAD_REQUEST")
}
