package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/reeldraft/internal/draft"
	"github.com/heimdex/reeldraft/internal/playback"
	"github.com/heimdex/reeldraft/internal/recording"
)

func sessionStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Session.State())
	}
}

func loadSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoadSessionRequest
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeBadBody(w, err)
			return
		}

		mode, err := draft.ParseMode(req.Mode)
		if err != nil {
			writeDomainError(w, cfg.Logger, "load", err)
			return
		}
		if err := cfg.Session.Load(r.Context(), req.DraftID, mode); err != nil {
			writeDomainError(w, cfg.Logger, "load", err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Session.State())
	}
}

func appendSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AppendSegmentRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadBody(w, err)
			return
		}

		seg := recording.Segment{
			ID:              req.ID,
			DurationSeconds: req.DurationSeconds,
			MediaRef:        req.MediaRef,
			ThumbnailRef:    req.ThumbnailRef,
			FillerWordSpans: req.FillerWordSpans,
		}
		if req.TrimInMs != nil || req.TrimOutMs != nil {
			trimmed, err := seg.WithTrim(req.TrimInMs, req.TrimOutMs)
			if err != nil {
				writeDomainError(w, cfg.Logger, "append", err)
				return
			}
			seg = trimmed
		}

		if len(seg.FillerWordSpans) == 0 && cfg.FillerDetector != nil && seg.MediaRef != "" {
			spans, err := cfg.FillerDetector.Detect(r.Context(), seg.MediaRef)
			if err != nil {
				cfg.Logger.Warn("filler detection failed", "error", err)
			} else {
				seg.FillerWordSpans = spans
			}
		}

		appended, err := cfg.Session.AppendSegment(r.Context(), seg, req.DurationBudget)
		if err != nil {
			writeDomainError(w, cfg.Logger, "append", err)
			return
		}
		WriteJSON(w, http.StatusCreated, AppendSegmentResponse{
			Segment: appended,
			State:   cfg.Session.State(),
		})
	}
}

func trimSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimRequest
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeBadBody(w, err)
			return
		}

		seg, err := cfg.Session.SetTrim(chi.URLParam(r, "id"), req.TrimInMs, req.TrimOutMs)
		if err != nil {
			writeDomainError(w, cfg.Logger, "trim", err)
			return
		}
		WriteJSON(w, http.StatusOK, TrimResponse{Segment: seg, State: cfg.Session.State()})
	}
}

func undoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.Undo(r.Context()); err != nil {
			writeDomainError(w, cfg.Logger, "undo", err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Session.State())
	}
}

func redoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.Redo(r.Context()); err != nil {
			writeDomainError(w, cfg.Logger, "redo", err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Session.State())
	}
}

func startOverHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Session.StartOver()
		WriteJSON(w, http.StatusOK, cfg.Session.State())
	}
}

func startNewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Session.StartNew()
		WriteJSON(w, http.StatusOK, cfg.Session.State())
	}
}

func saveDraftHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SaveDraftRequest
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeBadBody(w, err)
			return
		}

		d, err := cfg.Session.SaveAsDraft(r.Context(), req.DurationBudget, req.ForceNew)
		if err != nil {
			writeDomainError(w, cfg.Logger, "save", err)
			return
		}
		WriteJSON(w, http.StatusOK, DraftToSummary(*d))
	}
}

func closeSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.Close(r.Context()); err != nil {
			writeDomainError(w, cfg.Logger, "close", err)
			return
		}
		WriteJSON(w, http.StatusOK, StatusResponse{Status: "closed"})
	}
}

func segmentMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Media == nil {
			WriteError(w, http.StatusServiceUnavailable, "media playback is not configured", "UNAVAILABLE")
			return
		}

		id := chi.URLParam(r, "id")
		var ref string
		for _, seg := range cfg.Session.Segments() {
			if seg.ID == id {
				ref = seg.MediaRef
				break
			}
		}
		if ref == "" {
			writeDomainError(w, cfg.Logger, "media", draft.ErrSegmentNotFound)
			return
		}

		if err := cfg.Media.ServeMedia(w, r, ref); err != nil {
			if errors.Is(err, playback.ErrOutsideRoots) {
				WriteError(w, http.StatusForbidden, err.Error(), "FORBIDDEN")
				return
			}
			cfg.Logger.Error("media playback failed", "segment_id", id, "error", err)
			WriteError(w, http.StatusInternalServerError, "media playback failed", "INTERNAL_ERROR")
		}
	}
}
