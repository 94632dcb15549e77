package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/reeldraft/internal/export"
	"github.com/heimdex/reeldraft/internal/pipeline"
)

// exportHandler exports the live session, or the segments in the body when
// given.
func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeBadBody(w, err)
			return
		}

		quality := cfg.DefaultQuality
		if req.Quality != "" {
			q, err := pipeline.ParseQuality(req.Quality)
			if err != nil {
				writeDomainError(w, cfg.Logger, "export", err)
				return
			}
			quality = q
		}

		exportReq := export.Request{
			ProjectName: req.ProjectName,
			Segments:    req.Segments,
			Quality:     quality,
			FrameRate:   req.FrameRate,
			OutputDir:   req.OutputDir,
			Language:    req.Language,
			Transcript:  req.Transcript,
		}
		if len(exportReq.Segments) == 0 {
			state := cfg.Session.State()
			exportReq.Segments = state.Segments
			exportReq.DraftID = state.DraftID
			exportReq.Mode = string(state.Mode)
		}

		res, err := cfg.Exporter.Export(r.Context(), exportReq)
		if err != nil {
			writeDomainError(w, cfg.Logger, "export", err)
			return
		}
		WriteJSON(w, http.StatusOK, ExportToResponse(res))
	}
}

func getTranscriptHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := cfg.Exporter.LoadTranscript(r.Context(), chi.URLParam(r, "videoID"))
		if err != nil {
			writeDomainError(w, cfg.Logger, "load transcript", err)
			return
		}
		WriteJSON(w, http.StatusOK, t)
	}
}
