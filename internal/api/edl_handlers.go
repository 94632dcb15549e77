package api

import (
	"errors"
	"net/http"

	"github.com/heimdex/reeldraft/internal/edl"
	"github.com/heimdex/reeldraft/internal/transcript"
)

const defaultFrameRate = 30

func buildEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EDLBuildRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadBody(w, err)
			return
		}

		list := edl.Build(req.Segments)
		if req.VideoID != "" {
			list.VideoID = req.VideoID
		}
		WriteJSON(w, http.StatusOK, list)
	}
}

// validateEDLHandler reports problems rather than failing: an invalid list
// is a normal answer, not a request error.
func validateEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var list edl.List
		if err := decodeBody(w, r, &list); err != nil {
			writeBadBody(w, err)
			return
		}

		problems := edl.Check(list)
		if problems == nil {
			problems = []string{}
		}
		for _, p := range problems {
			cfg.Logger.Warn("edl validation failed", "video_id", list.VideoID, "problem", p)
		}
		WriteJSON(w, http.StatusOK, EDLValidateResponse{Valid: len(problems) == 0, Problems: problems})
	}
}

func mapEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EDLMapRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadBody(w, err)
			return
		}

		resp := EDLMapResponse{Points: make([]MappedPoint, len(req.PointsMs))}
		for i, ms := range req.PointsMs {
			mapped, ok := edl.MapPoint(ms, req.EDL)
			resp.Points[i] = MappedPoint{OriginalMs: ms, NewMs: mapped, Kept: ok}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func retimeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EDLRetimeRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeBadBody(w, err)
			return
		}

		var list edl.List
		switch {
		case req.EDL != nil:
			list = *req.EDL
		case len(req.Segments) > 0:
			list = edl.Build(req.Segments)
		default:
			writeBadBody(w, errors.New("edl or segments is required"))
			return
		}

		retimed, stats := transcript.RetimeWithStats(req.Transcript, list)
		cfg.Metrics.RecordRetime(r.Context(), stats.WordsKept, stats.WordsDropped)
		WriteJSON(w, http.StatusOK, EDLRetimeResponse{Transcript: retimed, Stats: stats})
	}
}

func cmx3600Handler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CMX3600Request
		if err := decodeBody(w, r, &req); err != nil {
			writeBadBody(w, err)
			return
		}

		fps := req.FrameRate
		if fps <= 0 {
			fps = defaultFrameRate
		}
		title := req.Title
		if title == "" {
			title = req.EDL.VideoID
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(edl.RenderCMX3600(req.EDL, edl.ReelsFor(req.Segments), title, fps)))
	}
}
