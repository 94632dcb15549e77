package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/reeldraft/internal/draft"
)

func listDraftsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := draft.ParseMode(r.URL.Query().Get("mode"))
		if err != nil {
			writeDomainError(w, cfg.Logger, "list drafts", err)
			return
		}

		drafts, err := cfg.Drafts.List(r.Context(), mode)
		if err != nil {
			writeDomainError(w, cfg.Logger, "list drafts", err)
			return
		}

		resp := DraftsResponse{Drafts: make([]DraftSummary, len(drafts))}
		for i, d := range drafts {
			resp.Drafts[i] = DraftToSummary(d)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// deleteDraftHandler removes a draft and its media. The draft the session
// is currently editing cannot be deleted out from under it.
func deleteDraftHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		mode, err := draft.ParseMode(r.URL.Query().Get("mode"))
		if err != nil {
			writeDomainError(w, cfg.Logger, "delete draft", err)
			return
		}

		state := cfg.Session.State()
		if state.Mode == mode && (state.DraftID == id || state.OriginalDraftID == id) {
			WriteError(w, http.StatusConflict, "draft is open in the current session", "DRAFT_IN_USE")
			return
		}

		d, err := cfg.Drafts.Get(r.Context(), mode, id)
		if err != nil {
			writeDomainError(w, cfg.Logger, "delete draft", err)
			return
		}
		if d == nil {
			WriteError(w, http.StatusNotFound, "draft not found", "DRAFT_NOT_FOUND")
			return
		}

		n, err := cfg.Drafts.DeleteFilesAndMetadata(r.Context(), mode, id)
		if err != nil {
			writeDomainError(w, cfg.Logger, "delete draft", err)
			return
		}
		cfg.Logger.Info("draft deleted", "draft_id", id, "mode", mode, "files", n)
		WriteJSON(w, http.StatusOK, DeleteDraftResponse{DraftID: id, DeletedFiles: n})
	}
}
