package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jofongang/World-Monitor/internal/model"
)

// savedQueryPayload is the write shape for saved queries.
type savedQueryPayload struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Query   string         `json:"query"`
	Filters map[string]any `json:"filters"`
}

// ListQueries serves all saved queries.
func (h *Handler) ListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := h.store.ListSavedQueries(r.Context())
	if err != nil {
		h.logger.Error("listing saved queries failed", "error", err)
		WriteInternalError(w, "Failed to list queries")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": queries})
}

// SaveQuery creates or updates a saved query.
func (h *Handler) SaveQuery(w http.ResponseWriter, r *http.Request) {
	var payload savedQueryPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	name := strings.TrimSpace(rulePolicy.Sanitize(payload.Name))
	if name == "" {
		name = "Untitled Query"
	}
	query := model.NewSavedQuery(name, strings.TrimSpace(payload.Query))
	if id := strings.TrimSpace(payload.ID); id != "" {
		query.ID = id
	}
	if payload.Filters != nil {
		query.Filters = payload.Filters
	}

	if err := h.store.UpsertSavedQuery(r.Context(), query); err != nil {
		h.logger.Error("saving query failed", "query_id", query.ID, "error", err)
		WriteInternalError(w, "Failed to save query")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"item": query})
}

// DeleteQuery removes a saved query.
func (h *Handler) DeleteQuery(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")
	deleted, err := h.store.DeleteSavedQuery(r.Context(), queryID)
	if err != nil {
		h.logger.Error("deleting query failed", "query_id", queryID, "error", err)
		WriteInternalError(w, "Failed to delete query")
		return
	}
	if !deleted {
		WriteNotFound(w, "Query not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"query_id": queryID,
	})
}
