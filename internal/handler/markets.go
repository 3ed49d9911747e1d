package handler

import (
	"net/http"

	"github.com/jofongang/World-Monitor/internal/model"
)

// Markets serves the cached market snapshot.
func (h *Handler) Markets(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"items":        h.markets.Snapshot(r.Context()),
		"generated_at": model.UTCNow(),
	})
}

// MarketHistory serves per-symbol close-price series for a range.
func (h *Handler) MarketHistory(w http.ResponseWriter, r *http.Request) {
	payload, err := h.markets.History(r.Context(), queryString(r, "range"))
	if err != nil {
		h.logger.Error("loading market history failed", "error", err)
		WriteInternalError(w, "Failed to load market history")
		return
	}
	WriteJSON(w, http.StatusOK, payload)
}
