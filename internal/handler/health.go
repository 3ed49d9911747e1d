package handler

import (
	"net/http"

	"github.com/jofongang/World-Monitor/internal/model"
)

// Health is the basic liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DB().PingContext(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "unhealthy", "Database unreachable")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"checked_at": model.UTCNow(),
	})
}

// Ready reports whether the service has useful data to serve: at least
// one connector has succeeded or a full run has finished.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.store.ListConnectorStatus(r.Context())
	if err != nil {
		h.logger.Error("readiness check failed", "error", err)
		WriteInternalError(w, "Failed to check readiness")
		return
	}
	healthy := 0
	for _, status := range statuses {
		if status.LastSuccessAt != "" {
			healthy++
		}
	}
	job := h.ingest.RuntimeStatus()
	ready := healthy > 0 || job.LastRunFinishedAt != ""

	state := "ok"
	if !ready {
		state = "degraded"
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":          state,
		"checked_at":      model.UTCNow(),
		"sources_total":   len(statuses),
		"sources_healthy": healthy,
		"job":             job,
	})
}

// SystemHealth is the detailed operator view: job state, corpus stats,
// and per-connector status.
func (h *Handler) SystemHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("loading stats failed", "error", err)
		WriteInternalError(w, "Failed to load stats")
		return
	}
	statuses, err := h.store.ListConnectorStatus(r.Context())
	if err != nil {
		h.logger.Error("listing connector status failed", "error", err)
		WriteInternalError(w, "Failed to list sources")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"checked_at": model.UTCNow(),
		"job":        h.ingest.RuntimeStatus(),
		"stats":      stats,
		"sources":    statuses,
	})
}
