package handler

import (
	"net/http"

	"github.com/jofongang/World-Monitor/internal/ingest"
	"github.com/jofongang/World-Monitor/internal/model"
)

// Sources serves the latest per-connector health snapshot.
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.store.ListConnectorStatus(r.Context())
	if err != nil {
		h.logger.Error("listing connector status failed", "error", err)
		WriteInternalError(w, "Failed to list sources")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"items":        statuses,
		"generated_at": model.UTCNow(),
	})
}

// JobStatus serves the scheduler state plus corpus stats.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("loading stats failed", "error", err)
		WriteInternalError(w, "Failed to load stats")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"job":          h.ingest.RuntimeStatus(),
		"stats":        stats,
		"generated_at": model.UTCNow(),
	})
}

// JobLogs serves recent ingestion log lines, newest first.
func (h *Handler) JobLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 120, 1, 500)
	logs, err := h.store.ListIngestionLogs(r.Context(), limit)
	if err != nil {
		h.logger.Error("listing ingestion logs failed", "error", err)
		WriteInternalError(w, "Failed to list logs")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": logs})
}

// RunJob triggers a forced ingestion run and returns its summary. A
// run already in progress reports busy with HTTP 409.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	summary := h.ingest.Ingest(r.Context(), true)
	status := http.StatusOK
	if summary.Status == ingest.RunStatusBusy {
		status = http.StatusConflict
	}
	WriteJSON(w, status, summary)
}
