package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jofongang/World-Monitor/internal/model"
	"github.com/jofongang/World-Monitor/internal/store"
)

// ListEvents serves the filtered event feed. With refresh=1 a forced
// ingestion run executes first and its summary is attached to the
// response meta.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	refresh := queryBool(r, "refresh")
	var runSummary any
	if refresh {
		runSummary = h.ingest.Ingest(r.Context(), true)
	}

	filter := store.EventFilter{
		Limit:      queryInt(r, "limit", 120, 1, 500),
		SinceHours: queryInt(r, "since_hours", 168, 1, 2160),
		Category:   queryString(r, "category"),
		Region:     queryString(r, "region"),
		Country:    queryString(r, "country"),
		Search:     queryString(r, "q"),
	}
	events, err := h.store.ListEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("listing events failed", "error", err)
		WriteInternalError(w, "Failed to list events")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"items": events,
		"meta": map[string]any{
			"count":       len(events),
			"since_hours": filter.SinceHours,
			"refreshed":   refresh,
			"run_summary": runSummary,
			"generated_at": model.UTCNow(),
		},
	})
}

// GetEvent serves one event with its cluster neighbours.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	event, err := h.store.GetEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "Event not found")
			return
		}
		h.logger.Error("loading event failed", "event_id", eventID, "error", err)
		WriteInternalError(w, "Failed to load event")
		return
	}

	related, err := h.store.ListClusterEvents(r.Context(), event.ClusterID, 12)
	if err != nil {
		h.logger.Error("loading cluster events failed", "event_id", eventID, "error", err)
		WriteInternalError(w, "Failed to load related events")
		return
	}
	// The event itself is part of its cluster; drop it from related.
	filtered := make([]model.Event, 0, len(related))
	for _, candidate := range related {
		if candidate.ID != event.ID {
			filtered = append(filtered, candidate)
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"event":   event,
		"related": filtered,
	})
}

// Timeline serves bucketed event counts with severity averages.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	sinceHours := queryInt(r, "since_hours", 168, 1, 2160)
	bucketMinutes := queryInt(r, "bucket_minutes", 60, 15, 360)

	buckets, err := h.store.Timeline(r.Context(), sinceHours, bucketMinutes)
	if err != nil {
		h.logger.Error("timeline query failed", "error", err)
		WriteInternalError(w, "Failed to build timeline")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"items":        buckets,
		"generated_at": model.UTCNow(),
	})
}

// Hotspots serves the per-country aggregation for the map layer.
func (h *Handler) Hotspots(w http.ResponseWriter, r *http.Request) {
	sinceHours := queryInt(r, "since_hours", 24, 1, 720)
	limit := queryInt(r, "limit", 12, 1, 50)

	hotspots, err := h.store.Hotspots(r.Context(), sinceHours, limit)
	if err != nil {
		h.logger.Error("hotspots query failed", "error", err)
		WriteInternalError(w, "Failed to build hotspots")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": hotspots})
}

// Pulse serves the recent-versus-baseline activity change per country.
func (h *Handler) Pulse(w http.ResponseWriter, r *http.Request) {
	windowHours := queryInt(r, "window_hours", 6, 1, 168)
	baselineHours := queryInt(r, "baseline_hours", 24, 2, 720)

	entries, err := h.store.Pulse(r.Context(), windowHours, baselineHours)
	if err != nil {
		h.logger.Error("pulse query failed", "error", err)
		WriteInternalError(w, "Failed to build pulse")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"items":          entries,
		"window_hours":   windowHours,
		"baseline_hours": baselineHours,
	})
}
