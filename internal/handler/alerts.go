package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/jofongang/World-Monitor/internal/model"
)

var rulePolicy = bluemonday.StrictPolicy()

// alertRulePayload is the write shape for alert rules. A present id
// updates the existing rule; absent means create.
type alertRulePayload struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Enabled            *bool    `json:"enabled"`
	Countries          []string `json:"countries"`
	Regions            []string `json:"regions"`
	Categories         []string `json:"categories"`
	Keywords           []string `json:"keywords"`
	SeverityThreshold  *int     `json:"severity_threshold"`
	SpikeDetection     bool     `json:"spike_detection"`
	ActionInApp        *bool    `json:"action_in_app"`
	ActionWebhookURL   string   `json:"action_webhook_url"`
	ActionSlackWebhook string   `json:"action_slack_webhook"`
	CreatedAt          string   `json:"created_at"`
}

// ListAlertRules serves all alert rules.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListAlertRules(r.Context())
	if err != nil {
		h.logger.Error("listing alert rules failed", "error", err)
		WriteInternalError(w, "Failed to list alert rules")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": rules})
}

// UpsertAlertRule creates or updates an alert rule.
func (h *Handler) UpsertAlertRule(w http.ResponseWriter, r *http.Request) {
	var payload alertRulePayload
	if !decodeBody(w, r, &payload) {
		return
	}

	name := strings.TrimSpace(rulePolicy.Sanitize(payload.Name))
	if name == "" {
		name = "Untitled Rule"
	}

	rule := model.NewAlertRule(name)
	if id := strings.TrimSpace(payload.ID); id != "" {
		rule.ID = id
	}
	if payload.Enabled != nil {
		rule.Enabled = *payload.Enabled
	}
	if payload.ActionInApp != nil {
		rule.ActionInApp = *payload.ActionInApp
	}
	if payload.SeverityThreshold != nil {
		rule.SeverityThreshold = model.ClampScore(*payload.SeverityThreshold)
	}
	rule.Countries = cleanList(payload.Countries)
	rule.Regions = cleanList(payload.Regions)
	rule.Categories = cleanCategories(payload.Categories)
	rule.Keywords = cleanList(payload.Keywords)
	rule.SpikeDetection = payload.SpikeDetection
	rule.ActionWebhookURL = strings.TrimSpace(payload.ActionWebhookURL)
	rule.ActionSlackWebhook = strings.TrimSpace(payload.ActionSlackWebhook)
	if createdAt := strings.TrimSpace(payload.CreatedAt); createdAt != "" {
		rule.CreatedAt = model.FormatTime(model.ParseTime(createdAt))
	}

	if err := h.store.UpsertAlertRule(r.Context(), rule); err != nil {
		h.logger.Error("saving alert rule failed", "rule_id", rule.ID, "error", err)
		WriteInternalError(w, "Failed to save alert rule")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"item": rule})
}

// ListAlertInbox serves fired alerts joined with their rule and event.
func (h *Handler) ListAlertInbox(w http.ResponseWriter, r *http.Request) {
	status := queryString(r, "status")
	switch status {
	case "", model.AlertStatusNew, model.AlertStatusAcked, model.AlertStatusResolved:
	default:
		WriteBadRequest(w, "Invalid status filter")
		return
	}
	limit := queryInt(r, "limit", 200, 1, 500)

	items, err := h.store.ListAlertInbox(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("listing alert inbox failed", "error", err)
		WriteInternalError(w, "Failed to list alert inbox")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AckAlert moves an alert event to acked.
func (h *Handler) AckAlert(w http.ResponseWriter, r *http.Request) {
	h.updateAlertStatus(w, r, model.AlertStatusAcked)
}

// ResolveAlert moves an alert event to resolved.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.updateAlertStatus(w, r, model.AlertStatusResolved)
}

func (h *Handler) updateAlertStatus(w http.ResponseWriter, r *http.Request, status string) {
	alertEventID := chi.URLParam(r, "alertEventID")
	updated, err := h.store.UpdateAlertEventStatus(r.Context(), alertEventID, status)
	if err != nil {
		h.logger.Error("updating alert status failed",
			"alert_event_id", alertEventID, "status", status, "error", err)
		WriteInternalError(w, "Failed to update alert")
		return
	}
	if !updated {
		WriteNotFound(w, "Alert event not found")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"alert_event_id": alertEventID,
	})
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if cleaned := strings.TrimSpace(value); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

func cleanCategories(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		cleaned := strings.ToLower(strings.TrimSpace(value))
		if model.ValidCategory(cleaned) {
			out = append(out, cleaned)
		}
	}
	return out
}
