package model

import "github.com/google/uuid"

// Alert event statuses. Transitions are forward-only:
// new -> acked -> resolved, with acked optional before resolved.
const (
	AlertStatusNew      = "new"
	AlertStatusAcked    = "acked"
	AlertStatusResolved = "resolved"
)

// AlertRule matches newly ingested events. Empty allow-lists match
// everything; SeverityThreshold is an inclusive lower bound.
type AlertRule struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Enabled            bool     `json:"enabled"`
	Countries          []string `json:"countries"`
	Regions            []string `json:"regions"`
	Categories         []string `json:"categories"`
	Keywords           []string `json:"keywords"`
	SeverityThreshold  int      `json:"severity_threshold"`
	SpikeDetection     bool     `json:"spike_detection"`
	ActionInApp        bool     `json:"action_in_app"`
	ActionWebhookURL   string   `json:"action_webhook_url,omitempty"`
	ActionSlackWebhook string   `json:"action_slack_webhook,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

// NewAlertRule returns an enabled rule with defaults applied.
func NewAlertRule(name string) AlertRule {
	now := UTCNow()
	return AlertRule{
		ID:                uuid.NewString(),
		Name:              name,
		Enabled:           true,
		Countries:         []string{},
		Regions:           []string{},
		Categories:        []string{},
		Keywords:          []string{},
		SeverityThreshold: 60,
		ActionInApp:       true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AlertEvent links one rule to one event. A rule fires on a given
// event at most once ever; the store enforces uniqueness on
// (rule_id, event_id).
type AlertEvent struct {
	ID         string `json:"id"`
	RuleID     string `json:"rule_id"`
	EventID    string `json:"event_id"`
	Status     string `json:"status"`
	FiredAt    string `json:"fired_at"`
	AckedAt    string `json:"acked_at,omitempty"`
	ResolvedAt string `json:"resolved_at,omitempty"`
}

// NewAlertEvent returns a freshly fired alert in status "new".
func NewAlertEvent(ruleID, eventID string) AlertEvent {
	return AlertEvent{
		ID:      uuid.NewString(),
		RuleID:  ruleID,
		EventID: eventID,
		Status:  AlertStatusNew,
		FiredAt: UTCNow(),
	}
}

// AlertInboxItem is an alert event joined with its rule and event for
// inbox listings.
type AlertInboxItem struct {
	AlertEventID string `json:"alert_event_id"`
	RuleID       string `json:"rule_id"`
	RuleName     string `json:"rule_name"`
	EventID      string `json:"event_id"`
	Status       string `json:"status"`
	FiredAt      string `json:"fired_at"`
	AckedAt      string `json:"acked_at,omitempty"`
	ResolvedAt   string `json:"resolved_at,omitempty"`
	Title        string `json:"title"`
	Source       string `json:"source"`
	SourceURL    string `json:"source_url"`
	Category     string `json:"category"`
	Country      string `json:"country"`
	Region       string `json:"region"`
	Severity     int    `json:"severity"`
	Confidence   int    `json:"confidence"`
	OccurredAt   string `json:"occurred_at"`
	ClusterID    string `json:"cluster_id"`
}
