package model

import "github.com/google/uuid"

// ConnectorStatus is the latest health snapshot for one connector.
// One row per connector name, overwritten each run; run history lives
// in the append-only ingestion log.
type ConnectorStatus struct {
	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	LastSuccessAt  string `json:"last_success_at,omitempty"`
	LastErrorAt    string `json:"last_error_at,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	NextRunAt      string `json:"next_run_at,omitempty"`
	ItemsFetched   int    `json:"items_fetched"`
	LastDurationMs int    `json:"last_duration_ms"`
	UpdatedAt      string `json:"updated_at"`
}

// IngestionLog is one append-only log line from an ingestion pass.
type IngestionLog struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"created_at"`
	Level     string `json:"level"`
	Connector string `json:"connector"`
	Message   string `json:"message"`
}

// SavedQuery is a user-owned stored search.
type SavedQuery struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Query     string         `json:"query"`
	Filters   map[string]any `json:"filters"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// NewSavedQuery returns a saved query with an assigned id.
func NewSavedQuery(name, query string) SavedQuery {
	now := UTCNow()
	return SavedQuery{
		ID:        uuid.NewString(),
		Name:      name,
		Query:     query,
		Filters:   map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AuditLog records one system or operator action.
type AuditLog struct {
	ID       string         `json:"id"`
	Action   string         `json:"action"`
	Actor    string         `json:"actor"`
	Metadata map[string]any `json:"metadata"`
	Time     string         `json:"time"`
}
