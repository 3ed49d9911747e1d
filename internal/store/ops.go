package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jofongang/World-Monitor/internal/model"
)

// ConnectorRun is the outcome of one connector pass, recorded against
// the connector's status row.
type ConnectorRun struct {
	Name         string
	Enabled      bool
	Success      bool
	ItemsFetched int
	DurationMs   int
	NextRunAt    string
	ErrorMessage string
}

// SetConnectorStatus upserts the status row for a connector. A
// successful run updates last_success_at and a failed run updates
// last_error_at; the opposite-side timestamp is preserved from the
// previous run.
func (s *Store) SetConnectorStatus(ctx context.Context, run ConnectorRun) error {
	now := s.now()
	var lastSuccess, lastError sql.NullString
	if run.Success {
		lastSuccess = sql.NullString{String: now, Valid: true}
	} else {
		lastError = sql.NullString{String: now, Valid: true}
	}
	if run.ItemsFetched < 0 {
		run.ItemsFetched = 0
	}
	if run.DurationMs < 0 {
		run.DurationMs = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connector_status (
			name, enabled, last_success_at, last_error_at, last_error,
			next_run_at, items_fetched, last_duration_ms, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			enabled = excluded.enabled,
			last_success_at = CASE WHEN excluded.last_success_at IS NOT NULL
				THEN excluded.last_success_at ELSE connector_status.last_success_at END,
			last_error_at = CASE WHEN excluded.last_error_at IS NOT NULL
				THEN excluded.last_error_at ELSE connector_status.last_error_at END,
			last_error = excluded.last_error,
			next_run_at = excluded.next_run_at,
			items_fetched = excluded.items_fetched,
			last_duration_ms = excluded.last_duration_ms,
			updated_at = excluded.updated_at`,
		run.Name, run.Enabled, lastSuccess, lastError,
		nullString(run.ErrorMessage), nullString(run.NextRunAt),
		run.ItemsFetched, run.DurationMs, now)
	if err != nil {
		return fmt.Errorf("updating connector status %s: %w", run.Name, err)
	}
	return nil
}

// ListConnectorStatus returns every connector status row, by name.
func (s *Store) ListConnectorStatus(ctx context.Context) ([]model.ConnectorStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, enabled, last_success_at, last_error_at, last_error,
			next_run_at, items_fetched, last_duration_ms, updated_at
		FROM connector_status
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing connector status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	statuses := []model.ConnectorStatus{}
	for rows.Next() {
		var status model.ConnectorStatus
		var lastSuccess, lastError, lastErrMsg, nextRun sql.NullString
		if err := rows.Scan(
			&status.Name, &status.Enabled, &lastSuccess, &lastError, &lastErrMsg,
			&nextRun, &status.ItemsFetched, &status.LastDurationMs, &status.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning connector status: %w", err)
		}
		status.LastSuccessAt = lastSuccess.String
		status.LastErrorAt = lastError.String
		status.LastError = lastErrMsg.String
		status.NextRunAt = nextRun.String
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// AddIngestionLog appends one ingestion log line. Messages are capped
// at 800 bytes.
func (s *Store) AddIngestionLog(ctx context.Context, level, connector, message string) error {
	if len(message) > 800 {
		message = message[:800]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_logs (created_at, level, connector, message)
		VALUES (?, ?, ?, ?)`,
		s.now(), strings.ToUpper(level), connector, message)
	if err != nil {
		return fmt.Errorf("adding ingestion log: %w", err)
	}
	return nil
}

// ListIngestionLogs returns the newest log lines.
func (s *Store) ListIngestionLogs(ctx context.Context, limit int) ([]model.IngestionLog, error) {
	if limit == 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, level, connector, message
		FROM ingestion_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		clampRange(limit, 1, 500))
	if err != nil {
		return nil, fmt.Errorf("listing ingestion logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	logs := []model.IngestionLog{}
	for rows.Next() {
		var entry model.IngestionLog
		if err := rows.Scan(&entry.ID, &entry.CreatedAt, &entry.Level, &entry.Connector, &entry.Message); err != nil {
			return nil, fmt.Errorf("scanning ingestion log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// UpsertSavedQuery inserts or replaces a saved query by id.
func (s *Store) UpsertSavedQuery(ctx context.Context, query model.SavedQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_queries (id, name, query, filters_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			query = excluded.query,
			filters_json = excluded.filters_json,
			updated_at = excluded.updated_at`,
		query.ID, query.Name, query.Query, marshalMap(query.Filters),
		query.CreatedAt, query.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting saved query %s: %w", query.ID, err)
	}
	return nil
}

// ListSavedQueries returns all saved queries, most recently updated
// first.
func (s *Store) ListSavedQueries(ctx context.Context) ([]model.SavedQuery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, query, filters_json, created_at, updated_at
		FROM saved_queries
		ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing saved queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	queries := []model.SavedQuery{}
	for rows.Next() {
		var query model.SavedQuery
		var filters string
		if err := rows.Scan(&query.ID, &query.Name, &query.Query, &filters,
			&query.CreatedAt, &query.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning saved query: %w", err)
		}
		query.Filters = unmarshalMap(filters)
		queries = append(queries, query)
	}
	return queries, rows.Err()
}

// DeleteSavedQuery removes a saved query. Reports whether it existed.
func (s *Store) DeleteSavedQuery(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM saved_queries WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting saved query %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking saved query delete: %w", err)
	}
	return affected > 0, nil
}

// AddAuditLog records one system or operator action.
func (s *Store) AddAuditLog(ctx context.Context, action, actor string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, actor, metadata_json, time)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), action, actor, marshalMap(metadata), s.now())
	if err != nil {
		return fmt.Errorf("adding audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns the newest audit entries.
func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error) {
	if limit == 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, actor, metadata_json, time
		FROM audit_logs
		ORDER BY time DESC
		LIMIT ?`,
		clampRange(limit, 1, 500))
	if err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	logs := []model.AuditLog{}
	for rows.Next() {
		var entry model.AuditLog
		var metadata string
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Actor, &metadata, &entry.Time); err != nil {
			return nil, fmt.Errorf("scanning audit log: %w", err)
		}
		entry.Metadata = unmarshalMap(metadata)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
