package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jofongang/World-Monitor/internal/model"
)

// UpsertAlertRule inserts or replaces a rule by id. created_at is kept
// from the original insert.
func (s *Store) UpsertAlertRule(ctx context.Context, rule model.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_rules (
			id, name, enabled, countries_json, regions_json, categories_json,
			keywords_json, severity_threshold, spike_detection, action_in_app,
			action_webhook_url, action_slack_webhook, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			countries_json = excluded.countries_json,
			regions_json = excluded.regions_json,
			categories_json = excluded.categories_json,
			keywords_json = excluded.keywords_json,
			severity_threshold = excluded.severity_threshold,
			spike_detection = excluded.spike_detection,
			action_in_app = excluded.action_in_app,
			action_webhook_url = excluded.action_webhook_url,
			action_slack_webhook = excluded.action_slack_webhook,
			updated_at = excluded.updated_at`,
		rule.ID, rule.Name, rule.Enabled,
		marshalList(rule.Countries), marshalList(rule.Regions),
		marshalList(rule.Categories), marshalList(rule.Keywords),
		rule.SeverityThreshold, rule.SpikeDetection, rule.ActionInApp,
		nullString(rule.ActionWebhookURL), nullString(rule.ActionSlackWebhook),
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting alert rule %s: %w", rule.ID, err)
	}
	return nil
}

// ListAlertRules returns all rules, most recently updated first.
func (s *Store) ListAlertRules(ctx context.Context) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, countries_json, regions_json, categories_json,
			keywords_json, severity_threshold, spike_detection, action_in_app,
			action_webhook_url, action_slack_webhook, created_at, updated_at
		FROM alert_rules
		ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing alert rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := []model.AlertRule{}
	for rows.Next() {
		var rule model.AlertRule
		var countries, regions, categories, keywords string
		var webhookURL, slackWebhook sql.NullString
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Enabled,
			&countries, &regions, &categories, &keywords,
			&rule.SeverityThreshold, &rule.SpikeDetection, &rule.ActionInApp,
			&webhookURL, &slackWebhook, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning alert rule: %w", err)
		}
		rule.Countries = unmarshalList(countries)
		rule.Regions = unmarshalList(regions)
		rule.Categories = unmarshalList(categories)
		rule.Keywords = unmarshalList(keywords)
		rule.ActionWebhookURL = webhookURL.String
		rule.ActionSlackWebhook = slackWebhook.String
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// EnsureDefaultAlertRule seeds the starter rule when no rules exist.
func (s *Store) EnsureDefaultAlertRule(ctx context.Context) error {
	rules, err := s.ListAlertRules(ctx)
	if err != nil {
		return err
	}
	if len(rules) > 0 {
		return nil
	}
	rule := model.NewAlertRule("High Severity Monitor")
	rule.SeverityThreshold = 65
	rule.Categories = []string{model.CategoryConflict, model.CategoryDisaster, model.CategorySanctions}
	rule.Keywords = []string{"attack", "earthquake", "sanctions", "ceasefire"}
	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return s.UpsertAlertRule(ctx, rule)
}

// AddAlertEvent fires an alert unless the (rule, event) pair already
// fired before. Reports whether a new row was written.
func (s *Store) AddAlertEvent(ctx context.Context, alert model.AlertEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alert_events (
			id, rule_id, event_id, status, fired_at, acked_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.RuleID, alert.EventID, alert.Status, alert.FiredAt,
		nullString(alert.AckedAt), nullString(alert.ResolvedAt))
	if err != nil {
		return false, fmt.Errorf("adding alert event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking alert insert: %w", err)
	}
	return affected > 0, nil
}

// ListAlertInbox returns fired alerts joined with their rule and
// event, newest first, optionally filtered by status.
func (s *Store) ListAlertInbox(ctx context.Context, status string, limit int) ([]model.AlertInboxItem, error) {
	if limit == 0 {
		limit = 200
	}
	query := `
		SELECT
			ae.id, ae.rule_id, r.name, ae.event_id, ae.status,
			ae.fired_at, ae.acked_at, ae.resolved_at,
			e.title, e.source, e.source_url, e.category, e.country, e.region,
			e.severity, e.confidence, e.occurred_at, e.cluster_id
		FROM alert_events ae
		JOIN alert_rules r ON r.id = ae.rule_id
		JOIN events e ON e.id = ae.event_id`
	args := []any{}
	if status != "" {
		query += " WHERE ae.status = ?"
		args = append(args, status)
	}
	query += " ORDER BY ae.fired_at DESC LIMIT ?"
	args = append(args, clampRange(limit, 1, 500))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing alert inbox: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []model.AlertInboxItem{}
	for rows.Next() {
		var item model.AlertInboxItem
		var ackedAt, resolvedAt sql.NullString
		if err := rows.Scan(
			&item.AlertEventID, &item.RuleID, &item.RuleName, &item.EventID, &item.Status,
			&item.FiredAt, &ackedAt, &resolvedAt,
			&item.Title, &item.Source, &item.SourceURL, &item.Category,
			&item.Country, &item.Region, &item.Severity, &item.Confidence,
			&item.OccurredAt, &item.ClusterID,
		); err != nil {
			return nil, fmt.Errorf("scanning alert inbox item: %w", err)
		}
		item.AckedAt = ackedAt.String
		item.ResolvedAt = resolvedAt.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateAlertEventStatus advances an alert to acked or resolved.
// Transitions are forward-only; resolving an un-acked alert backfills
// acked_at so the lifecycle timestamps stay complete. Reports whether
// a row changed.
func (s *Store) UpdateAlertEventStatus(ctx context.Context, alertEventID, status string) (bool, error) {
	now := s.now()

	var query string
	var args []any
	switch status {
	case model.AlertStatusAcked:
		query = `UPDATE alert_events SET status = ?, acked_at = ?
			WHERE id = ? AND status = ?`
		args = []any{model.AlertStatusAcked, now, alertEventID, model.AlertStatusNew}
	case model.AlertStatusResolved:
		query = `UPDATE alert_events SET status = ?, resolved_at = ?,
				acked_at = COALESCE(acked_at, ?)
			WHERE id = ? AND status != ?`
		args = []any{model.AlertStatusResolved, now, now, alertEventID, model.AlertStatusResolved}
	default:
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating alert %s: %w", alertEventID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking alert update: %w", err)
	}
	return affected > 0, nil
}
