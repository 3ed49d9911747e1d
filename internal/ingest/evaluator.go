package ingest

import (
	"context"
	"strings"

	"github.com/jofongang/World-Monitor/internal/classify"
	"github.com/jofongang/World-Monitor/internal/model"
)

// Pulse windows used by the spike-detection gate.
const (
	spikeWindowHours   = 6
	spikeBaselineHours = 24
)

// evaluateRules matches the freshly ingested batch against all enabled
// alert rules and records a fired alert per new (rule, event) pair.
// Returns the number of alerts fired this run.
func (s *Service) evaluateRules(ctx context.Context, events []model.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	rules, err := s.store.ListAlertRules(ctx)
	if err != nil {
		return 0, err
	}
	if len(rules) == 0 {
		return 0, nil
	}

	// The pulse snapshot is shared by every spike-gated rule in the run.
	var pulseDeltas map[string]float64
	loadPulse := func() (map[string]float64, error) {
		if pulseDeltas != nil {
			return pulseDeltas, nil
		}
		entries, err := s.store.Pulse(ctx, spikeWindowHours, spikeBaselineHours)
		if err != nil {
			return nil, err
		}
		pulseDeltas = make(map[string]float64, len(entries))
		for _, entry := range entries {
			pulseDeltas[entry.Country] = entry.DeltaRatio
		}
		return pulseDeltas, nil
	}

	fired := 0
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		for _, event := range events {
			matched, err := ruleMatches(rule, event, loadPulse)
			if err != nil {
				return fired, err
			}
			if !matched {
				continue
			}
			created, err := s.store.AddAlertEvent(ctx, model.NewAlertEvent(rule.ID, event.ID))
			if err != nil {
				return fired, err
			}
			if !created {
				continue
			}
			fired++
			s.metrics.AlertsFired.Inc()
			if s.notifier != nil {
				s.notifier.Notify(rule, event, model.UTCNow())
			}
		}
	}
	return fired, nil
}

// ruleMatches applies the rule predicate to one event. Empty
// allow-lists match everything and the severity threshold is an
// inclusive lower bound. Spike-gated rules additionally require the
// event's country to show at least a doubling of recent activity.
func ruleMatches(rule model.AlertRule, event model.Event, loadPulse func() (map[string]float64, error)) (bool, error) {
	if event.Severity < rule.SeverityThreshold {
		return false, nil
	}
	if len(rule.Countries) > 0 && !containsString(rule.Countries, event.Country) {
		return false, nil
	}
	if len(rule.Regions) > 0 && !containsString(rule.Regions, event.Region) {
		return false, nil
	}
	if len(rule.Categories) > 0 && !containsString(rule.Categories, event.Category) {
		return false, nil
	}
	if len(rule.Keywords) > 0 && !keywordMatches(rule.Keywords, event) {
		return false, nil
	}
	if rule.SpikeDetection {
		deltas, err := loadPulse()
		if err != nil {
			return false, err
		}
		if deltas[event.Country] < 1.0 {
			return false, nil
		}
	}
	return true, nil
}

func keywordMatches(keywords []string, event model.Event) bool {
	haystack := " " + classify.Normalize(strings.Join(
		[]string{event.Title, event.Summary, event.BodySnippet}, " ")) + " "
	for _, word := range keywords {
		needle := classify.Normalize(word)
		if needle == "" {
			continue
		}
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
