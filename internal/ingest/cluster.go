// Package ingest runs the scheduled ingestion pipeline: it drives the
// connectors, assigns cluster ids, persists the batch, and evaluates
// alert rules against the fresh events.
package ingest

import (
	"github.com/jofongang/World-Monitor/internal/classify"
	"github.com/jofongang/World-Monitor/internal/model"
)

// clusterKeyTitleLen bounds the title contribution to the cluster key
// so minor headline edits still land in the same cluster.
const clusterKeyTitleLen = 80

// AssignClusters stamps every event with its cluster id and a fresh
// updated_at. The cluster key groups same-story reports: a truncated
// normalized title, the country, and the hour the event occurred in.
func AssignClusters(events []model.Event) []model.Event {
	now := model.UTCNow()
	for i := range events {
		events[i].ClusterID = ClusterID(events[i])
		events[i].UpdatedAt = now
	}
	return events
}

// ClusterID derives the stable cluster id for one event.
func ClusterID(event model.Event) string {
	titleKey := classify.Normalize(event.Title)
	if len(titleKey) > clusterKeyTitleLen {
		titleKey = titleKey[:clusterKeyTitleLen]
	}
	country := event.Country
	if country == "" {
		country = "global"
	}
	bucket := model.HourBucket(event.OccurredAt)
	return classify.TextHash(titleKey + "|" + classify.Normalize(country) + "|" + bucket)[:20]
}
