package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/jofongang/World-Monitor/internal/connector"
	"github.com/jofongang/World-Monitor/internal/metrics"
	"github.com/jofongang/World-Monitor/internal/model"
	"github.com/jofongang/World-Monitor/internal/store"
)

// Options tunes the ingestion service.
type Options struct {
	RefreshInterval  time.Duration // scheduler period between runs
	ConnectorDelay   time.Duration // pause between connectors in a run
	SinceHours       int           // lookback window passed to connectors
	SchedulerEnabled bool
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	return Options{
		RefreshInterval:  10 * time.Minute,
		ConnectorDelay:   350 * time.Millisecond,
		SinceHours:       48,
		SchedulerEnabled: true,
	}
}

// ConnectorSummary reports one connector's contribution to a run.
type ConnectorSummary struct {
	Name       string `json:"name"`
	Items      int    `json:"items"`
	DurationMs int    `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Run statuses returned by Ingest.
const (
	RunStatusOK    = "ok"
	RunStatusBusy  = "busy"
	RunStatusError = "error"
)

// RunSummary is the outcome of one ingestion run.
type RunSummary struct {
	Status      string             `json:"status"`
	Ingested    int                `json:"ingested"`
	AlertsFired int                `json:"alerts_fired,omitempty"`
	Connectors  []ConnectorSummary `json:"connectors,omitempty"`
	StartedAt   string             `json:"started_at,omitempty"`
	FinishedAt  string             `json:"finished_at,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// RuntimeStatus is the scheduler state exposed by the jobs API.
type RuntimeStatus struct {
	Running           bool   `json:"running"`
	RefreshMinutes    int    `json:"refresh_minutes"`
	LastRunStartedAt  string `json:"last_run_started_at,omitempty"`
	LastRunFinishedAt string `json:"last_run_finished_at,omitempty"`
	LastError         string `json:"last_error,omitempty"`
	LastIngestedCount int    `json:"last_ingested_count"`
	NextRunAt         string `json:"next_run_at,omitempty"`
}

// Service owns the ingestion loop. At most one run executes at a time;
// a run requested while another is active reports busy instead of
// queueing.
type Service struct {
	store      *store.Store
	connectors []connector.Connector
	logger     *slog.Logger
	metrics    *metrics.Metrics
	notifier   *Notifier
	clock      clockwork.Clock
	opts       Options

	cron    *cron.Cron
	cronID  cron.EntryID
	started bool

	runMu sync.Mutex // held for the duration of a run

	stateMu           sync.Mutex
	running           bool
	lastRunStartedAt  string
	lastRunFinishedAt string
	lastError         string
	lastIngestedCount int
}

// New creates the ingestion service. The notifier may be nil when no
// webhook actions are configured.
func New(st *store.Store, connectors []connector.Connector, logger *slog.Logger, m *metrics.Metrics, notifier *Notifier, opts Options) *Service {
	if opts.RefreshInterval < time.Minute {
		opts.RefreshInterval = time.Minute
	}
	if opts.SinceHours < 6 {
		opts.SinceHours = 6
	}
	if opts.ConnectorDelay < 0 {
		opts.ConnectorDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewForTesting()
	}
	return &Service{
		store:      st,
		connectors: connectors,
		logger:     logger,
		metrics:    m,
		notifier:   notifier,
		clock:      clockwork.NewRealClock(),
		opts:       opts,
	}
}

// SetClock overrides the clock, for tests.
func (s *Service) SetClock(clock clockwork.Clock) { s.clock = clock }

// Start kicks off an immediate run and, when the scheduler is enabled,
// registers the periodic run.
func (s *Service) Start(ctx context.Context) error {
	if s.started {
		return nil
	}
	s.started = true

	if s.notifier != nil {
		s.notifier.Start(ctx)
	}

	go func() {
		s.Ingest(ctx, true)
	}()

	if !s.opts.SchedulerEnabled {
		return nil
	}
	s.cron = cron.New()
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.RefreshInterval), func() {
		s.Ingest(context.Background(), false)
	})
	if err != nil {
		return fmt.Errorf("scheduling ingestion: %w", err)
	}
	s.cronID = id
	s.cron.Start()
	s.logger.Info("ingestion scheduler started", "interval", s.opts.RefreshInterval)
	return nil
}

// Stop halts the scheduler and waits for a running cron invocation.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
	if s.notifier != nil {
		s.notifier.Stop()
	}
	s.started = false
}

// RuntimeStatus returns the scheduler state.
func (s *Service) RuntimeStatus() RuntimeStatus {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	status := RuntimeStatus{
		Running:           s.running,
		RefreshMinutes:    int(s.opts.RefreshInterval / time.Minute),
		LastRunStartedAt:  s.lastRunStartedAt,
		LastRunFinishedAt: s.lastRunFinishedAt,
		LastError:         s.lastError,
		LastIngestedCount: s.lastIngestedCount,
	}
	if s.lastRunStartedAt != "" {
		started := model.ParseTime(s.lastRunStartedAt)
		status.NextRunAt = model.FormatTime(started.Add(s.opts.RefreshInterval))
	}
	return status
}

// Ingest executes one full run: every connector in order, cluster
// assignment, a single batched upsert, and rule evaluation. Returns a
// busy summary without side effects when a run is already active.
func (s *Service) Ingest(ctx context.Context, force bool) RunSummary {
	trigger := "scheduled"
	if force {
		trigger = "manual"
	}
	if !s.runMu.TryLock() {
		s.metrics.IngestRuns.WithLabelValues(trigger, "busy").Inc()
		return RunSummary{Status: RunStatusBusy}
	}
	defer s.runMu.Unlock()

	runStart := s.clock.Now()
	startedAt := model.FormatTime(runStart)
	s.setRunning(true, startedAt)
	s.metrics.IngestRunning.Set(1)
	defer func() {
		s.setRunning(false, "")
		s.metrics.IngestRunning.Set(0)
		s.metrics.IngestDuration.Observe(s.clock.Since(runStart).Seconds())
	}()

	var (
		all       []model.Event
		summaries []ConnectorSummary
	)

	for i, conn := range s.connectors {
		if !conn.Enabled() {
			if err := s.store.SetConnectorStatus(ctx, store.ConnectorRun{
				Name:         conn.Name(),
				Enabled:      false,
				ItemsFetched: 0,
				DurationMs:   0,
				NextRunAt:    s.nextRunAt(),
				ErrorMessage: "connector disabled",
			}); err != nil {
				return s.failRun(ctx, trigger, err)
			}
			continue
		}

		result := conn.Fetch(ctx, s.opts.SinceHours)
		events := AssignClusters(result.Events)
		all = append(all, events...)

		s.metrics.ConnectorDuration.WithLabelValues(result.Name).
			Observe(float64(result.DurationMs) / 1000)
		if err := s.store.SetConnectorStatus(ctx, store.ConnectorRun{
			Name:         result.Name,
			Enabled:      true,
			Success:      result.OK(),
			ItemsFetched: len(events),
			DurationMs:   result.DurationMs,
			NextRunAt:    s.nextRunAt(),
			ErrorMessage: result.Err,
		}); err != nil {
			return s.failRun(ctx, trigger, err)
		}

		if result.OK() {
			s.metrics.ConnectorEvents.WithLabelValues(result.Name).Add(float64(len(events)))
			if err := s.store.AddIngestionLog(ctx, "INFO", result.Name,
				fmt.Sprintf("Fetched %d events in %dms", len(events), result.DurationMs)); err != nil {
				return s.failRun(ctx, trigger, err)
			}
		} else {
			s.metrics.ConnectorErrors.WithLabelValues(result.Name).Inc()
			if err := s.store.AddIngestionLog(ctx, "ERROR", result.Name, result.Err); err != nil {
				return s.failRun(ctx, trigger, err)
			}
		}
		summaries = append(summaries, ConnectorSummary{
			Name:       result.Name,
			Items:      len(events),
			DurationMs: result.DurationMs,
			Error:      result.Err,
		})

		if s.opts.ConnectorDelay > 0 && i < len(s.connectors)-1 {
			select {
			case <-ctx.Done():
				return s.failRun(ctx, trigger, ctx.Err())
			case <-s.clock.After(s.opts.ConnectorDelay):
			}
		}
	}

	ingested, err := s.store.UpsertEvents(ctx, all)
	if err != nil {
		return s.failRun(ctx, trigger, err)
	}
	fired, err := s.evaluateRules(ctx, all)
	if err != nil {
		return s.failRun(ctx, trigger, err)
	}

	finishedAt := model.FormatTime(s.clock.Now())
	s.stateMu.Lock()
	s.lastIngestedCount = ingested
	s.lastRunFinishedAt = finishedAt
	s.stateMu.Unlock()

	if err := s.store.AddAuditLog(ctx, "job.ingest", "system", map[string]any{
		"force":           force,
		"ingested":        ingested,
		"alerts_fired":    fired,
		"connector_count": len(summaries),
	}); err != nil {
		s.logger.Warn("recording ingest audit log failed", "error", err)
	}

	s.metrics.IngestRuns.WithLabelValues(trigger, "completed").Inc()
	s.logger.Info("ingestion run completed",
		"trigger", trigger,
		"ingested", ingested,
		"alerts_fired", fired,
		"connectors", len(summaries))

	return RunSummary{
		Status:      RunStatusOK,
		Ingested:    ingested,
		AlertsFired: fired,
		Connectors:  summaries,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}
}

func (s *Service) failRun(ctx context.Context, trigger string, err error) RunSummary {
	finishedAt := model.FormatTime(s.clock.Now())
	s.stateMu.Lock()
	s.lastError = err.Error()
	s.lastRunFinishedAt = finishedAt
	s.stateMu.Unlock()

	s.logger.Error("ingestion run failed", "trigger", trigger, "error", err)
	if logErr := s.store.AddIngestionLog(ctx, "ERROR", "scheduler",
		fmt.Sprintf("Ingestion failed: %v", err)); logErr != nil {
		s.logger.Warn("recording ingestion failure log failed", "error", logErr)
	}
	s.metrics.IngestRuns.WithLabelValues(trigger, "completed").Inc()
	return RunSummary{Status: RunStatusError, Error: err.Error(), FinishedAt: finishedAt}
}

func (s *Service) setRunning(running bool, startedAt string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.running = running
	if running {
		s.lastRunStartedAt = startedAt
		s.lastError = ""
	}
}

func (s *Service) nextRunAt() string {
	return model.FormatTime(s.clock.Now().Add(s.opts.RefreshInterval))
}
