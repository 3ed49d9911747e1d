package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jofongang/World-Monitor/internal/model"
)

// Notification is one outbound alert delivery.
type Notification struct {
	URL     string
	Slack   bool // Slack incoming-webhook payload shape instead of the raw alert
	Rule    model.AlertRule
	Event   model.Event
	FiredAt string
}

// NotifierConfig holds notifier configuration.
type NotifierConfig struct {
	Workers int
	Timeout time.Duration
}

// DefaultNotifierConfig returns the default notifier configuration.
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		Workers: 2,
		Timeout: 8 * time.Second,
	}
}

// Notifier delivers fired alerts to rule webhooks. Deliveries are
// queued and sent by background workers; a full queue drops the
// delivery with a warning rather than blocking ingestion.
type Notifier struct {
	client  *http.Client
	logger  *slog.Logger
	queue   chan Notification
	workers int
	wg      sync.WaitGroup
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewNotifier creates a webhook notifier.
func NewNotifier(logger *slog.Logger, cfg NotifierConfig) *Notifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		queue:   make(chan Notification, 100),
		workers: cfg.Workers,
		done:    make(chan struct{}),
	}
}

// Start launches the delivery workers.
func (n *Notifier) Start(ctx context.Context) {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return
	}
	n.running = true
	n.mu.Unlock()

	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.worker(ctx, i)
	}
}

// Stop stops the workers and waits for in-flight deliveries.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

// Notify queues the webhook deliveries configured on a fired rule.
func (n *Notifier) Notify(rule model.AlertRule, event model.Event, firedAt string) {
	if rule.ActionWebhookURL != "" {
		n.enqueue(Notification{URL: rule.ActionWebhookURL, Rule: rule, Event: event, FiredAt: firedAt})
	}
	if rule.ActionSlackWebhook != "" {
		n.enqueue(Notification{URL: rule.ActionSlackWebhook, Slack: true, Rule: rule, Event: event, FiredAt: firedAt})
	}
}

func (n *Notifier) enqueue(delivery Notification) {
	n.mu.Lock()
	running := n.running
	n.mu.Unlock()
	if !running {
		n.logger.Warn("notifier not running, dropping alert delivery",
			"rule", delivery.Rule.Name, "url", delivery.URL)
		return
	}

	select {
	case n.queue <- delivery:
	default:
		n.logger.Warn("alert delivery queue full, dropping delivery",
			"rule", delivery.Rule.Name, "url", delivery.URL)
	}
}

func (n *Notifier) worker(ctx context.Context, id int) {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case <-ctx.Done():
			return
		case delivery := <-n.queue:
			if err := n.deliver(ctx, delivery); err != nil {
				n.logger.Warn("alert delivery failed",
					"worker_id", id,
					"rule", delivery.Rule.Name,
					"url", delivery.URL,
					"error", err)
			}
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, delivery Notification) error {
	var payload any
	if delivery.Slack {
		payload = map[string]string{
			"text": fmt.Sprintf("[%s] %s (%s, severity %d)",
				delivery.Rule.Name,
				delivery.Event.Title,
				delivery.Event.Country,
				delivery.Event.Severity),
		}
	} else {
		payload = map[string]any{
			"rule_id":   delivery.Rule.ID,
			"rule_name": delivery.Rule.Name,
			"fired_at":  delivery.FiredAt,
			"event":     delivery.Event,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
