package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Router builds the full API route tree. metricsHandler serves the
// Prometheus scrape endpoint; pass nil to skip /metrics.
func (h *Handler) Router(metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
	r.Get("/health/system", h.SystemHealth)

	if metricsHandler != nil {
		r.Method("GET", "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Get("/timeline", h.Timeline)
			r.Get("/hotspots", h.Hotspots)
			r.Get("/pulse", h.Pulse)
			r.Get("/{eventID}", h.GetEvent)
		})

		r.Get("/sources", h.Sources)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/status", h.JobStatus)
			r.Get("/logs", h.JobLogs)
			r.Post("/run", h.RunJob)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/rules", h.ListAlertRules)
			r.Post("/rules", h.UpsertAlertRule)
			r.Get("/inbox", h.ListAlertInbox)
			r.Post("/inbox/{alertEventID}/ack", h.AckAlert)
			r.Post("/inbox/{alertEventID}/resolve", h.ResolveAlert)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Get("/", h.ListQueries)
			r.Post("/", h.SaveQuery)
			r.Delete("/{queryID}", h.DeleteQuery)
		})

		r.Route("/markets", func(r chi.Router) {
			r.Get("/", h.Markets)
			r.Get("/history", h.MarketHistory)
		})
	})

	return r
}
