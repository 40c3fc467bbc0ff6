// Package apiserver implements C9: the HTTP adapter boundary described
// in spec.md §6, mapping DTOs onto the coordinator/thumbqueue/walsched/
// dupquery services and translating their errors into HTTP statuses.
package apiserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/denisvmedia/dedupfs/config"
	"github.com/denisvmedia/dedupfs/coordinator"
	"github.com/denisvmedia/dedupfs/dupquery"
	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/metrics"
	"github.com/denisvmedia/dedupfs/thumbqueue"
	"github.com/denisvmedia/dedupfs/walsched"
)

// Params bundles the services and configuration the router is built
// against, constructed once at startup (§9 "global mutable singletons"
// design note).
type Params struct {
	Coordinator *coordinator.Coordinator
	Thumbnails  *thumbqueue.Queue
	WAL         *walsched.Scheduler
	Duplicates  *dupquery.Engine
	Metrics     *metrics.Collector
	Registry    *prometheus.Registry
	Config      *config.Config
	Clock       clock.Clock
	StartTime   time.Time
}

func New(p Params) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.AllowAll().Handler)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.AllowContentType("application/json"))

	r.Get("/health", healthHandler(p))
	r.Get("/metrics", metricsHandler(p))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", jobsRoutes(p))
		r.Route("/thumbs", thumbsRoutes(p))
		r.Route("/maintenance/wal", walRoutes(p))
		r.Route("/duplicates", duplicatesRoutes(p))
	})

	return r
}

// metricsHandler refreshes the gauges from the store and then delegates
// to promhttp for the exposition-format response.
func metricsHandler(p Params) http.HandlerFunc {
	next := promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
	return func(w http.ResponseWriter, r *http.Request) {
		if err := p.Metrics.Refresh(r.Context()); err != nil {
			respondError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	}
}
