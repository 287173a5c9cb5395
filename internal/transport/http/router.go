// Package http assembles the gateway's HTTP surface: tool-facing ingest,
// operator-facing administration, metrics, and health.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"doctrine/internal/doctrine/handler"
)

// NewRouter mounts all routes. Admin routes sit behind JWT auth; ingest
// routes identify callers by tool header only, since enforcement state is
// the engine's concern.
func NewRouter(h *handler.Handler, registry *prometheus.Registry, jwtSigningKey string) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		h.RegisterIngest(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(AdminAuth(jwtSigningKey))
		h.RegisterAdmin(r)
	})

	return r
}
