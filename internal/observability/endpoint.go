// Package observability exposes the optional Prometheus metrics endpoint.
package observability

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mandersson1024/intonation-toy-sub003/internal/logging"
	"github.com/mandersson1024/intonation-toy-sub003/internal/observability/metrics"
)

// Endpoint serves /metrics over HTTP with graceful shutdown.
type Endpoint struct {
	server *http.Server
	logger *slog.Logger
}

// NewEndpoint creates a metrics endpoint bound to addr serving the given
// registry.
func NewEndpoint(addr string, registry *metrics.Registry) *Endpoint {
	logger := logging.ForService("observability")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		registry.Prometheus(),
		promhttp.HandlerOpts{},
	))

	return &Endpoint{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in a background goroutine. Server errors other than
// graceful close are logged, not returned.
func (e *Endpoint) Start() {
	e.logger.Info("metrics endpoint starting", "addr", e.server.Addr)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("metrics endpoint failed", "error", err)
		}
	}()
}

// Shutdown stops the endpoint, waiting for in-flight requests up to the
// context deadline.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	e.logger.Info("metrics endpoint stopping")
	return e.server.Shutdown(ctx)
}
