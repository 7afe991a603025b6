// Package metrics exposes process metrics and the counters recorded by the
// enclave host.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
)

// MetricsServer serves /metrics in the Prometheus text format.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr. An empty addr yields a
// server that is never started.
func New(namespace, addr string) (*MetricsServer, error) {
	metrics.GetOrCreateGauge(fmt.Sprintf(`build_info{service=%q}`, namespace), func() float64 { return 1 })

	mux := chi.NewRouter()
	mux.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		metrics.WriteProcessMetrics(w)
		metrics.WritePrometheus(w, false)
	})

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
