package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tastemachine/poa-engine/pkg/metrics"
)

// handleHealth serves GET /healthz. The response is the Prometheus
// exposition of the engine's metric registry, which doubles as a liveness
// signal.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
