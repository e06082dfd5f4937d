// Package server wires the gateway and metrics handlers into ServeMuxes.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupGatewayRoutes returns the mux served on the websocket gateway
// address: health check, websocket endpoint and test page.
func (s *Server) SetupGatewayRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler())
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}

// SetupMetricsRoutes returns the mux served on the metrics address.
func (s *Server) SetupMetricsRoutes(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
