// Package server constructs and starts the optional HTTP listeners with
// production timeouts.
package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// CreateServer creates an HTTP server for handler on addr with production
// timeouts. Hijacked websocket connections are not subject to them.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartHTTP binds srv synchronously, so setup failures reach the caller,
// then serves it in the background. The server is closed by CloseAll.
func (s *Server) StartHTTP(srv *http.Server) (net.Addr, error) {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	s.AddCloser(srv)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Str("addr", srv.Addr).Msg("HTTP server stopped")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
	return ln.Addr(), nil
}
