// Package server accepts relay clients, reserves their capacity and tracks
// the handler goroutines and listeners that shutdown must close.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/Tyrowin/gorelay/internal/logging"
	"github.com/rs/zerolog"
)

// Server admits connections from one or more listeners into a shared
// registry and runs a Handler goroutine per admitted connection.
type Server struct {
	cfg         *Config
	registry    *Registry
	broadcaster *Broadcaster
	handler     *Handler
	metrics     *Metrics
	baseLogger  zerolog.Logger
	logger      zerolog.Logger

	nextID atomic.Uint64

	// admitMu orders the closing flag against wg.Add so no handler starts
	// after shutdown begins.
	admitMu sync.Mutex
	closing atomic.Bool
	wg      sync.WaitGroup

	closersMu sync.Mutex
	closers   []io.Closer
}

// NewServer creates a relay server from cfg.
func NewServer(cfg *Config, metrics *Metrics, logger zerolog.Logger) *Server {
	registry := NewRegistry(cfg.MaxClients)
	broadcaster := NewBroadcaster(registry, metrics, logger)
	s := &Server{
		cfg:         cfg,
		registry:    registry,
		broadcaster: broadcaster,
		handler:     NewHandler(cfg, registry, broadcaster, metrics, logger),
		metrics:     metrics,
		baseLogger:  logger,
		logger:      logging.Component(logger, "server"),
	}
	s.handler.closing = s.closing.Load
	return s
}

// Registry returns the server's connection registry.
func (s *Server) Registry() *Registry { return s.registry }

// Listen opens the TCP listener on the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return ln, nil
}

// Serve accepts connections on ln until it is closed. It returns
// ErrServerClosed after shutdown and any other accept error wrapped.
func (s *Server) Serve(ln net.Listener) error {
	s.AddCloser(ln)
	if s.closing.Load() {
		_ = ln.Close()
		return ErrServerClosed
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Relay is listening for clients")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.Admit(conn, conn.RemoteAddr().String())
	}
}

// Admit reserves capacity for t and starts its handler. When the registry
// is full the peer receives ServerFull and is closed without registering.
func (s *Server) Admit(t Transport, addr string) {
	logger := s.logger.With().Str("remote_addr", addr).Logger()

	s.admitMu.Lock()
	if s.closing.Load() {
		s.admitMu.Unlock()
		s.reject(t, ServerClosing, logger)
		logger.Info().Msg("Rejected connection: server closing")
		return
	}
	if err := s.registry.Reserve(); err != nil {
		s.admitMu.Unlock()
		s.reject(t, ServerFull, logger)
		logger.Warn().Err(err).Int("capacity", s.registry.Capacity()).Msg("Rejected connection")
		return
	}
	s.wg.Add(1)
	s.admitMu.Unlock()

	c := newConn(s.nextID.Add(1), addr, t)
	go func() {
		defer s.wg.Done()
		s.handler.Serve(c)
	}()
}

func (s *Server) reject(t Transport, notice string, logger zerolog.Logger) {
	s.metrics.connectionsRejected.Inc()
	if _, err := t.Write([]byte(notice)); err != nil {
		logger.Debug().Err(err).Msg("Failed to send rejection notice")
	}
	if err := t.Close(); err != nil && !isExpectedCloseError(err) {
		logger.Warn().Err(err).Msg("Error closing rejected connection")
	}
}

// AddCloser registers a listener or server to be closed by CloseAll.
func (s *Server) AddCloser(c io.Closer) {
	s.closersMu.Lock()
	defer s.closersMu.Unlock()
	s.closers = append(s.closers, c)
}

// beginClose marks the server as closing; new connections are turned away.
func (s *Server) beginClose() {
	s.admitMu.Lock()
	defer s.admitMu.Unlock()
	s.closing.Store(true)
}

// CloseAll closes every registered transport and then every listener.
// Handlers blocked in Read fail and deregister on their own.
func (s *Server) CloseAll() {
	s.beginClose()

	closed := 0
	s.registry.ForEach(func(c *Conn) {
		if err := c.transport.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn().Err(err).Uint64("conn_id", c.id).Msg("Error closing client connection")
		}
		closed++
	})
	s.logger.Info().Int("connections", closed).Msg("Closed client connections")

	s.closersMu.Lock()
	closers := s.closers
	s.closers = nil
	s.closersMu.Unlock()

	for _, c := range closers {
		if err := c.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn().Err(err).Msg("Error closing listener")
		}
	}
}

// handlersDone returns a channel closed once every admitted handler has
// returned. Only meaningful after beginClose.
func (s *Server) handlersDone() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	return done
}
