// Package server runs the per-connection lifecycle: registration, name
// handshake, message relay and deregistration.
package server

import (
	"errors"
	"io"

	"github.com/Tyrowin/gorelay/internal/logging"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Handler runs the lifecycle of one admitted connection: register, read the
// display name, relay messages, deregister.
type Handler struct {
	registry       *Registry
	broadcaster    *Broadcaster
	metrics        *Metrics
	logger         zerolog.Logger
	maxMessageSize int
	maxNameLength  int
	rateLimit      RateLimitConfig

	// closing reports whether server shutdown has begun.
	closing func() bool
}

// NewHandler creates a Handler from the relay configuration.
func NewHandler(cfg *Config, registry *Registry, broadcaster *Broadcaster, metrics *Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		registry:       registry,
		broadcaster:    broadcaster,
		metrics:        metrics,
		logger:         logging.Component(logger, "handler"),
		maxMessageSize: cfg.MaxMessageSize,
		maxNameLength:  cfg.NameLimit(),
		rateLimit:      cfg.RateLimit,
	}
}

// session is the per-connection state owned by one Serve call.
type session struct {
	conn    *Conn
	buf     []byte
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// Serve runs c through its lifecycle. The caller must already hold a
// registry reservation for c; Serve returns once c is deregistered and
// closed.
func (h *Handler) Serve(c *Conn) {
	s := &session{
		conn:    c,
		buf:     make([]byte, h.maxMessageSize),
		limiter: newRateLimiter(h.rateLimit),
		logger: h.logger.With().
			Uint64("conn_id", c.id).
			Str("remote_addr", c.addr).
			Logger(),
	}

	if err := h.registry.Insert(c); err != nil {
		s.logger.Error().Err(err).Msg("Failed to insert reserved connection")
		h.registry.Release()
		h.closeTransport(s)
		return
	}
	h.metrics.connectionsTotal.Inc()
	h.metrics.connectionsActive.Inc()
	s.logger.Debug().Int("slot", c.slot).Int("active", h.registry.Active()).Msg("Connection registered")

	// Shutdown may have swept the registry before this insert.
	if h.closing != nil && h.closing() {
		if _, err := c.transport.Write([]byte(ServerClosing)); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to send closing notice")
		}
		h.metrics.disconnects.WithLabelValues(reasonShutdown).Inc()
		h.deregister(s)
		return
	}

	if !h.handshake(s) {
		h.metrics.disconnects.WithLabelValues(reasonHandshake).Inc()
		h.deregister(s)
		return
	}

	reason, notify := h.relay(s)
	h.metrics.disconnects.WithLabelValues(reason).Inc()
	h.deregister(s)

	s.logger.Info().Str("reason", reason).Bool("notify", notify).Msg(string(disconnectedNotice(c.name)))
	if notify {
		h.broadcaster.BroadcastAll(disconnectedNotice(c.name))
	}
}

// handshake reads the display name and announces the new member.
func (h *Handler) handshake(s *session) bool {
	n, err := s.conn.transport.Read(s.buf)
	if n == 0 {
		h.logReadEnd(s, err, "Connection closed before handshake")
		return false
	}

	name := messageBody(s.buf[:n])
	if len(name) > h.maxNameLength {
		name = name[:h.maxNameLength]
	}
	s.conn.name = string(name)
	s.logger = s.logger.With().Str("name", s.conn.name).Logger()

	notice := connectedNotice(s.conn.name)
	s.logger.Info().Msg(string(notice))
	h.broadcaster.BroadcastAll(notice)
	return true
}

// relay forwards messages until the peer leaves. It reports why the loop
// ended and whether a disconnect notice is due. A zero-byte read on the
// very first relay read ends the loop without a notice.
func (h *Handler) relay(s *session) (reason string, notify bool) {
	for reads := 1; ; reads++ {
		n, err := s.conn.transport.Read(s.buf)
		if n == 0 {
			h.logReadEnd(s, err, "Connection closed")
			reason = reasonClosed
			if err != nil && !isExpectedCloseError(err) {
				reason = reasonError
			}
			return reason, reads > 1
		}

		body := messageBody(s.buf[:n])
		if isLeaveCommand(body) {
			s.logger.Debug().Str("command", string(body)).Msg("Leave command received")
			return reasonLeave, true
		}

		if s.limiter != nil && !s.limiter.Allow() {
			h.metrics.messagesRateLimited.Inc()
			s.logger.Warn().
				Int("burst", h.rateLimit.Burst).
				Dur("interval", h.rateLimit.Interval).
				Msg("Rate limit exceeded; discarding message")
			continue
		}

		msg := relayMessage(s.conn.name, body)
		s.logger.Debug().Bytes("message", msg).Msg("Relaying message")
		h.broadcaster.BroadcastExcept(msg, s.conn)
		h.metrics.messagesRelayed.Inc()
	}
}

// deregister frees the slot before the transport is closed.
func (h *Handler) deregister(s *session) {
	if err := h.registry.Remove(s.conn); err != nil {
		s.logger.Error().Err(err).Msg("Failed to remove connection from registry")
	} else {
		h.metrics.connectionsActive.Dec()
	}
	h.closeTransport(s)
}

func (h *Handler) closeTransport(s *session) {
	if err := s.conn.transport.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warn().Err(err).Msg("Error closing connection")
	}
}

func (h *Handler) logReadEnd(s *session, err error, msg string) {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		s.logger.Debug().Msg(msg)
	case isExpectedCloseError(err):
		s.logger.Debug().Err(err).Msg(msg)
	default:
		s.logger.Warn().Err(err).Msg("Read error")
	}
}
