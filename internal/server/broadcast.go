// Package server fans relay messages out to every registered member,
// isolating write failures per member.
package server

import (
	"github.com/Tyrowin/gorelay/internal/logging"
	"github.com/rs/zerolog"
)

// Broadcaster fans messages out to registry members. Writes happen inside
// Registry.ForEach, so a message reaches exactly the members live when the
// iteration runs and broadcasts never interleave.
type Broadcaster struct {
	registry *Registry
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewBroadcaster creates a Broadcaster over registry.
func NewBroadcaster(registry *Registry, metrics *Metrics, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		metrics:  metrics,
		logger:   logging.Component(logger, "broadcast"),
	}
}

// BroadcastAll delivers msg to every member and returns the number of
// successful writes.
func (b *Broadcaster) BroadcastAll(msg []byte) int {
	return b.broadcast(msg, nil)
}

// BroadcastExcept delivers msg to every member other than sender.
func (b *Broadcaster) BroadcastExcept(msg []byte, sender *Conn) int {
	return b.broadcast(msg, sender)
}

func (b *Broadcaster) broadcast(msg []byte, skip *Conn) int {
	delivered := 0
	b.registry.ForEach(func(c *Conn) {
		if c == skip {
			return
		}
		if b.write(c, msg) {
			delivered++
		}
	})
	return delivered
}

// write failures are logged and counted; the member stays registered until
// its own handler exits.
func (b *Broadcaster) write(c *Conn, msg []byte) bool {
	if _, err := c.transport.Write(msg); err != nil {
		b.metrics.broadcastWriteFailures.Inc()
		b.logger.Warn().
			Err(err).
			Uint64("conn_id", c.id).
			Str("remote_addr", c.addr).
			Msg("Write error during broadcast")
		return false
	}
	return true
}
