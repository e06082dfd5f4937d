// Package server coordinates the server-wide shutdown that follows a
// termination signal.
package server

import (
	"context"
	"time"

	"github.com/Tyrowin/gorelay/internal/logging"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Coordinator performs the server-wide hard stop: announce, wait out the
// grace period, close everything.
type Coordinator struct {
	server *Server
	clock  clockwork.Clock
	grace  time.Duration
	logger zerolog.Logger
}

// NewCoordinator creates a Coordinator for s using clock for the grace wait.
func NewCoordinator(s *Server, clock clockwork.Clock, grace time.Duration) *Coordinator {
	return &Coordinator{
		server: s,
		clock:  clock,
		grace:  grace,
		logger: logging.Component(s.baseLogger, "shutdown"),
	}
}

// Run blocks until ctx is cancelled and then shuts the server down.
func (c *Coordinator) Run(ctx context.Context) {
	<-ctx.Done()
	c.Shutdown()
}

// Shutdown sends ServerClosing to every member, waits the grace period and
// then force-closes all connections and listeners.
func (c *Coordinator) Shutdown() {
	c.logger.Info().Dur("grace_period", c.grace).Msg("Server will shut down after the grace period")

	c.server.beginClose()
	notified := c.server.broadcaster.BroadcastAll([]byte(ServerClosing))
	c.logger.Info().Int("notified", notified).Msg("Announced shutdown")

	if c.grace > 0 {
		<-c.clock.After(c.grace)
	}

	c.server.CloseAll()
	c.logger.Info().Msg("Shutdown complete")
}

// Drain waits until every handler has returned or timeout elapses on the
// coordinator's clock. It returns context.DeadlineExceeded on timeout.
func (c *Coordinator) Drain(timeout time.Duration) error {
	select {
	case <-c.server.handlersDone():
		return nil
	case <-c.clock.After(timeout):
		c.logger.Warn().Dur("timeout", timeout).Msg("Handlers still running after timeout")
		return context.DeadlineExceeded
	}
}
