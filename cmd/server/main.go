// Package main starts the GoRelay server: it loads configuration, binds the
// relay and optional HTTP listeners, and shuts down on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/gorelay/internal/logging"
	"github.com/Tyrowin/gorelay/internal/server"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "go.uber.org/automaxprocs"
)

// handlerDrainTimeout bounds the wait for handlers after forced closure.
const handlerDrainTimeout = 2 * time.Second

func main() {
	bootLogger := logging.New("info", logging.FormatJSON)

	cfg, err := server.LoadConfig(bootLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "SERVER: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, clockwork.NewRealClock(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run serves cfg until ctx is cancelled and returns the process exit code.
// Setup failures are reported on stderr.
func run(ctx context.Context, cfg *server.Config, clock clockwork.Clock, stdout, stderr io.Writer) int {
	logger := logging.NewWithWriter(stdout, cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relay := server.NewServer(cfg, server.NewMetrics(reg), logger)

	ln, err := relay.Listen()
	if err != nil {
		fmt.Fprintf(stderr, "SERVER: %v\n", err)
		return 1
	}

	if cfg.WebSocketAddr != "" {
		if _, err := relay.StartHTTP(server.CreateServer(cfg.WebSocketAddr, relay.SetupGatewayRoutes())); err != nil {
			fmt.Fprintf(stderr, "SERVER: websocket gateway: %v\n", err)
			relay.CloseAll()
			_ = ln.Close()
			return 1
		}
	}
	if cfg.MetricsAddr != "" {
		if _, err := relay.StartHTTP(server.CreateServer(cfg.MetricsAddr, relay.SetupMetricsRoutes(reg))); err != nil {
			fmt.Fprintf(stderr, "SERVER: metrics: %v\n", err)
			relay.CloseAll()
			_ = ln.Close()
			return 1
		}
	}

	coordinator := server.NewCoordinator(relay, clock, cfg.GracePeriod)
	shutdownDone := make(chan struct{})
	go func() {
		coordinator.Run(ctx)
		close(shutdownDone)
	}()

	if err := relay.Serve(ln); err != nil && !errors.Is(err, server.ErrServerClosed) {
		logger.Error().Err(err).Msg("Accept failed")
		fmt.Fprintf(stderr, "SERVER: %v\n", err)
		return 1
	}

	<-shutdownDone
	if err := coordinator.Drain(handlerDrainTimeout); err != nil {
		logger.Warn().Err(err).Msg("Exiting with handlers still running")
	}
	return 0
}
