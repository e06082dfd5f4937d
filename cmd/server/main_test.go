// Package main tests the process entry point: exit codes, setup diagnostics
// and the signal-driven shutdown path.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/gorelay/internal/server"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 3 * time.Second

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// listeningAddr scans JSON log output for the relay's bound address.
func listeningAddr(logs string) string {
	scanner := bufio.NewScanner(strings.NewReader(logs))
	for scanner.Scan() {
		var entry struct {
			Addr    string `json:"addr"`
			Message string `json:"message"`
		}
		if json.Unmarshal(scanner.Bytes(), &entry) == nil && entry.Message == "Relay is listening for clients" {
			return entry.Addr
		}
	}
	return ""
}

func testConfig() *server.Config {
	cfg := server.NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.MaxClients = 2
	return cfg
}

// TestRun_PortInUse verifies that a bind failure exits with status 1 and a
// diagnostic on stderr.
func TestRun_PortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.Addr = busy.Addr().String()
	var stderr bytes.Buffer

	code := run(context.Background(), cfg, clockwork.NewFakeClock(), io.Discard, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "SERVER: listen on "+cfg.Addr)
}

// TestRun_GatewayPortInUse verifies that a failing optional listener aborts
// startup with status 1.
func TestRun_GatewayPortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.WebSocketAddr = busy.Addr().String()
	var stderr bytes.Buffer

	code := run(context.Background(), cfg, clockwork.NewFakeClock(), io.Discard, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "SERVER: websocket gateway:")
}

// TestRun_ShutdownExitsZero cancels the signal context while a client is
// connected. The client gets the closing notice, the connection is closed
// after the grace period and run returns 0.
func TestRun_ShutdownExitsZero(t *testing.T) {
	cfg := testConfig()
	cfg.GracePeriod = 10 * time.Second
	clock := clockwork.NewFakeClock()
	stdout := &syncBuffer{}
	var stderr bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exit := make(chan int, 1)
	go func() { exit <- run(ctx, cfg, clock, stdout, &stderr) }()

	var addr string
	require.Eventually(t, func() bool {
		addr = listeningAddr(stdout.String())
		return addr != ""
	}, testTimeout, 5*time.Millisecond)

	conn, err := net.DialTimeout("tcp", addr, testTimeout)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))

	_, err = conn.Write([]byte("alice"))
	require.NoError(t, err)
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "alice connected to the server", string(buf[:n]))

	cancel()
	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, server.ServerClosing, string(buf[:n]))

	clock.BlockUntil(1)
	clock.Advance(cfg.GracePeriod)

	select {
	case code := <-exit:
		assert.Equal(t, 0, code)
	case <-time.After(testTimeout):
		t.Fatal("run did not return after shutdown")
	}

	_, err = conn.Read(buf)
	assert.Error(t, err, "connection should be closed by shutdown")
	assert.Empty(t, stderr.String())
	assert.Contains(t, stdout.String(), "Shutdown complete")
}
