// Package testhelpers provides common utilities for end-to-end tests of the
// relay server over real TCP connections.
package testhelpers

import (
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/gorelay/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every wait in the helpers.
const DefaultTimeout = 3 * time.Second

// TestConfig returns a default configuration listening on an ephemeral
// loopback port.
func TestConfig(maxClients int) *server.Config {
	cfg := server.NewConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.MaxClients = maxClients
	return cfg
}

// StartRelay starts a relay server on cfg.Addr and returns it with the
// bound address. The server is closed when the test ends.
func StartRelay(t *testing.T, cfg *server.Config) (*server.Server, string) {
	t.Helper()

	logger := zerolog.Nop()
	if os.Getenv("RELAY_TEST_LOGS") != "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	relay := server.NewServer(cfg, server.NewMetrics(prometheus.NewRegistry()), logger)
	ln, err := relay.Listen()
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		if err := relay.Serve(ln); err != nil && !errors.Is(err, server.ErrServerClosed) {
			t.Errorf("Serve returned: %v", err)
		}
	}()
	t.Cleanup(relay.CloseAll)

	return relay, ln.Addr().String()
}

// Client is a raw TCP chat client that accumulates everything it receives.
// TCP may coalesce messages, so expectations match on substrings.
type Client struct {
	t        *testing.T
	conn     net.Conn
	received strings.Builder
	closed   bool
}

// Dial connects a client to addr.
func Dial(t *testing.T, addr string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", addr, err)
	}
	c := &Client{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// Join dials addr, sends name and waits for the client's own connected
// notice so later writes are not coalesced with the handshake.
func Join(t *testing.T, addr, name string) *Client {
	t.Helper()
	c := Dial(t, addr)
	c.Send(name)
	c.Expect(name + " connected to the server")
	return c
}

// Send writes msg as one message.
func (c *Client) Send(msg string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		c.t.Fatalf("Failed to send %q: %v", msg, err)
	}
}

// Expect reads until the received stream contains want.
func (c *Client) Expect(want string) {
	c.t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for !strings.Contains(c.received.String(), want) {
		if !c.readUntil(deadline) && !strings.Contains(c.received.String(), want) {
			c.t.Fatalf("Expected %q, received %q", want, c.received.String())
		}
	}
}

// Drain reads for d and returns everything received so far.
func (c *Client) Drain(d time.Duration) string {
	c.t.Helper()
	deadline := time.Now().Add(d)
	for c.readUntil(deadline) {
	}
	return c.received.String()
}

// Received returns everything received so far.
func (c *Client) Received() string {
	return c.received.String()
}

// ExpectClosed reads until the server closes the connection.
func (c *Client) ExpectClosed() {
	c.t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for !c.closed {
		if !c.readUntil(deadline) && !c.closed {
			c.t.Fatalf("Connection still open, received %q", c.received.String())
		}
	}
}

// Close closes the client side of the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}

// readUntil performs one read and reports whether reading should continue.
func (c *Client) readUntil(deadline time.Time) bool {
	if c.closed {
		return false
	}
	_ = c.conn.SetReadDeadline(deadline)
	buf := make([]byte, 1024)
	n, err := c.conn.Read(buf)
	c.received.Write(buf[:n])
	if err != nil {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			c.closed = true
		}
		return false
	}
	return true
}

// WaitFor polls cond until it holds or the default timeout passes.
func WaitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
