// Package server provides the in-memory transport and helpers shared by
// the package tests.
package server

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeTransport is an in-memory Transport. Each send is delivered to the
// handler as exactly one Read.
type fakeTransport struct {
	in      chan []byte
	closeCh chan struct{}
	once    sync.Once

	mu       sync.Mutex
	out      []string
	closed   bool
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:      make(chan []byte, 16),
		closeCh: make(chan struct{}),
	}
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	select {
	case msg, ok := <-f.in:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, msg), nil
	case <-f.closeCh:
		return 0, net.ErrClosed
	}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.out = append(f.out, string(p))
	return len(p), nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.closeCh)
	})
	return nil
}

func (f *fakeTransport) send(msg string) { f.in <- []byte(msg) }

// hangup simulates the peer closing its end.
func (f *fakeTransport) hangup() { close(f.in) }

func (f *fakeTransport) failWrites(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeTransport) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.out...)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) received(msg string) bool {
	for _, m := range f.messages() {
		if m == msg {
			return true
		}
	}
	return false
}

func (f *fakeTransport) receivedContaining(sub string) bool {
	for _, m := range f.messages() {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func waitReceived(t *testing.T, f *fakeTransport, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return f.received(msg) }, waitTimeout, 5*time.Millisecond,
		"expected %q, got %q", msg, f.messages())
}

func testConfig(maxClients int) *Config {
	cfg := NewConfig()
	cfg.MaxClients = maxClients
	return cfg
}

func newTestServer(t *testing.T, cfg *Config) (*Server, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewServer(cfg, metrics, zerolog.Nop()), metrics
}

// join admits a fake client, completes its handshake and waits for its own
// connected notice.
func join(t *testing.T, s *Server, name string) *fakeTransport {
	t.Helper()
	ft := newFakeTransport()
	s.Admit(ft, name+"-addr")
	ft.send(name)
	waitReceived(t, ft, name+" connected to the server")
	return ft
}
