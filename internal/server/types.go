// Package server defines the relay wire constants, sentinel errors and the
// Transport and Conn types shared by the acceptor and handlers.
package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
)

// Control strings exchanged with clients. They are matched byte for byte.
const (
	ServerFull    = "/server_full"
	ServerClosing = "/server_closing"
)

var leaveCommands = [...]string{"/exit", "/quit", "/part"}

var (
	// ErrRegistryFull is returned when all capacity units are reserved.
	ErrRegistryFull = errors.New("registry full")
	// ErrNoFreeSlot is returned by Insert when no slot is empty. It means a
	// caller inserted without holding a reservation.
	ErrNoFreeSlot = errors.New("no free registry slot")
	// ErrNotRegistered is returned by Remove for a connection that holds no slot.
	ErrNotRegistered = errors.New("connection not registered")
	// ErrServerClosed is returned by Serve once shutdown has closed the listener.
	ErrServerClosed = errors.New("relay: server closed")
)

// Transport is the byte-stream endpoint of one client. Each Read is treated
// as one complete message.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Conn is one accepted client. It is owned by its handler goroutine; the
// registry only holds a reference while the client is live.
type Conn struct {
	id        uint64
	addr      string
	transport Transport
	name      string
	slot      int
}

func newConn(id uint64, addr string, t Transport) *Conn {
	return &Conn{id: id, addr: addr, transport: t, slot: -1}
}

func isLeaveCommand(msg []byte) bool {
	for _, cmd := range leaveCommands {
		if string(msg) == cmd {
			return true
		}
	}
	return false
}

// messageBody returns the bytes before the first NUL. C clients send their
// strings with a terminator.
func messageBody(b []byte) []byte {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return b[:i]
	}
	return b
}

func connectedNotice(name string) []byte {
	return []byte(name + " connected to the server")
}

func disconnectedNotice(name string) []byte {
	return []byte(name + " disconnected from the server")
}

func relayMessage(name string, body []byte) []byte {
	msg := make([]byte, 0, len(name)+2+len(body))
	msg = append(msg, name...)
	msg = append(msg, ": "...)
	return append(msg, body...)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
