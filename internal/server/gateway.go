// Package server adapts gorilla websocket connections to the relay
// Transport so browser clients share the TCP registry.
package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// wsTransport adapts a websocket connection to Transport. One websocket
// data message is one relay message. The read limit equals the handler's
// buffer, so a message larger than the relay message size fails the read
// and ends the connection.
type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSTransport(conn *websocket.Conn, maxMessageSize int) *wsTransport {
	conn.SetReadLimit(int64(maxMessageSize))
	return &wsTransport{conn: conn}
}

// Read returns the next non-empty message. Close frames and closed sockets
// surface as io.EOF so the handler treats them like a TCP peer close.
func (t *wsTransport) Read(p []byte) (int, error) {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return 0, wsReadError(err)
		}
		// An empty websocket message is not a peer close.
		if len(data) > 0 {
			return copy(p, data), nil
		}
	}
}

func (t *wsTransport) Write(p []byte) (int, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return 0, err
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func wsReadError(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err) {
		return io.EOF
	}
	return err
}
