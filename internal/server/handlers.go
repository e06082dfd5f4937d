// Package server exposes HTTP handlers for the websocket gateway, health
// checks and the built-in test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades requests on the gateway endpoint and admits the
// resulting connection exactly like a TCP client, sharing the registry.
func (s *Server) WebSocketHandler() http.HandlerFunc {
	policy := newOriginPolicy(s.cfg.AllowedOrigins, s.logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if policy.allows(r) {
				return true
			}
			s.logger.Warn().Str("origin", r.Header.Get("Origin")).Msg("Blocked WebSocket connection from disallowed origin")
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		s.Admit(newWSTransport(conn, s.cfg.MaxMessageSize), r.RemoteAddr)
	}
}

// HealthHandler reports liveness together with current registry occupancy.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoRelay server is running! clients=%d/%d", s.registry.Active(), s.registry.Capacity())
}

// TestPageHandler serves a minimal browser client for the websocket gateway.
// The first message sent is the display name.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>GoRelay WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>GoRelay WebSocket Test</h1>
    <input type="text" id="name" placeholder="Your name">
    <button onclick="connect()">Connect</button>
    <div id="messages"></div>
    <input type="text" id="messageInput" placeholder="Type a message, /quit to leave">
    <button onclick="sendMessage()">Send</button>
    <script>
        let ws = null;
        const messages = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');

        function addMessage(text) {
            const div = document.createElement('div');
            div.textContent = text;
            messages.appendChild(div);
            messages.scrollTop = messages.scrollHeight;
        }

        function connect() {
            const name = document.getElementById('name').value.trim();
            if (!name) { return; }
            const protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(protocol + '//' + location.host + '/ws');
            ws.onopen = function() { ws.send(name); };
            ws.onmessage = function(event) { addMessage(event.data); };
            ws.onclose = function() { addMessage('Disconnected'); };
        }

        function sendMessage() {
            const message = messageInput.value;
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(message);
                addMessage('me: ' + message);
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); }
        });
    </script>
</body>
</html>`
