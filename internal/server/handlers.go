// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the client log sink, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/wanderchat/internal/metrics"
	"github.com/Tyrowin/wanderchat/internal/wsconn"
)

const (
	methodNotAllowed = "Method not allowed. WebSocket endpoint only accepts GET requests."
	shuttingDown     = "Server is shutting down"
)

// MessagingWebSocketHandler authenticates the request from its session cookie
// and, only when that succeeds, upgrades it and admits the user.
func (a *App) MessagingWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, methodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	decision := a.resolver.Verify(r)
	if !decision.Accept {
		a.metrics.HandshakeRejected(decision.Status)
		http.Error(w, decision.Reason, decision.Status)
		return
	}

	if !a.acquire() {
		http.Error(w, shuttingDown, http.StatusServiceUnavailable)
		return
	}
	defer a.release()

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := wsconn.New(ws, r.RemoteAddr, a.connOptions(metrics.SurfaceMessaging), a.log.Named("wsconn"))
	a.log.Info("websocket connected", zap.Int64("user_id", decision.User.ID), zap.String("remote", r.RemoteAddr))
	a.messaging.Serve(decision.User, conn)
}

// RoomWebSocketHandler upgrades without authentication or an origin check and
// joins the room.
func (a *App) RoomWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, methodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	if !a.acquire() {
		http.Error(w, shuttingDown, http.StatusServiceUnavailable)
		return
	}
	defer a.release()

	ws, err := a.roomUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := wsconn.New(ws, r.RemoteAddr, a.connOptions(metrics.SurfaceRoom), a.log.Named("wsconn"))
	a.room.Serve(conn)
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "WanderChat server is running!")
}

type healthResponse struct {
	Status      string         `json:"status"`
	Timestamp   string         `json:"timestamp"`
	Env         string         `json:"env"`
	Connections map[string]int `json:"connections"`
}

// APIHealthHandler reports liveness plus the open socket count per surface.
func (a *App) APIHealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Env:       a.cfg.Env,
		Connections: map[string]int{
			metrics.SurfaceMessaging: a.messaging.Count(),
			metrics.SurfaceRoom:      a.room.Count(),
		},
	})
}

type logResult struct {
	Success bool `json:"success"`
}

// ClientLogHandler records an error report sent by the browser client.
func (a *App) ClientLogHandler(w http.ResponseWriter, r *http.Request) {
	var report map[string]any
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		a.log.Warn("invalid client log payload", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, logResult{Success: false})
		return
	}

	a.log.Error("client-side error", zap.Any("report", report), zap.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusOK, logResult{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// TestPageHandler serves an HTML page that joins the chat room, authenticates
// with a chosen name, and exchanges messages.
func (a *App) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprintf(w, testPageHTML, a.cfg.Paths.Room); err != nil {
		a.log.Warn("error writing HTML response", zap.Error(err))
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>WanderChat Room Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] {
            width: 300px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>WanderChat Room Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="nameInput" placeholder="Your name...">
        <button id="connectButton" onclick="toggleConnection()">Join</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const userId = 'user-' + Math.random().toString(36).slice(2, 10);
        const messagesDiv = document.getElementById('messages');
        const nameInput = document.getElementById('nameInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = color;
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            nameInput.disabled = connected;
            connectButton.textContent = connected ? 'Leave' : 'Join';
        }

        function connect() {
            const name = nameInput.value.trim() || 'guest';
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '%s');

            ws.onopen = function() {
                ws.send(JSON.stringify({ type: 'auth', userId: userId, username: name }));
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                const frame = JSON.parse(event.data);
                if (frame.type === 'status') {
                    addLine(frame.content, 'gray');
                } else if (frame.type === 'message') {
                    addLine(frame.sender + ': ' + frame.content, frame.sender === name ? 'blue' : 'green');
                    if (frame.sender !== name) {
                        ws.send(JSON.stringify({ type: 'receipt', messageId: frame.id, status: 'read' }));
                    }
                }
            };

            ws.onclose = function() {
                addLine('Connection closed', 'gray');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addLine('Connection error', 'red');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            if (content && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: 'message', id: Date.now().toString(), content: content }));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
