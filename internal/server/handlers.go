// Package server exposes HTTP handlers: the WebSocket upgrade, the health
// check, the room statistics endpoint, and the built-in chat page.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const statsTimeout = 2 * time.Second

// Handlers bundles the HTTP handlers around a hub instance so multiple
// independent servers can coexist, for tests in particular.
type Handlers struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandlers creates the handler set for a hub, deriving the WebSocket
// origin policy from the hub's configuration.
func NewHandlers(hub *Hub) *Handlers {
	policy := newOriginPolicy(hub.cfg.AllowedOrigins)
	return &Handlers{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
	}
}

// WebSocket handles WebSocket upgrade requests. It upgrades the HTTP
// connection, creates a Client, and hands it to the hub, which launches the
// read/write pumps.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, h.hub, r.RemoteAddr)

	select {
	case h.hub.register <- client:
	case <-h.hub.ctx.Done():
		_ = conn.Close()
	}
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "FlashChat server is running!")
}

// Stats serves the read-only room statistics projection as JSON: total
// rooms, total users, and the member list of every room.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	stats, err := h.hub.Snapshot(ctx)
	if err != nil {
		http.Error(w, "Stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("Error writing stats response: %v", err)
	}
}

// ChatPage serves the built-in browser client for the relay.
func (h *Handlers) ChatPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, chatPageHTML); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const chatPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>FlashChat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 700px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        #users { color: #555; margin: 5px 0; }
        #typing { color: #999; font-style: italic; height: 1em; }
        .system { color: gray; font-style: italic; }
        .error { color: #a00; }
    </style>
</head>
<body>
    <h1>FlashChat</h1>

    <div id="joinForm">
        <input type="text" id="username" placeholder="Username" maxlength="20" pattern="[A-Za-z0-9_\-]+">
        <input type="text" id="room" placeholder="Room" maxlength="30">
        <button onclick="joinRoom()">Join</button>
    </div>

    <div id="users"></div>
    <div id="messages"></div>
    <div id="typing"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button onclick="leaveRoom()">Leave</button>
    </div>

    <script>
        let ws = null;
        let currentUser = null;
        let currentRoom = null;
        let typingTimer = null;

        function send(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function addMessage(text, cls) {
            const el = document.createElement('div');
            if (cls) el.className = cls;
            el.textContent = text;
            const box = document.getElementById('messages');
            box.appendChild(el);
            box.scrollTop = box.scrollHeight;
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(proto + location.host + '/ws');
            ws.onmessage = function(e) { handleEvent(JSON.parse(e.data)); };
            ws.onclose = function() {
                addMessage('Disconnected. Reconnecting...', 'system');
                setTimeout(function() {
                    connect();
                    ws.onopen = function() {
                        if (currentUser && currentRoom) {
                            send('join-room', {username: currentUser, room: currentRoom});
                        }
                    };
                }, 1000);
            };
        }

        function handleEvent(env) {
            const data = env.data;
            switch (env.event) {
            case 'join-success':
                currentUser = data.username;
                currentRoom = data.room;
                document.getElementById('messageInput').disabled = false;
                document.getElementById('sendButton').disabled = false;
                addMessage('Joined room ' + data.room + ' as ' + data.username, 'system');
                break;
            case 'join-error':
            case 'username-taken':
                addMessage(data.message, 'error');
                break;
            case 'room-users':
                document.getElementById('users').textContent = 'In room: ' + data.join(', ');
                break;
            case 'user-joined':
                addMessage(data.username + ' joined', 'system');
                document.getElementById('users').textContent = 'In room: ' + data.users.join(', ');
                break;
            case 'user-left':
                addMessage(data.username + ' left', 'system');
                document.getElementById('users').textContent = 'In room: ' + data.users.join(', ');
                break;
            case 'new-message':
                addMessage(data.username + ': ' + data.message);
                break;
            case 'user-typing':
                document.getElementById('typing').textContent =
                    data.isTyping ? data.username + ' is typing...' : '';
                break;
            }
        }

        function joinRoom() {
            const username = document.getElementById('username').value.trim();
            const room = document.getElementById('room').value.trim();
            send('join-room', {username: username, room: room});
        }

        function leaveRoom() {
            if (currentUser && currentRoom) {
                send('leave-room', {username: currentUser, room: currentRoom});
                currentUser = null;
                currentRoom = null;
                document.getElementById('users').textContent = '';
                document.getElementById('messageInput').disabled = true;
                document.getElementById('sendButton').disabled = true;
                addMessage('Left room', 'system');
            }
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const text = input.value.trim();
            if (text && currentUser) {
                send('chat-message', {
                    username: currentUser,
                    room: currentRoom,
                    message: text,
                    timestamp: new Date().toISOString()
                });
                input.value = '';
                send('typing-stop', {username: currentUser, room: currentRoom});
            }
        }

        document.getElementById('messageInput').addEventListener('input', function() {
            if (!currentUser) return;
            send('typing-start', {username: currentUser, room: currentRoom});
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function() {
                send('typing-stop', {username: currentUser, room: currentRoom});
            }, 1500);
        });

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });

        connect();
    </script>
</body>
</html>`
