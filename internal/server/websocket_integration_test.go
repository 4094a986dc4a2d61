// Integration tests that exercise the relay through real WebSocket
// connections against an httptest server.
package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/the-vishh/flashchat/internal/server"
)

const testOrigin = "http://chat.test"

// startRelay spins up a hub and HTTP server for one test and tears both
// down afterward.
func startRelay(t *testing.T) (*server.Hub, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testOrigin}

	hub := server.NewHub(cfg)
	go hub.Run()

	handlers := server.NewHandlers(hub)
	ts := httptest.NewServer(server.SetupRoutes(handlers))

	t.Cleanup(func() {
		ts.Close()
		if err := hub.Shutdown(3 * time.Second); err != nil {
			t.Errorf("Hub shutdown failed: %v", err)
		}
	})
	return hub, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", testOrigin)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal %s payload: %v", event, err)
	}
	env := server.Envelope{Event: event, Data: raw}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// readEvent reads the next envelope from the connection with a deadline.
func readEvent(t *testing.T, conn *websocket.Conn) server.Envelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	var env server.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return env
}

// waitForEvent reads envelopes until one with the given name arrives,
// skipping unrelated traffic such as typing notices.
func waitForEvent(t *testing.T, conn *websocket.Conn, event string) server.Envelope {
	t.Helper()
	for i := 0; i < 10; i++ {
		env := readEvent(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("Gave up waiting for %q event", event)
	return server.Envelope{}
}

func decodeData(t *testing.T, env server.Envelope, v any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("Failed to decode %s payload: %v", env.Event, err)
	}
}

// TestRelayEndToEnd walks the full reference interaction over real
// WebSockets: join, duplicate rejection, presence notifications, message
// echo, typing, and disconnect cleanup.
func TestRelayEndToEnd(t *testing.T) {
	_, ts := startRelay(t)

	connA := dial(t, ts)
	sendEvent(t, connA, server.EventJoinRoom, server.JoinRequest{Username: "alice", Room: "lobby"})

	var users []string
	decodeData(t, waitForEvent(t, connA, server.EventRoomUsers), &users)
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("room-users is %v, want [alice]", users)
	}
	var confirmed server.JoinConfirmation
	decodeData(t, waitForEvent(t, connA, server.EventJoinSuccess), &confirmed)
	if confirmed.Username != "alice" || confirmed.Room != "lobby" {
		t.Fatalf("join-success is %+v", confirmed)
	}

	// A second connection claiming the same username is rejected.
	connB := dial(t, ts)
	sendEvent(t, connB, server.EventJoinRoom, server.JoinRequest{Username: "alice", Room: "lobby"})

	var notice server.ErrorNotice
	decodeData(t, waitForEvent(t, connB, server.EventUsernameTaken), &notice)
	if !strings.Contains(notice.Message, `"alice"`) || !strings.Contains(notice.Message, `"lobby"`) {
		t.Errorf("username-taken message does not name the conflict: %q", notice.Message)
	}

	// It succeeds under a free username, and A hears about it.
	sendEvent(t, connB, server.EventJoinRoom, server.JoinRequest{Username: "bob", Room: "lobby"})
	waitForEvent(t, connB, server.EventJoinSuccess)

	var joined server.PresenceUpdate
	decodeData(t, waitForEvent(t, connA, server.EventUserJoined), &joined)
	if joined.Username != "bob" || len(joined.Users) != 2 {
		t.Fatalf("user-joined is %+v", joined)
	}

	// A's message reaches both members, sender included.
	sendEvent(t, connA, server.EventChatMessage, server.ChatRequest{
		Username:  "alice",
		Room:      "lobby",
		Message:   "hi",
		Timestamp: "2026-08-31T12:00:00Z",
	})
	for _, conn := range []*websocket.Conn{connA, connB} {
		var msg server.Message
		decodeData(t, waitForEvent(t, conn, server.EventNewMessage), &msg)
		if msg.Username != "alice" || msg.Text != "hi" {
			t.Fatalf("new-message is %+v", msg)
		}
	}

	// B's typing indicator reaches only A.
	sendEvent(t, connB, server.EventTypingStart, server.PresenceRequest{Username: "bob", Room: "lobby"})
	var typing server.TypingNotice
	decodeData(t, waitForEvent(t, connA, server.EventUserTyping), &typing)
	if typing.Username != "bob" || !typing.IsTyping {
		t.Fatalf("user-typing is %+v", typing)
	}

	// B disconnects; A sees it leave.
	_ = connB.Close()
	var left server.PresenceUpdate
	decodeData(t, waitForEvent(t, connA, server.EventUserLeft), &left)
	if left.Username != "bob" || len(left.Users) != 1 || left.Users[0] != "alice" {
		t.Fatalf("user-left is %+v", left)
	}
}

// TestStatsEndpoint verifies the /api/stats projection over HTTP.
func TestStatsEndpoint(t *testing.T) {
	_, ts := startRelay(t)

	conn := dial(t, ts)
	sendEvent(t, conn, server.EventJoinRoom, server.JoinRequest{Username: "alice", Room: "lobby"})
	waitForEvent(t, conn, server.EventJoinSuccess)

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Stats returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Stats content type is %q", ct)
	}

	var stats server.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Stats did not decode: %v", err)
	}
	if stats.TotalRooms != 1 || stats.TotalUsers != 1 {
		t.Fatalf("Unexpected stats: %+v", stats)
	}
	room := stats.Rooms[0]
	if room.Name != "lobby" || room.UserCount != 1 || room.Users[0] != "alice" {
		t.Errorf("Unexpected room stats: %+v", room)
	}
}

// TestWebSocketRejectsDisallowedOrigin verifies that the upgrade is
// refused for origins outside the allow-list.
func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	_, ts := startRelay(t)

	header := http.Header{}
	header.Set("Origin", "http://evil.test")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err == nil {
		_ = conn.Close()
		t.Fatalf("Dial from a disallowed origin succeeded")
	}
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("Expected 403 for disallowed origin, got %d", resp.StatusCode)
		}
	}
}

// TestHealthEndpoint verifies the health check response.
func TestHealthEndpoint(t *testing.T) {
	_, ts := startRelay(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Health returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Health content type is %q", ct)
	}
}

// TestLeaveRoomOverWire verifies the leave-room path end to end: the
// leaver gets no confirmation while the remaining member is notified.
func TestLeaveRoomOverWire(t *testing.T) {
	_, ts := startRelay(t)

	connA := dial(t, ts)
	sendEvent(t, connA, server.EventJoinRoom, server.JoinRequest{Username: "alice", Room: "lobby"})
	waitForEvent(t, connA, server.EventJoinSuccess)

	connB := dial(t, ts)
	sendEvent(t, connB, server.EventJoinRoom, server.JoinRequest{Username: "bob", Room: "lobby"})
	waitForEvent(t, connB, server.EventJoinSuccess)
	waitForEvent(t, connA, server.EventUserJoined)

	sendEvent(t, connB, server.EventLeaveRoom, server.PresenceRequest{Username: "bob", Room: "lobby"})

	var left server.PresenceUpdate
	decodeData(t, waitForEvent(t, connA, server.EventUserLeft), &left)
	if left.Username != "bob" || len(left.Users) != 1 {
		t.Fatalf("user-left is %+v", left)
	}

	// The leaver hears nothing back; the read should time out.
	if err := connB.SetReadDeadline(time.Now().Add(300 * time.Millisecond)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, _, err := connB.ReadMessage(); err == nil {
		t.Errorf("Leaver received an unexpected event")
	}
}
