// Package server defines the wire protocol shared by clients and the relay:
// event names, the JSON envelope, and the payload types carried inside it.
package server

import (
	"encoding/json"
	"strings"
)

// Inbound event names (client to server).
const (
	EventJoinRoom    = "join-room"
	EventChatMessage = "chat-message"
	EventLeaveRoom   = "leave-room"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
)

// Outbound event names (server to one or more clients).
const (
	EventJoinSuccess   = "join-success"
	EventJoinError     = "join-error"
	EventUsernameTaken = "username-taken"
	EventRoomUsers     = "room-users"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventNewMessage    = "new-message"
	EventUserTyping    = "user-typing"
)

// Envelope is the framing for every event exchanged over a connection. Each
// WebSocket text message carries exactly one envelope.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of a join-room event.
type JoinRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// ChatRequest is the payload of a chat-message event. The timestamp is an
// opaque client-supplied string relayed verbatim to recipients.
type ChatRequest struct {
	Username  string `json:"username"`
	Room      string `json:"room"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PresenceRequest is the payload of leave-room, typing-start, and
// typing-stop events.
type PresenceRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// ErrorNotice is the payload of join-error and username-taken events.
type ErrorNotice struct {
	Message string `json:"message"`
}

// JoinConfirmation is the payload of a join-success event, carrying the
// identity the server actually recorded.
type JoinConfirmation struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// PresenceUpdate is the payload of user-joined and user-left events. Users
// holds the room's full member list after the change, in join order.
type PresenceUpdate struct {
	Username string   `json:"username"`
	Users    []string `json:"users"`
}

// TypingNotice is the payload of a user-typing event.
type TypingNotice struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// encodeEvent wraps a payload in an envelope and marshals it for the wire.
func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// decodePayload unmarshals an envelope's data into the given payload type.
// An absent data field decodes as the zero payload so that validation, not
// the decoder, decides how to reject it.
func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
