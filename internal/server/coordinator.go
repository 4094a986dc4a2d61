// Package server contains the presence and message coordinator, the
// server-side authority for room membership and event fan-out.
package server

import (
	"fmt"
	"log"
	"strings"
)

// EventSink delivers an outbound event to a single connection. The hub
// implements it over client send channels; tests implement it with a
// recorder. Delivery is fire-and-forget.
type EventSink interface {
	SendEvent(connID, event string, data any)
}

// Coordinator validates inbound requests against the connection registry
// and room table, applies membership transitions, and emits the resulting
// events. Every method must be called from a single goroutine; processing
// one event to completion before the next is what keeps transitions atomic
// as seen by other connections.
type Coordinator struct {
	registry *Registry
	rooms    *RoomTable
	sink     EventSink
}

// NewCoordinator creates a coordinator with empty state that emits events
// through the given sink.
func NewCoordinator(sink EventSink, backlogLimit int) *Coordinator {
	return &Coordinator{
		registry: NewRegistry(),
		rooms:    NewRoomTable(backlogLimit),
		sink:     sink,
	}
}

// Join handles a join-room request. Validation and the username uniqueness
// check both run before any state changes, so a rejected join leaves the
// requesting connection's prior membership untouched.
func (c *Coordinator) Join(connID, username, roomID string) {
	username = strings.TrimSpace(username)
	roomID = strings.TrimSpace(roomID)

	if username == "" || roomID == "" {
		c.sink.SendEvent(connID, EventJoinError, ErrorNotice{
			Message: "Username and room name are required",
		})
		return
	}

	if c.rooms.HasMember(roomID, username) {
		c.sink.SendEvent(connID, EventUsernameTaken, ErrorNotice{
			Message: fmt.Sprintf("Username %q is already taken in room %q. Please choose a different username.", username, roomID),
		})
		return
	}

	// A connection holds at most one membership; terminate any prior one
	// before joining, notifying whoever remains in the old room.
	if prior, ok := c.registry.Lookup(connID); ok {
		c.removeMembership(connID, prior)
	}

	c.registry.Set(connID, Membership{Username: username, Room: roomID})
	c.rooms.AddMember(roomID, username, connID)

	users := c.rooms.Members(roomID)
	c.broadcast(roomID, connID, EventUserJoined, PresenceUpdate{Username: username, Users: users})
	c.sink.SendEvent(connID, EventRoomUsers, users)
	c.sink.SendEvent(connID, EventJoinSuccess, JoinConfirmation{Username: username, Room: roomID})

	log.Printf("%s joined room %q", username, roomID)
}

// Chat handles a chat-message request. Messages whose sender fields do not
// match the connection's registered membership are dropped without a
// response; they indicate a spoofed or stale client, not a user mistake.
func (c *Coordinator) Chat(connID string, req ChatRequest) {
	m, ok := c.registry.Lookup(connID)
	if !ok || m.Username != req.Username || m.Room != req.Room {
		log.Printf("Unauthorized chat message from connection %s; dropping", connID)
		return
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return
	}

	msg := Message{Username: m.Username, Text: text, Timestamp: req.Timestamp}
	c.rooms.AppendMessage(m.Room, msg)
	c.broadcast(m.Room, "", EventNewMessage, msg)
}

// Leave handles a leave-room request. Authorization matches Chat; the
// leaving connection gets no confirmation, only the remaining members hear
// about it.
func (c *Coordinator) Leave(connID, username, roomID string) {
	m, ok := c.registry.Lookup(connID)
	if !ok || m.Username != username || m.Room != roomID {
		log.Printf("Unauthorized leave-room from connection %s; dropping", connID)
		return
	}

	c.removeMembership(connID, m)
	log.Printf("%s left room %q", m.Username, m.Room)
}

// Disconnect clears any membership held by a connection that is gone,
// notifying the room it was in. It always succeeds; a connection without a
// membership is already clean.
func (c *Coordinator) Disconnect(connID string) {
	m, ok := c.registry.Lookup(connID)
	if !ok {
		return
	}

	c.removeMembership(connID, m)
	log.Printf("%s disconnected from room %q", m.Username, m.Room)
}

// Typing handles typing-start and typing-stop requests. The indicator is
// ephemeral: it is relayed to the other members and never stored.
func (c *Coordinator) Typing(connID, username, roomID string, isTyping bool) {
	m, ok := c.registry.Lookup(connID)
	if !ok || m.Username != username || m.Room != roomID {
		return
	}

	c.broadcast(m.Room, connID, EventUserTyping, TypingNotice{Username: m.Username, IsTyping: isTyping})
}

// Snapshot returns the stats projection of the room table.
func (c *Coordinator) Snapshot() Stats {
	return c.rooms.Snapshot()
}

// RecentMessages returns the retained backlog for a room, oldest first.
func (c *Coordinator) RecentMessages(roomID string) []Message {
	return c.rooms.RecentMessages(roomID)
}

// removeMembership destroys a connection's membership and, if its room
// still has members afterward, broadcasts user-left to them.
func (c *Coordinator) removeMembership(connID string, m Membership) {
	c.registry.Clear(connID)
	if remaining, ok := c.rooms.RemoveMember(m.Room, m.Username); ok {
		c.broadcast(m.Room, connID, EventUserLeft, PresenceUpdate{Username: m.Username, Users: remaining})
	}
}

// broadcast fans an event out to every member of a room except the
// connection named by exclude.
func (c *Coordinator) broadcast(roomID, exclude, event string, data any) {
	for _, connID := range c.rooms.MemberConns(roomID) {
		if connID == exclude {
			continue
		}
		c.sink.SendEvent(connID, event, data)
	}
}
