// Package server stores per-room state: the member list in join order, the
// bounded message backlog, and the snapshot used by the stats endpoint.
package server

import "sort"

// defaultMessageBacklog caps how many messages a room retains. Oldest
// entries are evicted first.
const defaultMessageBacklog = 100

// Message is one chat message retained in a room's backlog and broadcast as
// the payload of a new-message event.
type Message struct {
	Username  string `json:"username"`
	Text      string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// room holds one named channel's state. Member order is join order; conns
// maps each member's username to the connection holding it.
type room struct {
	order   []string
	conns   map[string]string
	backlog []Message
}

// RoomTable owns every room record. Rooms are created implicitly on first
// join and deleted, backlog included, when their last member leaves.
//
// Like the registry, the table is only touched from the hub's event loop
// and needs no locking.
type RoomTable struct {
	rooms        map[string]*room
	backlogLimit int
}

// NewRoomTable creates an empty room table retaining at most backlogLimit
// messages per room. A non-positive limit falls back to the default of 100.
func NewRoomTable(backlogLimit int) *RoomTable {
	if backlogLimit <= 0 {
		backlogLimit = defaultMessageBacklog
	}
	return &RoomTable{rooms: make(map[string]*room), backlogLimit: backlogLimit}
}

// HasMember reports whether the room exists and already contains the given
// username. The comparison is exact and case-sensitive.
func (t *RoomTable) HasMember(roomID, username string) bool {
	rm, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	_, taken := rm.conns[username]
	return taken
}

// AddMember adds a username to a room, creating the room if absent. The
// caller is responsible for having checked uniqueness first.
func (t *RoomTable) AddMember(roomID, username, connID string) {
	rm, ok := t.rooms[roomID]
	if !ok {
		rm = &room{conns: make(map[string]string)}
		t.rooms[roomID] = rm
	}
	rm.order = append(rm.order, username)
	rm.conns[username] = connID
}

// RemoveMember removes a username from a room and reports the remaining
// member list. Removing the last member deletes the room and its backlog,
// in which case ok is false.
func (t *RoomTable) RemoveMember(roomID, username string) (remaining []string, ok bool) {
	rm, exists := t.rooms[roomID]
	if !exists {
		return nil, false
	}
	if _, present := rm.conns[username]; !present {
		return t.Members(roomID), true
	}
	delete(rm.conns, username)
	for i, name := range rm.order {
		if name == username {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	if len(rm.order) == 0 {
		delete(t.rooms, roomID)
		return nil, false
	}
	return t.Members(roomID), true
}

// Members returns a copy of the room's member usernames in join order, or
// nil if the room does not exist.
func (t *RoomTable) Members(roomID string) []string {
	rm, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]string(nil), rm.order...)
}

// MemberConns returns the connection IDs of the room's members in join
// order, for fan-out.
func (t *RoomTable) MemberConns(roomID string) []string {
	rm, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	conns := make([]string, 0, len(rm.order))
	for _, username := range rm.order {
		conns = append(conns, rm.conns[username])
	}
	return conns
}

// AppendMessage appends a message to the room's backlog, evicting the
// oldest entries beyond the backlog limit. Messages for rooms that do not
// exist are discarded.
func (t *RoomTable) AppendMessage(roomID string, msg Message) {
	rm, ok := t.rooms[roomID]
	if !ok {
		return
	}
	rm.backlog = append(rm.backlog, msg)
	if len(rm.backlog) > t.backlogLimit {
		rm.backlog = append(rm.backlog[:0:0], rm.backlog[len(rm.backlog)-t.backlogLimit:]...)
	}
}

// RecentMessages returns a copy of the room's retained backlog in original
// order, oldest first.
func (t *RoomTable) RecentMessages(roomID string) []Message {
	rm, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return append([]Message(nil), rm.backlog...)
}

// Stats is the read-only projection of the room table served by /api/stats.
type Stats struct {
	TotalRooms int         `json:"totalRooms"`
	TotalUsers int         `json:"totalUsers"`
	Rooms      []RoomStats `json:"rooms"`
}

// RoomStats describes one room inside a Stats projection.
type RoomStats struct {
	Name      string   `json:"name"`
	UserCount int      `json:"userCount"`
	Users     []string `json:"users"`
}

// Snapshot returns the current per-room member counts and lists. Rooms are
// sorted by name so the projection is deterministic.
func (t *RoomTable) Snapshot() Stats {
	stats := Stats{
		TotalRooms: len(t.rooms),
		Rooms:      make([]RoomStats, 0, len(t.rooms)),
	}
	for name, rm := range t.rooms {
		stats.TotalUsers += len(rm.order)
		stats.Rooms = append(stats.Rooms, RoomStats{
			Name:      name,
			UserCount: len(rm.order),
			Users:     append([]string(nil), rm.order...),
		})
	}
	sort.Slice(stats.Rooms, func(i, j int) bool {
		return stats.Rooms[i].Name < stats.Rooms[j].Name
	})
	return stats
}
