// Package server tracks which connection currently holds which identity via
// the connection registry.
package server

// Membership binds a connection to the username it holds in a single room.
// A connection has at most one membership at a time; joining a new room
// replaces any prior one.
type Membership struct {
	Username string
	Room     string
}

// Registry maps live connection IDs to their current membership. It is the
// authoritative reverse lookup for "who is this connection", replacing a
// scan over every room's member list.
//
// The registry is only ever touched from the hub's event loop, so it needs
// no locking.
type Registry struct {
	byConn map[string]Membership
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{byConn: make(map[string]Membership)}
}

// Lookup returns the membership held by the given connection, if any.
func (r *Registry) Lookup(connID string) (Membership, bool) {
	m, ok := r.byConn[connID]
	return m, ok
}

// Set records the membership for a connection, replacing any prior record.
func (r *Registry) Set(connID string, m Membership) {
	r.byConn[connID] = m
}

// Clear removes any membership record for a connection.
func (r *Registry) Clear(connID string) {
	delete(r.byConn, connID)
}
