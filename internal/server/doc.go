// Package server implements the FlashChat relay: a WebSocket chat server
// where clients join named rooms, exchange messages, and see who is present
// and who is typing.
//
// The implementation is organized into specialized files: the wire protocol
// (events.go), the connection registry and room table (registry.go,
// rooms.go), the presence coordinator that enforces the protocol rules
// (coordinator.go), and the transport machinery that carries events to and
// from clients (hub.go, client.go, handlers.go).
package server
