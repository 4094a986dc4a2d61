// Package server coordinates client registration, event dispatch, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrHubClosed is returned by Snapshot when the hub has shut down.
var ErrHubClosed = errors.New("hub is shut down")

// inboundEvent pairs a decoded envelope with the client that sent it.
type inboundEvent struct {
	client *Client
	env    Envelope
}

// Hub owns every live client connection and all coordinator state. A single
// Run goroutine drains the register, unregister, inbound, and stats
// channels, processing each event to completion before the next; that
// strict ordering is what makes the registry and room table safe without
// locks and membership transitions atomic per connection.
type Hub struct {
	cfg         Config
	clients     map[string]*Client
	coordinator *Coordinator
	register    chan *Client
	unregister  chan *Client
	inbound     chan inboundEvent
	stats       chan chan Stats
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewHub creates a hub with empty state. Passing nil uses the default
// configuration. Call Run in a separate goroutine to start it.
func NewHub(cfg *Config) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:        cfg.sanitized(),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent, 256),
		stats:      make(chan chan Stats),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.coordinator = NewCoordinator(h, h.cfg.MessageBacklog)
	return h
}

// Run starts the hub's event loop. This method should be called in a
// separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case evt := <-h.inbound:
			h.dispatch(evt)

		case reply := <-h.stats:
			reply <- h.coordinator.Snapshot()
		}
	}
}

// SendEvent implements EventSink over the client send channels. A client
// whose buffer is full is dropped on the spot; a slow receiver must never
// stall the event loop.
func (h *Hub) SendEvent(connID, event string, data any) {
	client, ok := h.clients[connID]
	if !ok || client.closed {
		return
	}

	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("Error encoding %s event for %s: %v", event, client.addr, err)
		return
	}

	select {
	case client.send <- payload:
	default:
		log.Printf("Client from %s removed due to full send buffer", client.addr)
		h.dropClient(client)
	}
}

// Snapshot asks the event loop for the current stats projection, so the
// caller never observes a half-applied transition.
func (h *Hub) Snapshot(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)

	select {
	case h.stats <- reply:
	case <-h.ctx.Done():
		return Stats{}, ErrHubClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}

	select {
	case stats := <-reply:
		return stats, nil
	case <-h.ctx.Done():
		return Stats{}, ErrHubClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clients[client.id] = client
	log.Printf("Client connected from %s. Total clients: %d", client.addr, len(h.clients))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) unregisterClient(client *Client) {
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	h.dropClient(client)
	log.Printf("Client disconnected from %s. Total clients: %d", client.addr, len(h.clients))
}

// dropClient removes a client from the hub and tears down its membership.
// The client leaves the map before the coordinator broadcasts user-left, so
// the fan-out can never target its closed channel.
func (h *Hub) dropClient(client *Client) {
	delete(h.clients, client.id)
	client.closed = true
	close(client.send)
	h.coordinator.Disconnect(client.id)
}

// dispatch routes one inbound envelope to the coordinator operation it
// names. Unknown events are ignored, matching the original relay.
func (h *Hub) dispatch(evt inboundEvent) {
	connID := evt.client.id

	switch evt.env.Event {
	case EventJoinRoom:
		var req JoinRequest
		if err := decodePayload(evt.env.Data, &req); err != nil {
			log.Printf("Invalid join-room payload from %s: %v", evt.client.addr, err)
			return
		}
		h.coordinator.Join(connID, req.Username, req.Room)

	case EventChatMessage:
		var req ChatRequest
		if err := decodePayload(evt.env.Data, &req); err != nil {
			log.Printf("Invalid chat-message payload from %s: %v", evt.client.addr, err)
			return
		}
		h.coordinator.Chat(connID, req)

	case EventLeaveRoom:
		var req PresenceRequest
		if err := decodePayload(evt.env.Data, &req); err != nil {
			log.Printf("Invalid leave-room payload from %s: %v", evt.client.addr, err)
			return
		}
		h.coordinator.Leave(connID, req.Username, req.Room)

	case EventTypingStart, EventTypingStop:
		var req PresenceRequest
		if err := decodePayload(evt.env.Data, &req); err != nil {
			log.Printf("Invalid typing payload from %s: %v", evt.client.addr, err)
			return
		}
		h.coordinator.Typing(connID, req.Username, req.Room, evt.env.Event == EventTypingStart)

	default:
		log.Printf("Ignoring unknown event %q from %s", evt.env.Event, evt.client.addr)
	}
}

// shutdownClients gracefully closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	count := 0
	for _, client := range h.clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
		count++
	}

	log.Printf("Closed %d client connections", count)
}
