package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/laundrypos/api/internal/cart"
	"github.com/rs/zerolog"
)

// EventCartsState carries a terminal's full cart state.
const EventCartsState = "carts.state"

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewStateEvent wraps a store snapshot for broadcasting.
func NewStateEvent(st cart.State) (Event, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return Event{}, fmt.Errorf("marshal cart state: %w", err)
	}
	return Event{Type: EventCartsState, Payload: payload}, nil
}

type terminalEvent struct {
	TerminalID uuid.UUID
	Event      Event
}

// Hub fans cart state out to the UI clients of each terminal. Every
// terminal has a room; the last message sent to a room is replayed to
// clients that join later, so a fresh screen starts from current state.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool
	last  map[uuid.UUID][]byte

	register   chan *Client
	unregister chan *Client
	broadcast  chan *terminalEvent
	done       chan struct{}

	log zerolog.Logger
	mu  sync.RWMutex
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		last:       make(map[uuid.UUID][]byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *terminalEvent, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run processes hub traffic until ctx is cancelled.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.terminalID] == nil {
				h.rooms[client.terminalID] = make(map[*Client]bool)
			}
			h.rooms[client.terminalID][client] = true
			if msg, ok := h.last[client.terminalID]; ok {
				client.send <- msg
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.log.Error().Err(err).Str("terminal_id", event.TerminalID.String()).Msg("marshal ws event")
				continue
			}

			h.mu.Lock()
			h.last[event.TerminalID] = message
			for client := range h.rooms[event.TerminalID] {
				select {
				case client.send <- message:
				default:
					// slow consumer
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// leave unregisters client unless the hub has already stopped, in which
// case closeAll took care of it.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.terminalID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.terminalID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// BroadcastToTerminal queues an event for every client of a terminal.
// Events sent after Run has returned are dropped.
func (h *Hub) BroadcastToTerminal(terminalID uuid.UUID, event Event) {
	select {
	case h.broadcast <- &terminalEvent{TerminalID: terminalID, Event: event}:
	case <-h.done:
	}
}

// Listener adapts the hub to a cart store subscription for one terminal.
func (h *Hub) Listener(terminalID uuid.UUID) cart.Listener {
	return func(st cart.State) {
		ev, err := NewStateEvent(st)
		if err != nil {
			h.log.Error().Err(err).Str("terminal_id", terminalID.String()).Msg("encode cart state")
			return
		}
		h.BroadcastToTerminal(terminalID, ev)
	}
}

// Clients reports how many clients are connected to a terminal.
func (h *Hub) Clients(terminalID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[terminalID])
}
