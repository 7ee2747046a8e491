package broadcast

import (
	"errors"
	"log"
	"sync"
)

var (
	// ErrHubClosed is returned when registering on a closed hub.
	ErrHubClosed = errors.New("hub is closed")
	// ErrUnknownClient is returned for operations on an unregistered client.
	ErrUnknownClient = errors.New("client not registered")
)

// Hub maps room keys to the clients joined to them.
type Hub struct {
	clients map[string]*Client             // clientID -> Client
	rooms   map[string]map[string]*Client  // room key -> clientID -> Client
	joined  map[string]map[string]struct{} // clientID -> room keys
	closed  bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.clients[client.ID] = client
	h.joined[client.ID] = make(map[string]struct{})
	log.Printf("[hub] Client %s registered", client.ID)
	return nil
}

// Unregister removes a client from the hub and from every room it joined. It
// returns the rooms the client was in.
func (h *Hub) Unregister(clientID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[clientID]; !ok {
		return nil
	}
	left := h.leaveAllLocked(clientID)
	delete(h.clients, clientID)
	delete(h.joined, clientID)
	log.Printf("[hub] Client %s unregistered (left %d rooms)", clientID, len(left))
	return left
}

// Join adds a client to a room. Joining twice is a no-op; added reports whether
// the client was newly added.
func (h *Hub) Join(clientID, room string) (added bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false, ErrUnknownClient
	}
	if _, ok := h.joined[clientID][room]; ok {
		return false, nil
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][clientID] = client
	h.joined[clientID][room] = struct{}{}
	return true, nil
}

// Leave removes a client from a room.
func (h *Hub) Leave(clientID, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(clientID, room)
}

// LeaveAll removes a client from every room it joined and returns those rooms.
func (h *Hub) LeaveAll(clientID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveAllLocked(clientID)
}

func (h *Hub) leaveAllLocked(clientID string) []string {
	rooms := make([]string, 0, len(h.joined[clientID]))
	for room := range h.joined[clientID] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		h.leaveLocked(clientID, room)
	}
	return rooms
}

func (h *Hub) leaveLocked(clientID, room string) bool {
	if _, ok := h.joined[clientID][room]; !ok {
		return false
	}
	delete(h.joined[clientID], room)
	if members := h.rooms[room]; members != nil {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	return true
}

// Broadcast queues data for every client in room except excludeID, skipping
// clients whose transport has failed. It returns the number of clients reached.
func (h *Hub) Broadcast(room string, data []byte, excludeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for id, client := range h.rooms[room] {
		if id == excludeID || client.Failed() {
			continue
		}
		if client.Send(data) {
			sent++
		}
	}
	return sent
}

// SendTo queues data for a single client.
func (h *Hub) SendTo(clientID string, data []byte) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return client.Send(data)
}

// IsJoined reports whether a client is in room.
func (h *Hub) IsJoined(clientID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.joined[clientID][room]
	return ok
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with at least one client.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomClientCount returns the number of clients in a room.
func (h *Hub) RoomClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// CloseAll closes every client and its transport and refuses new registrations.
func (h *Hub) CloseAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.clients)
	for _, client := range h.clients {
		client.Close()
		_ = client.conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	h.joined = make(map[string]map[string]struct{})
	h.closed = true
	return n
}
