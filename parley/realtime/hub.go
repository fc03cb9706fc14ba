package realtime

import "sync"

// Hub tracks which connections joined which chat. Broadcasts go to every
// member of a chat's room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[Emitter]struct{}
	joined map[Emitter]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[string]map[Emitter]struct{}),
		joined: make(map[Emitter]map[string]struct{}),
	}
}

func (h *Hub) Join(room string, e Emitter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[Emitter]struct{})
	}
	h.rooms[room][e] = struct{}{}
	if h.joined[e] == nil {
		h.joined[e] = make(map[string]struct{})
	}
	h.joined[e][room] = struct{}{}
}

func (h *Hub) leave(room string, e Emitter) {
	if members, ok := h.rooms[room]; ok {
		delete(members, e)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[e]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.joined, e)
		}
	}
}

// Remove drops e from every room it joined.
func (h *Hub) Remove(e Emitter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.joined[e] {
		h.leave(room, e)
	}
}

// Close drops a whole room, used when its chat is deleted.
func (h *Hub) Close(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for e := range h.rooms[room] {
		h.leave(room, e)
	}
}

func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast emits to a snapshot of the room taken under the lock; emits run
// outside it.
func (h *Hub) Broadcast(room, event string, data interface{}) {
	h.mu.RLock()
	members := make([]Emitter, 0, len(h.rooms[room]))
	for e := range h.rooms[room] {
		members = append(members, e)
	}
	h.mu.RUnlock()
	for _, e := range members {
		e.Emit(event, data)
	}
}
