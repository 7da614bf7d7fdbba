package presence

import (
	"encoding/json"
	"sync"
)

// Entry is the ephemeral record of one connection inside a room. It is
// owned by the Registry; callers get copies, never shared pointers.
type Entry struct {
	SocketID string          `json:"socketId"`
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	Cursor   json.RawMessage `json:"cursorPosition"`
}

type room struct {
	mu      sync.Mutex
	entries map[string]Entry // keyed by socket id
}

// Registry tracks which connections are active in which document room.
// State is process-local and never persisted; it resets on restart.
//
// The outer lock only guards the room map. Each room has its own mutex,
// so operations on the same room serialize while different rooms never
// contend.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join records a connection in the document's room, creating the room on
// first join. The entry starts with no cursor position.
func (r *Registry) Join(docID, socketID, userID, username string) {
	r.mu.Lock()
	rm, ok := r.rooms[docID]
	if !ok {
		rm = &room{entries: make(map[string]Entry)}
		r.rooms[docID] = rm
	}
	// Insert before releasing the outer lock so a concurrent Leave cannot
	// garbage-collect the room between creation and first entry.
	rm.mu.Lock()
	rm.entries[socketID] = Entry{SocketID: socketID, UserID: userID, Username: username}
	rm.mu.Unlock()
	r.mu.Unlock()
}

// MoveCursor updates the cursor of an existing entry. A missing entry is
// a no-op: a cursor event can race with the connection's leave.
func (r *Registry) MoveCursor(docID, socketID string, position json.RawMessage) {
	r.mu.RLock()
	rm, ok := r.rooms[docID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	if entry, ok := rm.entries[socketID]; ok {
		entry.Cursor = position
		rm.entries[socketID] = entry
	}
	rm.mu.Unlock()
}

// Leave removes the connection's entry. Removing an absent entry is a
// no-op, so the disconnect cleanup path may run more than once. An
// emptied room is deleted from the registry entirely.
func (r *Registry) Leave(docID, socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[docID]
	if !ok {
		return
	}

	rm.mu.Lock()
	delete(rm.entries, socketID)
	empty := len(rm.entries) == 0
	rm.mu.Unlock()

	if empty {
		delete(r.rooms, docID)
	}
}

// ListActive returns a snapshot of the room's current entries, for the
// initial sync sent to a newly joined connection.
func (r *Registry) ListActive(docID string) []Entry {
	r.mu.RLock()
	rm, ok := r.rooms[docID]
	r.mu.RUnlock()
	if !ok {
		return []Entry{}
	}

	rm.mu.Lock()
	entries := make([]Entry, 0, len(rm.entries))
	for _, e := range rm.entries {
		entries = append(entries, e)
	}
	rm.mu.Unlock()
	return entries
}

// RoomCount reports how many rooms currently have at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
