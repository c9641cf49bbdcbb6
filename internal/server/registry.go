// Package server tracks which connections belong to which room. The Registry
// is the single source of truth for membership and active display names.
package server

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Session binds a connection to its assigned display name and room. Both are
// immutable for the lifetime of the connection; changing either requires a
// reconnect.
type Session struct {
	Name string
	Room string
}

type room struct {
	members map[*Client]struct{}
	names   map[string]struct{}
}

func newRoom() *room {
	return &room{
		members: make(map[*Client]struct{}),
		names:   make(map[string]struct{}),
	}
}

// Registry owns the room directory and the per-connection sessions. All
// mutations happen on the hub run loop, which makes a name lookup followed by
// Join a single critical section; the mutex exists for concurrent readers
// (client pump goroutines resolving their session).
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*room
	sessions map[*Client]Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*room),
		sessions: make(map[*Client]Session),
	}
}

// Join records c as a member of roomName under the given display name and
// creates its session. The name must already be unique within the room.
func (r *Registry) Join(c *Client, roomName, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[roomName]
	if rm == nil {
		rm = newRoom()
		r.rooms[roomName] = rm
	}
	rm.members[c] = struct{}{}
	rm.names[name] = struct{}{}
	r.sessions[c] = Session{Name: name, Room: roomName}
}

// Remove destroys c's session and membership. It reports whether a session
// existed, so callers can make cleanup idempotent: the second Remove for the
// same connection returns false and changes nothing.
func (r *Registry) Remove(c *Client) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[c]
	if !ok {
		return Session{}, false
	}
	delete(r.sessions, c)

	if rm := r.rooms[sess.Room]; rm != nil {
		delete(rm.members, c)
		delete(rm.names, sess.Name)
		if len(rm.members) == 0 && len(rm.names) == 0 {
			delete(r.rooms, sess.Room)
		}
	}
	return sess, true
}

// Session returns the session bound to c, if any.
func (r *Registry) Session(c *Client) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[c]
	return sess, ok
}

// Members returns a snapshot of the connections currently in roomName.
func (r *Registry) Members(roomName string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm := r.rooms[roomName]
	if rm == nil {
		return nil
	}
	return lo.Keys(rm.members)
}

// Names returns the display names active in roomName in ascending
// lexicographic order.
func (r *Registry) Names(roomName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm := r.rooms[roomName]
	if rm == nil {
		return nil
	}
	names := lo.Keys(rm.names)
	sort.Strings(names)
	return names
}

// NameSet returns a copy of the names active in roomName, for collision
// probing.
func (r *Registry) NameSet(roomName string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm := r.rooms[roomName]
	taken := make(map[string]struct{}, 8)
	if rm != nil {
		for name := range rm.names {
			taken[name] = struct{}{}
		}
	}
	return taken
}

// Clients returns every connection with a live session, across all rooms.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions)
}
