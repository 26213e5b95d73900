// Package chat implements the room presence core: the session registry, the
// room-membership index, the presence state machine, and broadcast routing.
package chat

import (
	"errors"
	"sort"
	"sync"
)

// ConnectionID identifies one live connection. It is assigned by the
// transport layer and is unique for the connection's lifetime.
type ConnectionID string

// Session is the mutable record of one connection: its identity, display
// name, and current room. Room is empty until the first enterRoom.
type Session struct {
	ID   ConnectionID `json:"id"`
	Name string       `json:"name"`
	Room string       `json:"room,omitempty"`
}

var (
	// ErrAlreadyRegistered is returned by Register when the id already has
	// a live session.
	ErrAlreadyRegistered = errors.New("chat: connection id already registered")
	// ErrNotRegistered is returned by SetRoom when the id has no session.
	ErrNotRegistered = errors.New("chat: connection id not registered")
)

// Registry is the authoritative map from connection identity to session,
// plus an incrementally maintained room -> members index. A room name exists
// in the index iff at least one session currently references it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[ConnectionID]*Session
	rooms    map[string]map[ConnectionID]struct{}
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[ConnectionID]*Session),
		rooms:    make(map[string]map[ConnectionID]struct{}),
	}
}

// Register creates a session for id with empty name and no room. It returns
// ErrAlreadyRegistered if a session for id already exists; the earlier
// session is left untouched.
func (r *Registry) Register(id ConnectionID) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return Session{}, ErrAlreadyRegistered
	}

	sess := &Session{ID: id}
	r.sessions[id] = sess
	return *sess, nil
}

// Lookup returns a copy of the session for id, or false if none exists.
func (r *Registry) Lookup(id ConnectionID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// SetRoom updates the session's name and room in one step and keeps the room
// index consistent with the change. It returns ErrNotRegistered if id has no
// session; callers must Register first.
func (r *Registry) SetRoom(id ConnectionID, name, room string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotRegistered
	}

	if sess.Room != room {
		r.dropMember(sess.Room, id)
		if room != "" {
			members, ok := r.rooms[room]
			if !ok {
				members = make(map[ConnectionID]struct{})
				r.rooms[room] = members
			}
			members[id] = struct{}{}
		}
	}

	sess.Name = name
	sess.Room = room
	return *sess, nil
}

// Unregister removes the session for id and returns it. The second return is
// false when id was not registered; that case is a valid no-op.
func (r *Registry) Unregister(id ConnectionID) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}

	delete(r.sessions, id)
	r.dropMember(sess.Room, id)
	return *sess, true
}

// dropMember removes id from room's member set, deleting the room entry when
// it empties. Caller holds r.mu.
func (r *Registry) dropMember(room string, id ConnectionID) {
	if room == "" {
		return
	}
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// MembersOf returns copies of every session currently in room, sorted by
// display name for stable output. The result is empty for unknown rooms.
func (r *Registry) MembersOf(room string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]Session, 0, len(members))
	for id := range members {
		out = append(out, *r.sessions[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveRooms returns the distinct names of all rooms with at least one
// member, sorted lexicographically.
func (r *Registry) ActiveRooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
