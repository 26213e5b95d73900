package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const welcomeText = "Welcome to Chat App"

// Peer is the delivery side of one connection. Deliver must not block: it
// enqueues the payload for the connection's writer and reports false when
// the connection can no longer accept events. A false result never aborts
// delivery to other peers.
type Peer interface {
	ID() ConnectionID
	Deliver(payload []byte) bool
}

// Coordinator drives the presence protocol: it owns the registry, tracks the
// delivery peer for every connection, and routes events to the four
// broadcast scopes (self, room, room-except-sender, global).
//
// A single mutex serializes every protocol operation end to end, so a
// membership read feeding a broadcast never observes a half-applied room
// switch, and a disconnect racing an enterRoom for the same identity is
// ordered after it. Only the enqueue happens under the lock; socket I/O is
// the peers' problem.
type Coordinator struct {
	mu       sync.Mutex
	registry *Registry
	peers    map[ConnectionID]Peer
	now      func() time.Time
	log      zerolog.Logger
}

// NewCoordinator constructs a Coordinator with an empty registry.
func NewCoordinator(logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		registry: NewRegistry(),
		peers:    make(map[ConnectionID]Peer),
		now:      time.Now,
		log:      logger,
	}
}

// Registry exposes the session store for read-side consumers.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Connect registers the peer's connection and emits the welcome notice to it
// alone. The connection holds no room yet, so nobody else hears about it.
func (c *Coordinator) Connect(p Peer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := p.ID()
	if _, err := c.registry.Register(id); err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}
	c.peers[id] = p

	c.log.Debug().Str("conn", string(id)).Msg("connection registered")
	c.sendTo(id, marshalEvent(EventMessage, buildMessage(SystemSender, welcomeText, c.now())))
	return nil
}

// HandleEvent decodes one inbound frame and dispatches it. Malformed frames
// and frames with missing required fields are dropped; failure is local to
// the event and never to the connection.
func (c *Coordinator) HandleEvent(id ConnectionID, raw []byte) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.log.Debug().Str("conn", string(id)).Err(err).Msg("dropping malformed event")
		return
	}

	switch evt.Name {
	case EventEnterRoom:
		var req EnterRoomRequest
		if err := json.Unmarshal(evt.Payload, &req); err != nil || req.Room == "" {
			c.log.Debug().Str("conn", string(id)).Msg("dropping malformed enterRoom")
			return
		}
		c.EnterRoom(id, req.Name, req.Room)
	case EventMessage:
		var req MessageRequest
		if err := json.Unmarshal(evt.Payload, &req); err != nil {
			c.log.Debug().Str("conn", string(id)).Msg("dropping malformed message")
			return
		}
		c.Message(id, req.Name, req.Text)
	case EventActivity:
		var req ActivityRequest
		if err := json.Unmarshal(evt.Payload, &req); err != nil {
			c.log.Debug().Str("conn", string(id)).Msg("dropping malformed activity")
			return
		}
		c.Activity(id, req.Name)
	default:
		c.log.Debug().Str("conn", string(id)).Str("event", evt.Name).Msg("dropping unknown event")
	}
}

// EnterRoom moves the connection into room under the given display name,
// notifying the vacated room, the joined room, and the global directory in
// that order. Re-entering the current room short-circuits the notices: only
// the display name is refreshed, and the room sees a new userList when the
// name actually changed.
func (c *Coordinator) EnterRoom(id ConnectionID, name, room string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prior, ok := c.registry.Lookup(id)
	if !ok {
		c.log.Warn().Str("conn", string(id)).Msg("enterRoom from unregistered connection")
		return
	}

	if prior.Room == room {
		if _, err := c.registry.SetRoom(id, name, room); err == nil && prior.Name != name {
			c.broadcastUserList(room)
		}
		return
	}

	// Commit the switch first so the leave-side audience is exactly the old
	// room's remaining members and the mover is never in both views.
	sess, err := c.registry.SetRoom(id, name, room)
	if err != nil {
		return
	}

	if prior.Room != "" {
		c.roomAll(prior.Room, c.notice(fmt.Sprintf("%s has left the room", name)))
		c.broadcastUserList(prior.Room)
	}

	c.sendTo(id, c.notice(fmt.Sprintf("You have joined the %s chat room", sess.Room)))
	c.roomExcept(sess.Room, id, c.notice(fmt.Sprintf("%s has joined the room", sess.Name)))
	c.broadcastUserList(sess.Room)
	c.broadcastRoomList()

	c.log.Info().
		Str("conn", string(id)).
		Str("user", sess.Name).
		Str("room", sess.Room).
		Str("prev", prior.Room).
		Msg("entered room")
}

// Message fans a user-authored message out to the sender's current room,
// sender included. A connection with no room cannot message; the event is
// dropped silently.
func (c *Coordinator) Message(id ConnectionID, name, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.registry.Lookup(id)
	if !ok || sess.Room == "" {
		return
	}
	c.roomAll(sess.Room, marshalEvent(EventMessage, buildMessage(name, text, c.now())))
}

// Activity relays a typing indicator to everyone else in the sender's room.
// Dropped when the sender has no room. Not persisted, not acknowledged.
func (c *Coordinator) Activity(id ConnectionID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.registry.Lookup(id)
	if !ok || sess.Room == "" {
		return
	}
	c.roomExcept(sess.Room, id, marshalEvent(EventActivity, name))
}

// Disconnect removes the connection. If it held a room, the remaining
// members get a leave notice and fresh userList, and everyone gets the
// updated room directory. Disconnecting before ever joining a room is silent
// to everyone else, and a duplicate disconnect is a no-op.
func (c *Coordinator) Disconnect(id ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.registry.Unregister(id)
	delete(c.peers, id)
	if !ok {
		return
	}

	if sess.Room != "" {
		c.roomAll(sess.Room, c.notice(fmt.Sprintf("%s has left the room", sess.Name)))
		c.broadcastUserList(sess.Room)
		c.broadcastRoomList()
	}

	c.log.Debug().Str("conn", string(id)).Str("user", sess.Name).Msg("connection unregistered")
}

func (c *Coordinator) notice(text string) []byte {
	return marshalEvent(EventMessage, buildMessage(SystemSender, text, c.now()))
}

func (c *Coordinator) broadcastUserList(room string) {
	c.roomAll(room, marshalEvent(EventUserList, UserList{Users: c.registry.MembersOf(room)}))
}

func (c *Coordinator) broadcastRoomList() {
	c.global(marshalEvent(EventRoomList, RoomList{Rooms: c.registry.ActiveRooms()}))
}

// sendTo delivers to a single connection. Self scope.
func (c *Coordinator) sendTo(id ConnectionID, payload []byte) {
	if payload == nil {
		return
	}
	if p, ok := c.peers[id]; ok {
		if !p.Deliver(payload) {
			c.log.Debug().Str("conn", string(id)).Msg("delivery dropped")
		}
	}
}

// roomAll delivers to every current member of room, sender included.
func (c *Coordinator) roomAll(room string, payload []byte) {
	if payload == nil {
		return
	}
	for _, sess := range c.registry.MembersOf(room) {
		c.sendTo(sess.ID, payload)
	}
}

// roomExcept delivers to every member of room except sender.
func (c *Coordinator) roomExcept(room string, sender ConnectionID, payload []byte) {
	if payload == nil {
		return
	}
	for _, sess := range c.registry.MembersOf(room) {
		if sess.ID == sender {
			continue
		}
		c.sendTo(sess.ID, payload)
	}
}

// global delivers to every registered connection regardless of room.
func (c *Coordinator) global(payload []byte) {
	if payload == nil {
		return
	}
	for id := range c.peers {
		c.sendTo(id, payload)
	}
}
