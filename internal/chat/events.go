package chat

import (
	"encoding/json"
	"time"
)

// SystemSender is the reserved display name used for lifecycle notices
// (welcome, join, leave), distinguishing them from user-authored messages.
const SystemSender = "Admin"

// Event names carried in the wire envelope, inbound and outbound.
const (
	EventEnterRoom = "enterRoom"
	EventMessage   = "message"
	EventActivity  = "activity"
	EventUserList  = "userList"
	EventRoomList  = "roomList"
)

// Event is the envelope exchanged over a connection in both directions.
// Payload stays raw until the event name selects a concrete type.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EnterRoomRequest asks to join a room under a display name.
type EnterRoomRequest struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// MessageRequest carries a user-authored chat message. Name is trusted as
// the display name and not re-validated against the registry.
type MessageRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// ActivityRequest is an ephemeral typing-indicator signal.
type ActivityRequest struct {
	Name string `json:"name"`
}

// ChatMessage is the outbound message payload, both for user messages and
// system notices.
type ChatMessage struct {
	Name string `json:"name"`
	Text string `json:"text"`
	Time string `json:"time"`
}

// UserList is the outbound membership view of a single room.
type UserList struct {
	Users []Session `json:"users"`
}

// RoomList is the outbound global directory of active room names.
type RoomList struct {
	Rooms []string `json:"rooms"`
}

// marshalEvent encodes the envelope once so a broadcast can fan the same
// bytes out to every target. Marshaling these types cannot fail in practice;
// a nil return means the event is dropped.
func marshalEvent(name string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	data, err := json.Marshal(Event{Name: name, Payload: raw})
	if err != nil {
		return nil
	}
	return data
}

// buildMessage constructs a message payload stamped with the local
// hour:minute:second at emission time. Timestamps are never stored.
func buildMessage(name, text string, at time.Time) ChatMessage {
	return ChatMessage{
		Name: name,
		Text: text,
		Time: at.Format("3:04:05 PM"),
	}
}
