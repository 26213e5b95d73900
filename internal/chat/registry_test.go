package chat_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roomcast/roomcast/internal/chat"
)

func TestRegisterAndLookup(t *testing.T) {
	reg := chat.NewRegistry()

	sess, err := reg.Register("c1")
	require.NoError(t, err)
	require.Equal(t, chat.ConnectionID("c1"), sess.ID)
	require.Empty(t, sess.Name)
	require.Empty(t, sess.Room)

	got, ok := reg.Lookup("c1")
	require.True(t, ok)
	require.Equal(t, sess, got)

	_, ok = reg.Lookup("unknown")
	require.False(t, ok)
}

func TestRegisterDuplicateFails(t *testing.T) {
	reg := chat.NewRegistry()

	_, err := reg.Register("c1")
	require.NoError(t, err)

	_, err = reg.Register("c1")
	require.ErrorIs(t, err, chat.ErrAlreadyRegistered)
	require.Equal(t, 1, reg.Len())
}

func TestSetRoomRequiresRegistration(t *testing.T) {
	reg := chat.NewRegistry()

	_, err := reg.SetRoom("ghost", "Alice", "general")
	require.ErrorIs(t, err, chat.ErrNotRegistered)
}

func TestSetRoomMovesMembership(t *testing.T) {
	reg := chat.NewRegistry()
	_, err := reg.Register("c1")
	require.NoError(t, err)

	sess, err := reg.SetRoom("c1", "Alice", "general")
	require.NoError(t, err)
	require.Equal(t, "Alice", sess.Name)
	require.Equal(t, "general", sess.Room)
	require.Equal(t, []string{"general"}, reg.ActiveRooms())

	// Switch rooms: the old room must not retain the session and, being
	// empty, must vanish from the directory.
	_, err = reg.SetRoom("c1", "Alice", "random")
	require.NoError(t, err)
	require.Empty(t, reg.MembersOf("general"))
	require.Len(t, reg.MembersOf("random"), 1)
	require.Equal(t, []string{"random"}, reg.ActiveRooms())
}

func TestSetRoomUpdatesNameInPlace(t *testing.T) {
	reg := chat.NewRegistry()
	_, err := reg.Register("c1")
	require.NoError(t, err)

	_, err = reg.SetRoom("c1", "Alice", "general")
	require.NoError(t, err)
	_, err = reg.SetRoom("c1", "Alicia", "general")
	require.NoError(t, err)

	members := reg.MembersOf("general")
	require.Len(t, members, 1)
	require.Equal(t, "Alicia", members[0].Name)
	require.Equal(t, []string{"general"}, reg.ActiveRooms())
}

func TestUnregisterCleansUpMembership(t *testing.T) {
	reg := chat.NewRegistry()
	_, err := reg.Register("c1")
	require.NoError(t, err)
	_, err = reg.SetRoom("c1", "Alice", "general")
	require.NoError(t, err)

	sess, ok := reg.Unregister("c1")
	require.True(t, ok)
	require.Equal(t, "general", sess.Room)

	_, ok = reg.Lookup("c1")
	require.False(t, ok)
	require.Empty(t, reg.MembersOf("general"))
	require.Empty(t, reg.ActiveRooms())

	// Unregistering an unknown id is a valid no-op.
	_, ok = reg.Unregister("c1")
	require.False(t, ok)
}

func TestMembersSortedByName(t *testing.T) {
	reg := chat.NewRegistry()
	for id, name := range map[chat.ConnectionID]string{
		"c1": "Charlie",
		"c2": "Alice",
		"c3": "Bob",
	} {
		_, err := reg.Register(id)
		require.NoError(t, err)
		_, err = reg.SetRoom(id, name, "general")
		require.NoError(t, err)
	}

	members := reg.MembersOf("general")
	require.Len(t, members, 3)
	require.Equal(t, "Alice", members[0].Name)
	require.Equal(t, "Bob", members[1].Name)
	require.Equal(t, "Charlie", members[2].Name)
}

func TestActiveRoomsDistinctAndSorted(t *testing.T) {
	reg := chat.NewRegistry()
	rooms := []string{"zebra", "alpha", "alpha", "mango"}
	for i, room := range rooms {
		id := chat.ConnectionID(fmt.Sprintf("c%d", i))
		_, err := reg.Register(id)
		require.NoError(t, err)
		_, err = reg.SetRoom(id, fmt.Sprintf("user%d", i), room)
		require.NoError(t, err)
	}

	require.Equal(t, []string{"alpha", "mango", "zebra"}, reg.ActiveRooms())
}

// Conservation: the sum of room member counts equals the number of sessions
// currently holding a room.
func TestMembershipConservation(t *testing.T) {
	reg := chat.NewRegistry()

	joined := 0
	for i := 0; i < 20; i++ {
		id := chat.ConnectionID(fmt.Sprintf("c%d", i))
		_, err := reg.Register(id)
		require.NoError(t, err)
		if i%3 == 0 {
			continue // stays roomless
		}
		room := fmt.Sprintf("room-%d", i%4)
		_, err = reg.SetRoom(id, fmt.Sprintf("user%d", i), room)
		require.NoError(t, err)
		joined++
	}

	total := 0
	for _, room := range reg.ActiveRooms() {
		members := reg.MembersOf(room)
		require.NotEmpty(t, members, "directory listed an empty room")
		total += len(members)
	}
	require.Equal(t, joined, total)
}
