package conns

import (
	"testing"

	"github.com/quackamole-dev/quackamole-relay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSender struct{}

func (nopSender) Send(data []byte) error { return nil }

func TestOpenClose(t *testing.T) {
	reg := NewRegistry()

	conn := reg.Open(nopSender{})
	assert.NotEmpty(t, conn.Id)
	assert.Equal(t, 1, reg.Count())

	other := reg.Open(nopSender{})
	assert.NotEqual(t, conn.Id, other.Id)

	reg.AddRoom(conn.Id, "room-1")
	reg.AddRoom(conn.Id, "room-2")
	reg.AddRoom(conn.Id, "room-1") // duplicate ignored

	closed := reg.Close(conn.Id)
	assert.NotNil(t, closed)
	assert.Equal(t, []string{"room-1", "room-2"}, closed.Rooms)
	assert.Equal(t, 1, reg.Count())

	// closing an already-closed id is a no-op
	assert.Nil(t, reg.Close(conn.Id))
}

func TestBindAndRebind(t *testing.T) {
	reg := NewRegistry()
	conn := reg.Open(nopSender{})
	originalId := conn.Id

	user := &types.User{Id: "user-1", DisplayName: "quacker"}
	assert.True(t, reg.BindUser(conn.Id, user, "s3cret"))

	// binding alone does not change the index
	got, ok := reg.Lookup(originalId)
	assert.True(t, ok)
	assert.Equal(t, user, got.User)

	newId, ok := reg.RebindAsUser(originalId)
	assert.True(t, ok)
	assert.Equal(t, "user-1", newId)

	_, ok = reg.Lookup(originalId)
	assert.False(t, ok)
	got, ok = reg.Lookup("user-1")
	assert.True(t, ok)
	assert.Equal(t, user, got.User)

	// re-login replaces the identity
	other := &types.User{Id: "user-2", DisplayName: "other"}
	assert.True(t, reg.BindUser("user-1", other, "other-secret"))
	assert.Equal(t, other, reg.BoundUser("user-1"))

	assert.False(t, reg.BindUser("gone", user, "x"))
	_, ok = reg.RebindAsUser("gone")
	assert.False(t, ok)
}

func TestLookupReturnsSnapshot(t *testing.T) {
	reg := NewRegistry()
	conn := reg.Open(nopSender{})
	reg.AddRoom(conn.Id, "room-1")

	snap, ok := reg.Lookup(conn.Id)
	require.True(t, ok)
	assert.Nil(t, snap.User)

	// a later rebind must not show up in the snapshot
	user := &types.User{Id: "user-1", DisplayName: "quacker"}
	reg.BindUser(conn.Id, user, "s3cret")
	assert.Nil(t, snap.User)

	// and mutating the snapshot must not reach the registry
	snap.Rooms[0] = "mutated"
	assert.True(t, reg.Subscribed(conn.Id, "room-1"))
}

func TestSubscribed(t *testing.T) {
	reg := NewRegistry()
	conn := reg.Open(nopSender{})

	assert.False(t, reg.Subscribed(conn.Id, "room-1"))
	reg.AddRoom(conn.Id, "room-1")
	assert.True(t, reg.Subscribed(conn.Id, "room-1"))
	assert.False(t, reg.Subscribed(conn.Id, "room-2"))
	assert.False(t, reg.Subscribed("unknown", "room-1"))

	rooms := reg.Rooms(conn.Id)
	rooms[0] = "mutated"
	assert.True(t, reg.Subscribed(conn.Id, "room-1"))
}
