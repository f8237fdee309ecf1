package relay

import (
	"encoding/json"
	"testing"

	"github.com/quackamole-dev/quackamole-relay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCacheCompile(t *testing.T) {
	fc := NewFilterCache(4)

	prog, err := fc.Compile(`Target.DisplayName == "bob"`)
	require.NoError(t, err)
	require.NotNil(t, prog)

	again, err := fc.Compile(`Target.DisplayName == "bob"`)
	require.NoError(t, err)
	assert.Same(t, prog, again)

	_, err = fc.Compile(`Target.DisplayName ==`)
	assert.Error(t, err)
}

func TestFilterMatch(t *testing.T) {
	fc := NewFilterCache(4)
	room := &types.Room{Id: "r1", Name: "lobby", MaxUsers: 4}
	alice := &types.User{Id: "u1", DisplayName: "alice", Status: types.UserStatusOnline}
	bob := &types.User{Id: "u2", DisplayName: "bob", Status: types.UserStatusOnline}

	prog, err := fc.Compile(`Target.DisplayName == "bob"`)
	require.NoError(t, err)
	assert.True(t, fc.Match(prog, room, alice, bob))
	assert.False(t, fc.Match(prog, room, alice, alice))

	prog, err = fc.Compile(`Source.Id == "u1" && Room.Name == "lobby"`)
	require.NoError(t, err)
	assert.True(t, fc.Match(prog, room, alice, bob))

	// a non-boolean result never matches
	prog, err = fc.Compile(`Target.DisplayName`)
	require.NoError(t, err)
	assert.False(t, fc.Match(prog, room, alice, bob))

	// nil program means unfiltered
	assert.True(t, fc.Match(nil, room, alice, bob))

	// an unbound identity evaluates against the zero user
	prog, err = fc.Compile(`Source.Id == ""`)
	require.NoError(t, err)
	assert.True(t, fc.Match(prog, room, nil, bob))
}

// A filtered broadcast reads member identities while another connection may
// be logging in or renaming; both sides have to go through the registry lock.
// Meant to run under the race detector.
func TestFilteredBroadcastDuringRebind(t *testing.T) {
	h := newHarness(t)
	room := h.reg.Create("", 5)
	senderA, senderB := &fakeSender{}, &fakeSender{}
	connA, _, _ := h.register(t, senderA, "alice post")
	connB, _, _ := h.register(t, senderB, "bob")
	h.join(t, connA, senderA, room.Id)
	h.join(t, connB, senderB, room.Id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			h.cr.BindUser(connB.Id, &types.User{Id: "u-rebound", DisplayName: "bob"}, "other-secret")
		}
	}()
	for i := 0; i < 200; i++ {
		h.d.HandleFrame(connA, frame(t, types.RequestRoomBroadcast, "", map[string]interface{}{
			"roomIds":      []string{room.Id},
			"targetFilter": `Target.DisplayName == "bob"`,
		}))
	}
	<-done

	// every broadcast reached bob under one identity or the other
	assert.Len(t, senderB.msgs, 200)
}

func TestBroadcastWithTargetFilter(t *testing.T) {
	h := newHarness(t)
	room := h.reg.Create("", 5)
	senderA, senderB, senderC := &fakeSender{}, &fakeSender{}, &fakeSender{}
	connA, _, _ := h.register(t, senderA, "alice post")
	connB, _, _ := h.register(t, senderB, "bob")
	connC, _, _ := h.register(t, senderC, "carol")
	h.join(t, connA, senderA, room.Id)
	h.join(t, connB, senderB, room.Id)
	h.join(t, connC, senderC, room.Id)
	publishedBefore := len(h.ps.published)

	h.d.HandleFrame(connA, frame(t, types.RequestRoomBroadcast, "", map[string]interface{}{
		"roomIds":      []string{room.Id},
		"targetFilter": `Target.DisplayName == "bob"`,
		"move":         "e4",
	}))

	// filtered broadcasts go point-to-point, nothing hits the topic
	assert.Len(t, h.ps.published, publishedBefore)
	assert.Empty(t, senderC.msgs)
	require.Len(t, senderB.msgs, 1)

	msg := types.BroadcastMessage{}
	require.NoError(t, json.Unmarshal(senderB.msgs[0], &msg))
	assert.Equal(t, "broadcast", msg.Type)
	assert.Equal(t, RoomTopic(room.Id), msg.Topic)
}
