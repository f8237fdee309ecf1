package types

import "time"

const (
	DefaultRoomName = "default room name"
	DefaultMaxUsers = 4
)

// A room is a shared namespace for broadcast and relay. Members are identified
// by the id the relay currently knows their connection under (the connection id
// until login, the user id afterwards). AdminUsers is the subset of members who
// joined via the room's adminId.
type Room struct {
	Id          string             `json:"id"`
	AdminId     string             `json:"adminId"`
	Name        string             `json:"name"`
	MaxUsers    int                `json:"maxUsers"`
	JoinedUsers []string           `json:"joinedUsers"`
	AdminUsers  []string           `json:"adminUsers"`
	PluginSlots map[string]*Plugin `json:"pluginSlots"`
	CreatedAt   time.Time          `json:"-" hash:"ignore"`
}
