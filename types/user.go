package types

import "time"

const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
)

type User struct {
	Id          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Status      string    `json:"status"`
	LastSeen    time.Time `json:"lastSeen"`
}
