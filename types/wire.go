package types

import "encoding/json"

// Every frame arriving on the websocket is a JSON-serialized RequestEnvelope.
// Timestamp and SocketId are stamped by the server after decoding, any
// client-supplied values are overwritten.
type RequestEnvelope struct {
	Type      string          `json:"type"`
	AwaitId   string          `json:"awaitId"`
	Timestamp int64           `json:"timestamp"`
	SocketId  string          `json:"socketId"`
	Body      json.RawMessage `json:"body"`
}

const (
	RequestUserRegister  = "request__user_register"
	RequestUserLogin     = "request__user_login"
	RequestUserUpdate    = "request__user_update"
	RequestRoomCreate    = "request__room_create"
	RequestRoomJoin      = "request__room_join"
	RequestRoomBroadcast = "request__room_broadcast"
	RequestMessageRelay  = "request__message_relay"
	RequestPluginSet     = "request__plugin_set"
)

const (
	ResponseUserRegister = "response__user_register"
	ResponseUserLogin    = "response__user_login"
	ResponseUserUpdate   = "response__user_update"
	ResponseRoomJoin     = "response__room_join"
	ResponsePluginSet    = "response__plugin_set"
	ResponseError        = "response__error"
)

const (
	RoomEventUserJoined           = "room_event__user_joined"
	RoomEventUserLeft             = "room_event__user_left"
	RoomEventPluginSet            = "room_event__plugin_set"
	RoomEventUserDataChanged      = "room_event__user_data_changed"
	RoomEventAdminSettingsChanged = "room_event__admin_settings_changed"
)

const TypeMessageRelayDelivery = "message_relay_delivery"

// The typed request bodies. Incoming bodies are weakly decoded, extra fields
// are ignored.

type UserRegisterBody struct {
	DisplayName string `json:"displayName" mapstructure:"displayName"`
}

type UserLoginBody struct {
	Secret string `json:"secret" mapstructure:"secret"`
}

type UserUpdateBody struct {
	DisplayName string `json:"displayName" mapstructure:"displayName"`
}

type RoomCreateBody struct {
	Name     string `json:"name" mapstructure:"name"`
	MaxUsers int    `json:"maxUsers" mapstructure:"maxUsers"`
}

type RoomJoinBody struct {
	RoomId string `json:"roomId" mapstructure:"roomId"`
}

type RoomBroadcastBody struct {
	RoomIds      []string               `json:"roomIds" mapstructure:"roomIds"`
	TargetFilter string                 `json:"targetFilter" mapstructure:"targetFilter"`
	Data         map[string]interface{} `json:",remain" mapstructure:",remain"`
}

type MessageRelayBody struct {
	RoomId      string                 `json:"roomId" mapstructure:"roomId"`
	ReceiverIds []string               `json:"receiverIds" mapstructure:"receiverIds"`
	RelayData   map[string]interface{} `json:"relayData" mapstructure:"relayData"`
}

type PluginSetBody struct {
	RoomId   string  `json:"roomId" mapstructure:"roomId"`
	IframeId string  `json:"iframeId" mapstructure:"iframeId"`
	Plugin   *Plugin `json:"plugin" mapstructure:"plugin"`
}

// Direct responses. AwaitId always echoes the request's value, an empty string
// when the request carried none.

type ErrorResponseMessage struct {
	Type        string `json:"type"`
	AwaitId     string `json:"awaitId"`
	RequestType string `json:"requestType"`
	Code        int    `json:"code"`
	Message     string `json:"message"`
}

type UserRegisterResponseMessage struct {
	Type        string   `json:"type"`
	AwaitId     string   `json:"awaitId"`
	RequestType string   `json:"requestType"`
	User        *User    `json:"user"`
	Secret      string   `json:"secret"`
	Errors      []string `json:"errors,omitempty"`
}

type UserLoginResponseMessage struct {
	Type        string `json:"type"`
	AwaitId     string `json:"awaitId"`
	RequestType string `json:"requestType"`
	User        *User  `json:"user"`
	Token       string `json:"token"`
}

type UserUpdateResponseMessage struct {
	Type        string `json:"type"`
	AwaitId     string `json:"awaitId"`
	RequestType string `json:"requestType"`
	User        *User  `json:"user"`
}

type RoomJoinResponseMessage struct {
	Type        string  `json:"type"`
	AwaitId     string  `json:"awaitId"`
	RequestType string  `json:"requestType"`
	Room        *Room   `json:"room"`
	Users       []*User `json:"users"`
}

type PluginSetResponseMessage struct {
	Type        string  `json:"type"`
	AwaitId     string  `json:"awaitId"`
	RequestType string  `json:"requestType"`
	RoomId      string  `json:"roomId"`
	IframeId    string  `json:"iframeId"`
	Plugin      *Plugin `json:"plugin"`
}

// RoomEventMessage is published on a room's topic ("rooms/<roomId>").
type RoomEventMessage struct {
	Type      string      `json:"type"`
	RoomId    string      `json:"roomId"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// BroadcastMessage wraps a room_broadcast payload verbatim.
type BroadcastMessage struct {
	Topic string      `json:"topic"`
	Type  string      `json:"type"` // always "broadcast"
	Data  interface{} `json:"data"`
}

// MessageRelayDeliveryMessage is sent point-to-point to each qualifying
// receiver, never via a topic.
type MessageRelayDeliveryMessage struct {
	Type      string      `json:"type"`
	SenderId  string      `json:"senderId"`
	RoomId    string      `json:"roomId"`
	RelayData interface{} `json:"relayData"`
	AwaitId   string      `json:"awaitId"`
}
