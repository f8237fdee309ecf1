package relay

import (
	"encoding/json"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/quackamole-dev/quackamole-relay/catalog"
	"github.com/quackamole-dev/quackamole-relay/conns"
	"github.com/quackamole-dev/quackamole-relay/directory"
	"github.com/quackamole-dev/quackamole-relay/globals"
	"github.com/quackamole-dev/quackamole-relay/rooms"
	"github.com/quackamole-dev/quackamole-relay/types"
)

// PubSub is the topic primitive the dispatcher publishes through. The
// websocket hub implements it; tests use fakes.
type PubSub interface {
	Subscribe(s conns.Sender, topic string)
	Unsubscribe(s conns.Sender, topic string)
	Publish(topic string, data []byte)
}

// RoomTopic names the pub/sub topic for a room.
func RoomTopic(roomId string) string {
	return "rooms/" + roomId
}

// Dispatcher is the message-handling core: it decodes inbound frames, routes
// them to the handler for their type and emits direct responses and room
// events. One HandleFrame call runs at a time per connection (the read loop
// is the only caller), concurrent connections are serialized by the registry
// locks.
type Dispatcher struct {
	dir     *directory.Directory
	rooms   *rooms.Registry
	cat     *catalog.Catalog
	conns   *conns.Registry
	pubsub  PubSub
	filters *FilterCache
	logger  hclog.Logger
}

func NewDispatcher(dir *directory.Directory, reg *rooms.Registry, cat *catalog.Catalog, cr *conns.Registry, pubsub PubSub) *Dispatcher {
	return &Dispatcher{
		dir:     dir,
		rooms:   reg,
		cat:     cat,
		conns:   cr,
		pubsub:  pubsub,
		filters: NewFilterCache(defaultFilterCacheSize),
		logger:  globals.AppLogger.Named("dispatch"),
	}
}

// OpenConnection registers a newly accepted channel and returns its record.
func (d *Dispatcher) OpenConnection(sender conns.Sender) *conns.Connection {
	conn := d.conns.Open(sender)
	d.logger.Info("socket opened", "socketId", conn.Id)
	return conn
}

// CloseConnection tears down a channel: the registry record is removed, the
// membership of every joined room is pruned and one user_left event is
// published per room, carrying the last bound identity. Safe to call for an
// already-closed connection.
func (d *Dispatcher) CloseConnection(conn *conns.Connection) {
	record := d.conns.Close(conn.Id)
	if record == nil {
		return
	}
	d.logger.Info("socket closed", "socketId", record.Id)
	d.rooms.Leave(record.Id, record.Rooms)
	for _, roomId := range record.Rooms {
		d.pubsub.Unsubscribe(record.Sender, RoomTopic(roomId))
		d.PublishRoomEvent(roomId, types.RoomEventUserLeft, map[string]interface{}{"user": record.User})
	}
	if record.User != nil {
		d.dir.SetStatus(record.User.Id, types.UserStatusOffline)
	}
}

// HandleFrame decodes one inbound frame and dispatches it. Timestamp and
// socketId are stamped server-side, client-supplied values are discarded.
// Frames that cannot be decoded at all are dropped; decodable frames with an
// unknown type are answered with an error when they carry an awaitId.
func (d *Dispatcher) HandleFrame(conn *conns.Connection, raw []byte) {
	env := &types.RequestEnvelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		d.logger.Warn("invalid message received", "socketId", conn.Id, "error", err)
		return
	}
	env.Timestamp = time.Now().UnixMilli()
	env.SocketId = conn.Id

	switch env.Type {
	case types.RequestUserRegister:
		d.handleUserRegister(conn, env)
	case types.RequestUserLogin:
		d.handleUserLogin(conn, env)
	case types.RequestUserUpdate:
		d.handleUserUpdate(conn, env)
	case types.RequestRoomCreate:
		d.handleRoomCreate(conn, env)
	case types.RequestRoomJoin:
		d.handleRoomJoin(conn, env)
	case types.RequestRoomBroadcast:
		d.handleRoomBroadcast(conn, env)
	case types.RequestMessageRelay:
		d.handleMessageRelay(conn, env)
	case types.RequestPluginSet:
		d.handlePluginSet(conn, env)
	default:
		d.logger.Warn("no message handler found", "type", env.Type, "socketId", conn.Id)
		if env.AwaitId != "" {
			d.sendError(conn, env, types.ErrCodeUnknownRequestType)
		}
	}
}

// decodeBody weakly decodes the type-specific body, tolerating stringly typed
// numbers and ignoring unknown fields.
func decodeBody(env *types.RequestEnvelope, out interface{}) error {
	bodyMap := make(map[string]interface{})
	if len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, &bodyMap); err != nil {
			return err
		}
	}
	return mapstructure.WeakDecode(bodyMap, out)
}

// send marshals a direct response exactly once and writes it to the sender.
func (d *Dispatcher) send(conn *conns.Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("could not marshal response", "error", err)
		return
	}
	if err := conn.Sender.Send(data); err != nil {
		d.logger.Warn("could not send response", "socketId", conn.Id, "error", err)
	}
}

func (d *Dispatcher) sendError(conn *conns.Connection, env *types.RequestEnvelope, code string) {
	d.send(conn, &types.ErrorResponseMessage{
		Type:        types.ResponseError,
		AwaitId:     env.AwaitId,
		RequestType: env.Type,
		Code:        400,
		Message:     code,
	})
}

// PublishRoomEvent publishes a room_event__* message on the room's topic.
// Also used by the HTTP surface for admin_settings_changed.
func (d *Dispatcher) PublishRoomEvent(roomId, kind string, data interface{}) {
	msg, err := json.Marshal(&types.RoomEventMessage{
		Type:      kind,
		RoomId:    roomId,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		d.logger.Error("could not marshal room event", "kind", kind, "error", err)
		return
	}
	d.pubsub.Publish(RoomTopic(roomId), msg)
}
