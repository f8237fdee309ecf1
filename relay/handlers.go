package relay

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/quackamole-dev/quackamole-relay/conns"
	"github.com/quackamole-dev/quackamole-relay/directory"
	"github.com/quackamole-dev/quackamole-relay/rooms"
	"github.com/quackamole-dev/quackamole-relay/types"
)

func (d *Dispatcher) handleUserRegister(conn *conns.Connection, env *types.RequestEnvelope) {
	body := types.UserRegisterBody{}
	if err := decodeBody(env, &body); err != nil {
		d.sendError(conn, env, types.ErrCodeBadRequest)
		return
	}
	user, secret, validationErrs := d.dir.Register(body.DisplayName)
	if len(validationErrs) > 0 {
		d.send(conn, &types.UserRegisterResponseMessage{
			Type:        types.ResponseUserRegister,
			AwaitId:     env.AwaitId,
			RequestType: env.Type,
			User:        &types.User{},
			Errors:      validationErrs,
		})
		return
	}
	d.conns.BindUser(conn.Id, user, secret)
	d.send(conn, &types.UserRegisterResponseMessage{
		Type:        types.ResponseUserRegister,
		AwaitId:     env.AwaitId,
		RequestType: env.Type,
		User:        user,
		Secret:      secret,
	})
}

func (d *Dispatcher) handleUserLogin(conn *conns.Connection, env *types.RequestEnvelope) {
	body := types.UserLoginBody{}
	if err := decodeBody(env, &body); err != nil {
		d.sendError(conn, env, types.ErrCodeBadRequest)
		return
	}
	user, err := d.dir.Login(body.Secret)
	if err != nil {
		d.sendError(conn, env, types.ErrCodeUserNotFound)
		return
	}
	d.conns.BindUser(conn.Id, user, body.Secret)
	if newId, ok := d.conns.RebindAsUser(conn.Id); ok {
		d.logger.Debug("connection rebound", "socketId", newId)
	}
	d.send(conn, &types.UserLoginResponseMessage{
		Type:        types.ResponseUserLogin,
		AwaitId:     env.AwaitId,
		RequestType: env.Type,
		User:        user,
		Token:       uuid.NewString(),
	})
}

func (d *Dispatcher) handleUserUpdate(conn *conns.Connection, env *types.RequestEnvelope) {
	body := types.UserUpdateBody{}
	if err := decodeBody(env, &body); err != nil {
		d.sendError(conn, env, types.ErrCodeBadRequest)
		return
	}
	bound := d.conns.BoundUser(conn.Id)
	if bound == nil {
		d.sendError(conn, env, types.ErrCodeUserNotFound)
		return
	}
	user, err := d.dir.UpdateDisplayName(bound.Id, body.DisplayName)
	if err != nil {
		var verr *directory.ValidationError
		if errors.As(err, &verr) {
			d.sendError(conn, env, verr.Code)
		} else {
			d.sendError(conn, env, types.ErrCodeUserNotFound)
		}
		return
	}
	d.conns.SetUser(conn.Id, user)
	d.send(conn, &types.UserUpdateResponseMessage{
		Type:        types.ResponseUserUpdate,
		AwaitId:     env.AwaitId,
		RequestType: env.Type,
		User:        user,
	})
	for _, roomId := range d.conns.Rooms(conn.Id) {
		d.PublishRoomEvent(roomId, types.RoomEventUserDataChanged, map[string]interface{}{"user": user})
	}
}

// room_create is fire-and-forget on the realtime channel; clients that need
// the created room use the HTTP surface.
func (d *Dispatcher) handleRoomCreate(conn *conns.Connection, env *types.RequestEnvelope) {
	body := types.RoomCreateBody{}
	if err := decodeBody(env, &body); err != nil {
		d.sendError(conn, env, types.ErrCodeBadRequest)
		return
	}
	room := d.rooms.Create(body.Name, body.MaxUsers)
	d.logger.Info("room created via socket", "roomId", room.Id, "socketId", conn.Id)
}

func (d *Dispatcher) handleRoomJoin(conn *conns.Connection, env *types.RequestEnvelope) {
	body := types.RoomJoinBody{}
	if err := decodeBody(env, &body); err != nil || body.RoomId == "" {
		d.sendError(conn, env, types.ErrCodeBadRequest)
		return
	}
	room, err := d.rooms.Join(conn.Id, body.RoomId)
	if err != nil {
		d.logger.Info("join failed", "socketId", conn.Id, "roomId", body.RoomId, "error", err)
		d.sendError(conn, env, joinErrorCode(err))
		return
	}
	topic := RoomTopic(room.Id)
	d.pubsub.Subscribe(conn.Sender, topic)
	d.conns.AddRoom(conn.Id, room.Id)
	users := d.dir.GetManyById(room.JoinedUsers)
	d.send(conn, &types.RoomJoinResponseMessage{
		Type:        types.ResponseRoomJoin,
		AwaitId:     env.AwaitId,
		RequestType: env.Type,
		Room:        room,
		Users:       users,
	})
	d.PublishRoomEvent(room.Id, types.RoomEventUserJoined, map[string]interface{}{"user": d.conns.BoundUser(conn.Id)})
}

func joinErrorCode(err error) string {
	switch {
	case errors.Is(err, rooms.ErrAlreadyJoined):
		return types.ErrCodeAlreadyJoined
	case errors.Is(err, rooms.ErrRoomFull):
		return types.ErrCodeRoomFull
	default:
		return types.ErrCodeRoomDoesNotExist
	}
}

// room_broadcast publishes the body verbatim to each named room's topic. A
// targetFilter expression in the body restricts delivery to members whose
// identity matches; filter errors exclude the receiver rather than fail the
// broadcast.
func (d *Dispatcher) handleRoomBroadcast(conn *conns.Connection, env *types.RequestEnvelope) {
	body := types.RoomBroadcastBody{}
	if err := decodeBody(env, &body); err != nil {
		d.sendError(conn, env, types.ErrCodeBadRequest)
		return
	}
	sender := d.conns.BoundUser(conn.Id)
	for _, roomId := range body.RoomIds {
		topic := RoomTopic(roomId)
		msg, err := json.Marshal(&types.BroadcastMessage{
			Topic: topic,
			Type:  "broadcast",
			Data:  json.RawMessage(env.Body),
		})
		if err != nil {
			d.logger.Error("could not marshal broadcast", "error", err)
			continue
		}
		if body.TargetFilter == "" {
			d.pubsub.Publish(topic, msg)
			continue
		}
		d.publishFiltered(roomId, msg, body.TargetFilter, sender)
	}
}

// publishFiltered delivers a broadcast point-to-point to the members whose
// identity passes the filter program.
func (d *Dispatcher) publishFiltered(roomId string, msg []byte, filterSrc string, sender *types.User) {
	prog, err := d.filters.Compile(filterSrc)
	if err != nil {
		d.logger.Warn("could not compile target filter", "error", err)
		return
	}
	room, _, err := d.rooms.Resolve(roomId)
	if err != nil {
		return
	}
	for _, memberId := range room.JoinedUsers {
		member, ok := d.conns.Lookup(memberId)
		if !ok {
			continue
		}
		if !d.filters.Match(prog, room, sender, member.User) {
			continue
		}
		if err := member.Sender.Send(msg); err != nil {
			d.logger.Warn("could not deliver filtered broadcast", "socketId", memberId, "error", err)
		}
	}
}

// handleMessageRelay implements the all-or-nothing relay: a receiver
// qualifies only if its connection exists and subscribes to the room's topic;
// if any requested receiver fails either check nothing is delivered. The
// sender's own id never counts as qualifying. Deliveries go point-to-point,
// not via the topic.
func (d *Dispatcher) handleMessageRelay(conn *conns.Connection, env *types.RequestEnvelope) {
	body := types.MessageRelayBody{}
	if err := decodeBody(env, &body); err != nil {
		d.sendError(conn, env, types.ErrCodeBadRequest)
		return
	}
	if len(body.ReceiverIds) == 0 {
		if env.AwaitId != "" {
			d.sendError(conn, env, types.ErrCodeRelayNoReceivers)
		}
		return
	}
	if !d.conns.Subscribed(conn.Id, body.RoomId) {
		if env.AwaitId != "" {
			d.sendError(conn, env, types.ErrCodeRelayNotInRoom)
		}
		return
	}
	receivers := make([]*conns.Connection, 0, len(body.ReceiverIds))
	for _, receiverId := range body.ReceiverIds {
		if receiverId == conn.Id {
			continue // no point in relaying to yourself
		}
		receiver, ok := d.conns.Lookup(receiverId)
		if !ok {
			continue
		}
		if !d.conns.Subscribed(receiverId, body.RoomId) {
			continue
		}
		receivers = append(receivers, receiver)
	}
	if len(receivers) != len(body.ReceiverIds) {
		if env.AwaitId != "" {
			d.sendError(conn, env, types.ErrCodeRelayReceiversUnavailable)
		}
		return
	}
	delivery, err := json.Marshal(&types.MessageRelayDeliveryMessage{
		Type:      types.TypeMessageRelayDelivery,
		SenderId:  conn.Id,
		RoomId:    body.RoomId,
		RelayData: body.RelayData,
		AwaitId:   "",
	})
	if err != nil {
		d.logger.Error("could not marshal relay delivery", "error", err)
		return
	}
	for _, receiver := range receivers {
		if err := receiver.Sender.Send(delivery); err != nil {
			// transport failure for one receiver does not roll back the rest
			d.logger.Warn("could not deliver relay", "socketId", receiver.Id, "error", err)
		}
	}
}

func (d *Dispatcher) handlePluginSet(conn *conns.Connection, env *types.RequestEnvelope) {
	body := types.PluginSetBody{}
	if err := decodeBody(env, &body); err != nil {
		d.sendError(conn, env, types.ErrCodeBadRequest)
		return
	}
	resolved, err := d.rooms.SetPluginSlot(body.RoomId, body.Plugin, conn.Id, body.IframeId)
	if err != nil {
		d.sendError(conn, env, pluginSetErrorCode(err))
		return
	}
	d.send(conn, &types.PluginSetResponseMessage{
		Type:        types.ResponsePluginSet,
		AwaitId:     env.AwaitId,
		RequestType: env.Type,
		RoomId:      body.RoomId,
		IframeId:    body.IframeId,
		Plugin:      resolved,
	})
	d.PublishRoomEvent(body.RoomId, types.RoomEventPluginSet, map[string]interface{}{
		"iframeId": body.IframeId,
		"plugin":   resolved,
	})
}

func pluginSetErrorCode(err error) string {
	switch {
	case errors.Is(err, rooms.ErrPluginNotFound):
		return types.ErrCodePluginNotFound
	case errors.Is(err, rooms.ErrPermissionDenied):
		return types.ErrCodePermissionDenied
	default:
		return types.ErrCodeRoomNotFound
	}
}
