package conns

import (
	"sync"

	"github.com/google/uuid"
	"github.com/quackamole-dev/quackamole-relay/types"
)

// Sender is the write half of a live duplex channel. The websocket client
// implements it; tests substitute fakes.
type Sender interface {
	Send(data []byte) error
}

// Connection is the registry's record of one live channel. Rooms mirrors the
// pub/sub subscription state and is authoritative alongside it for relay
// qualification. All fields are guarded by the owning registry's lock.
type Connection struct {
	Id     string
	Rooms  []string
	User   *types.User
	Secret string
	Sender Sender
}

// Registry tracks the set of open connections indexed by connection id. After
// a successful login a record is re-indexed under the user's id, which from
// then on doubles as the connection id on the wire.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Open allocates a fresh record for a newly accepted channel.
func (r *Registry) Open(sender Sender) *Connection {
	conn := &Connection{
		Id:     uuid.NewString(),
		Rooms:  make([]string, 0),
		Sender: sender,
	}
	r.mu.Lock()
	r.conns[conn.Id] = conn
	r.mu.Unlock()
	return conn
}

// Close removes the record and returns it so the caller can emit leave events
// for the rooms it had joined. Closing an unknown id returns nil.
func (r *Registry) Close(connId string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connId]
	if !ok {
		return nil
	}
	delete(r.conns, connId)
	return conn
}

// BindUser associates a user identity (and the secret issued for it) with a
// live connection, replacing any prior binding. The record keeps its current
// id; only RebindAsUser changes the index.
func (r *Registry) BindUser(connId string, user *types.User, secret string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connId]
	if !ok {
		return false
	}
	conn.User = user
	conn.Secret = secret
	return true
}

// RebindAsUser re-indexes a connection under its bound user's id, which from
// then on is the id receivers address it by. Login is the only caller. Rooms
// joined before login keep the old id in their member lists, that id is
// unreachable from then on and still counts against the room's capacity.
func (r *Registry) RebindAsUser(connId string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connId]
	if !ok || conn.User == nil {
		return "", false
	}
	delete(r.conns, conn.Id)
	conn.Id = conn.User.Id
	r.conns[conn.Id] = conn
	return conn.Id, true
}

// SetUser replaces the bound identity in place, keeping secret and index.
func (r *Registry) SetUser(connId string, user *types.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[connId]; ok {
		conn.User = user
	}
}

// Lookup returns a snapshot of the record, not the live one: callers read the
// result outside the lock while the owning connection's goroutine may rebind
// the identity underneath. User records are never mutated in place, so the
// copied pointer stays valid.
func (r *Registry) Lookup(connId string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connId]
	if !ok {
		return nil, false
	}
	cp := *conn
	cp.Rooms = append([]string(nil), conn.Rooms...)
	return &cp, true
}

// AddRoom records a topic subscription on the connection.
func (r *Registry) AddRoom(connId, roomId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connId]
	if !ok {
		return
	}
	for _, id := range conn.Rooms {
		if id == roomId {
			return
		}
	}
	conn.Rooms = append(conn.Rooms, roomId)
}

// Subscribed reports whether the connection exists and has joined the room.
func (r *Registry) Subscribed(connId, roomId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connId]
	if !ok {
		return false
	}
	for _, id := range conn.Rooms {
		if id == roomId {
			return true
		}
	}
	return false
}

// Rooms returns a copy of the connection's subscriptions.
func (r *Registry) Rooms(connId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connId]
	if !ok {
		return nil
	}
	return append([]string(nil), conn.Rooms...)
}

// BoundUser returns the identity bound to the connection, nil before login.
func (r *Registry) BoundUser(connId string) *types.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connId]
	if !ok {
		return nil
	}
	return conn.User
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
