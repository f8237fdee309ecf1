package rooms

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quackamole-dev/quackamole-relay/catalog"
	"github.com/quackamole-dev/quackamole-relay/globals"
	"github.com/quackamole-dev/quackamole-relay/types"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrAlreadyJoined    = errors.New("already joined")
	ErrRoomFull         = errors.New("room full")
	ErrPluginNotFound   = errors.New("plugin not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// Registry owns the room records, their membership lists and their plugin
// slots. Rooms are created explicitly and normally live until the process
// exits; the optional Sweep removes rooms that stayed empty past a TTL.
//
// All lookups hand out snapshots, never the live records, so callers can
// serialize them without racing concurrent joins.
type Registry struct {
	mu              sync.RWMutex
	rooms           map[string]*types.Room
	adminIdToRoomId map[string]string
	emptySince      map[string]time.Time

	cat             *catalog.Catalog
	defaultMaxUsers int
	requireAdmin    bool
}

func NewRegistry(cat *catalog.Catalog, defaultMaxUsers int, requireAdminForPlugins bool) *Registry {
	if defaultMaxUsers <= 0 {
		defaultMaxUsers = types.DefaultMaxUsers
	}
	return &Registry{
		rooms:           make(map[string]*types.Room),
		adminIdToRoomId: make(map[string]string),
		emptySince:      make(map[string]time.Time),
		cat:             cat,
		defaultMaxUsers: defaultMaxUsers,
		requireAdmin:    requireAdminForPlugins,
	}
}

// Create allocates a room from a partial spec. An empty name falls back to
// the placeholder, a non-positive capacity falls back to the default. The
// adminId is indexed so presenting it later resolves to the room with admin
// intent.
func (r *Registry) Create(name string, maxUsers int) *types.Room {
	if name == "" {
		name = types.DefaultRoomName
	}
	if maxUsers <= 0 {
		maxUsers = r.defaultMaxUsers
	}
	room := &types.Room{
		Id:          uuid.NewString(),
		AdminId:     uuid.NewString(),
		Name:        name,
		MaxUsers:    maxUsers,
		JoinedUsers: make([]string, 0),
		AdminUsers:  make([]string, 0),
		PluginSlots: make(map[string]*types.Plugin),
		CreatedAt:   time.Now(),
	}
	r.mu.Lock()
	r.rooms[room.Id] = room
	r.adminIdToRoomId[room.AdminId] = room.Id
	r.emptySince[room.Id] = room.CreatedAt
	r.mu.Unlock()
	globals.AppLogger.Info("room created", "roomId", room.Id, "name", room.Name)
	return snapshot(room)
}

// Resolve treats the given id as an adminId first and as a plain roomId
// otherwise. asAdmin reports which path matched.
func (r *Registry) Resolve(idOrAdminId string) (*types.Room, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, asAdmin := r.resolveLocked(idOrAdminId)
	if room == nil {
		return nil, false, ErrRoomNotFound
	}
	return snapshot(room), asAdmin, nil
}

func (r *Registry) resolveLocked(idOrAdminId string) (*types.Room, bool) {
	if roomId, ok := r.adminIdToRoomId[idOrAdminId]; ok {
		return r.rooms[roomId], true
	}
	return r.rooms[idOrAdminId], false
}

// List returns every room. Admin ids are included; exposing them through the
// listing is an accepted property of the current design.
func (r *Registry) List() []*types.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*types.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		all = append(all, snapshot(room))
	}
	return all
}

// Update merges the provided fields into an existing room. Empty name and
// non-positive capacity mean "leave unchanged".
func (r *Registry) Update(roomId, name string, maxUsers int) (*types.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, _ := r.resolveLocked(roomId)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if name != "" {
		room.Name = name
	}
	if maxUsers > 0 {
		room.MaxUsers = maxUsers
	}
	return snapshot(room), nil
}

// Join adds memberId to the room behind idOrAdminId. The checks run in a
// fixed order so an already-joined member is never told the room is full:
// not-found, already-joined, full. Joining via the adminId additionally
// records the member as an admin.
func (r *Registry) Join(memberId, idOrAdminId string) (*types.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, asAdmin := r.resolveLocked(idOrAdminId)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if contains(room.JoinedUsers, memberId) {
		return nil, ErrAlreadyJoined
	}
	if len(room.JoinedUsers) >= room.MaxUsers {
		return nil, ErrRoomFull
	}
	room.JoinedUsers = append(room.JoinedUsers, memberId)
	if asAdmin && !contains(room.AdminUsers, memberId) {
		room.AdminUsers = append(room.AdminUsers, memberId)
	}
	delete(r.emptySince, room.Id)
	return snapshot(room), nil
}

// Leave removes memberId from each given room. Rooms the member never joined
// are skipped silently. Admin status is intentionally not revoked; a departed
// admin regains nothing until rejoining because every membership check goes
// through JoinedUsers.
func (r *Registry) Leave(memberId string, roomIds []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, roomId := range roomIds {
		room := r.rooms[roomId]
		if room == nil {
			continue
		}
		for i, id := range room.JoinedUsers {
			if id == memberId {
				room.JoinedUsers = append(room.JoinedUsers[:i], room.JoinedUsers[i+1:]...)
				break
			}
		}
		if len(room.JoinedUsers) == 0 {
			r.emptySince[room.Id] = time.Now()
		}
	}
}

// IsAdminUser reports whether userId joined the room via its adminId.
func (r *Registry) IsAdminUser(roomId, userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, _ := r.resolveLocked(roomId)
	if room == nil {
		return false
	}
	return contains(room.AdminUsers, userId)
}

// SetPluginSlot resolves the plugin reference against the catalog and stores
// the result (or nil, clearing the slot) under the iframe id. A failed
// resolution leaves the slot untouched.
func (r *Registry) SetPluginSlot(roomId string, plugin *types.Plugin, userId, iframeId string) (*types.Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, _ := r.resolveLocked(roomId)
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if r.requireAdmin && !contains(room.AdminUsers, userId) {
		return nil, ErrPermissionDenied
	}
	var resolved *types.Plugin
	if plugin != nil {
		p, ok := r.cat.GetById(plugin.Id)
		if !ok {
			return nil, ErrPluginNotFound
		}
		resolved = p
	}
	room.PluginSlots[iframeId] = resolved
	return resolved, nil
}

// Sweep removes rooms that have been empty for longer than ttl and returns
// their ids. Wired to a cron entry when room expiry is enabled.
func (r *Registry) Sweep(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for roomId, since := range r.emptySince {
		if since.After(cutoff) {
			continue
		}
		room := r.rooms[roomId]
		if room == nil || len(room.JoinedUsers) > 0 {
			delete(r.emptySince, roomId)
			continue
		}
		delete(r.rooms, roomId)
		delete(r.adminIdToRoomId, room.AdminId)
		delete(r.emptySince, roomId)
		removed = append(removed, roomId)
	}
	if len(removed) > 0 {
		globals.AppLogger.Info("swept empty rooms", "count", len(removed))
	}
	return removed
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func snapshot(room *types.Room) *types.Room {
	cp := *room
	cp.JoinedUsers = append([]string(nil), room.JoinedUsers...)
	cp.AdminUsers = append([]string(nil), room.AdminUsers...)
	cp.PluginSlots = make(map[string]*types.Plugin, len(room.PluginSlots))
	for k, v := range room.PluginSlots {
		cp.PluginSlots[k] = v
	}
	return &cp
}
