package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/quackamole-dev/quackamole-relay/catalog"
	"github.com/quackamole-dev/quackamole-relay/config"
	"github.com/quackamole-dev/quackamole-relay/directory"
	"github.com/quackamole-dev/quackamole-relay/rooms"
	"github.com/quackamole-dev/quackamole-relay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	roomId string
	kind   string
}

type fakeEvents struct {
	events []recordedEvent
}

func (f *fakeEvents) PublishRoomEvent(roomId, kind string, data interface{}) {
	f.events = append(f.events, recordedEvent{roomId: roomId, kind: kind})
}

type testServer struct {
	router *mux.Router
	reg    *rooms.Registry
	dir    *directory.Directory
	events *fakeEvents
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	dir, err := directory.NewDirectory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	if cfg == nil {
		cfg = &config.Config{}
	}
	cat := catalog.NewCatalog(cfg.Plugins)
	reg := rooms.NewRegistry(cat, cfg.DefaultMaxUsers, cfg.RequireAdminForPlugins)
	events := &fakeEvents{}
	router := mux.NewRouter()
	NewServer(reg, cat, dir, events, cfg).Routes(router)
	return &testServer{router: router, reg: reg, dir: dir, events: events}
}

func (ts *testServer) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestRoomCreateDefaults(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/rooms", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	room := types.Room{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.NotEmpty(t, room.Id)
	assert.NotEmpty(t, room.AdminId)
	assert.Equal(t, types.DefaultRoomName, room.Name)
	assert.Equal(t, types.DefaultMaxUsers, room.MaxUsers)
	assert.Empty(t, room.JoinedUsers)
}

func TestRoomCreateWithSpec(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/rooms", `{"name":"lobby","maxUsers":12}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	room := types.Room{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))
	assert.Equal(t, "lobby", room.Name)
	assert.Equal(t, 12, room.MaxUsers)
}

func TestRoomList(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.reg.Create("one", 0)
	ts.reg.Create("two", 0)

	rec := ts.do(http.MethodGet, "/api/rooms", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rooms []*types.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
	assert.Len(t, rooms, 2)
}

func TestRoomRetrieve(t *testing.T) {
	ts := newTestServer(t, nil)
	room := ts.reg.Create("lobby", 0)

	rec := ts.do(http.MethodGet, "/api/rooms/"+room.Id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	// the adminId resolves to the same room
	rec = ts.do(http.MethodGet, "/api/rooms/"+room.AdminId, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// an unchanged room revalidates
	rec = ts.do(http.MethodGet, "/api/rooms/"+room.Id, "", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = ts.do(http.MethodGet, "/api/rooms/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoomUpdate(t *testing.T) {
	ts := newTestServer(t, nil)
	room := ts.reg.Create("lobby", 0)

	rec := ts.do(http.MethodPatch, "/api/rooms/"+room.Id, `{"maxUsers":8}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := types.Room{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 8, updated.MaxUsers)
	assert.Equal(t, "lobby", updated.Name)

	require.Len(t, ts.events.events, 1)
	assert.Equal(t, recordedEvent{roomId: room.Id, kind: types.RoomEventAdminSettingsChanged}, ts.events.events[0])

	rec = ts.do(http.MethodPatch, "/api/rooms/ghost", `{"maxUsers":8}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, ts.events.events, 1)
}

func TestPluginList(t *testing.T) {
	ts := newTestServer(t, &config.Config{
		Plugins: []config.PluginEntry{{Id: "custom", Name: "Custom", Url: "https://example.com/custom"}},
	})

	rec := ts.do(http.MethodGet, "/api/plugins", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("ETag"))

	var plugins []*types.Plugin
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plugins))
	ids := make([]string, 0, len(plugins))
	for _, p := range plugins {
		ids = append(ids, p.Id)
	}
	assert.Contains(t, ids, "paint")
	assert.Contains(t, ids, "custom")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, &config.Config{RequireHTTPAuth: true})
	_, secret, errs := ts.dir.Register("quacker")
	require.Empty(t, errs)

	rec := ts.do(http.MethodGet, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/rooms", "", http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/rooms", "", http.Header{"Authorization": {"Bearer " + secret}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownPath(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodOptions, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
