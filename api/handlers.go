package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/quackamole-dev/quackamole-relay/globals"
	"github.com/quackamole-dev/quackamole-relay/types"
)

type roomSpec struct {
	Name     string `json:"name"`
	MaxUsers int    `json:"maxUsers"`
}

func (s *Server) handleRoomList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rooms.List())
}

func (s *Server) handleRoomCreate(w http.ResponseWriter, r *http.Request) {
	spec := roomSpec{}
	// an empty body is a valid "all defaults" spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil && err != io.EOF {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	room := s.rooms.Create(spec.Name, spec.MaxUsers)
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) handleRoomRetrieve(w http.ResponseWriter, r *http.Request) {
	room, _, err := s.rooms.Resolve(mux.Vars(r)["id"])
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if writeETag(w, r, room) {
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleRoomUpdate(w http.ResponseWriter, r *http.Request) {
	spec := roomSpec{}
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil && err != io.EOF {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	room, err := s.rooms.Update(mux.Vars(r)["id"], spec.Name, spec.MaxUsers)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.events.PublishRoomEvent(room.Id, types.RoomEventAdminSettingsChanged, map[string]interface{}{"room": room})
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handlePluginList(w http.ResponseWriter, r *http.Request) {
	plugins := s.cat.GetAll()
	if writeETag(w, r, plugins) {
		return
	}
	writeJSON(w, http.StatusOK, plugins)
}

// writeETag stamps a hash-based ETag and reports whether the request was
// answered with 304.
func writeETag(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	hash, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
	if err != nil {
		return false
	}
	etag := fmt.Sprintf(`"%x"`, hash)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		globals.AppLogger.Error("could not marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
