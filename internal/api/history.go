package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/user/cae/internal/db"
	"github.com/user/cae/internal/registry"
)

const defaultListLimit = 50

func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	sessions, err := h.history.Sessions(r.Context(), limit)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*db.Session{}
	}
	jsonResponse(w, http.StatusOK, sessions)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.history.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if session == nil {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	jsonResponse(w, http.StatusOK, session)
}

func (h *handler) listCommands(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	id := r.PathValue("id")
	session, err := h.history.Session(r.Context(), id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if session == nil {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	commands, err := h.history.Commands(r.Context(), id, limit)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if commands == nil {
		commands = []*db.SessionCommand{}
	}
	jsonResponse(w, http.StatusOK, commands)
}

func (h *handler) listViewers(w http.ResponseWriter, r *http.Request) {
	list := h.profiles.List()
	if list == nil {
		list = []*registry.ViewerProfile{}
	}
	jsonResponse(w, http.StatusOK, list)
}

func (h *handler) getViewer(w http.ResponseWriter, r *http.Request) {
	p := h.profiles.Get(r.PathValue("id"))
	if p == nil {
		jsonError(w, http.StatusNotFound, "viewer not found")
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// putViewer creates or replaces a profile. The id in the path wins over an
// empty body id; a different body id is rejected.
func (h *handler) putViewer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var p registry.ViewerProfile
	if err := decodeJSON(r, &p); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.ID == "" {
		p.ID = id
	}
	if p.ID != id {
		jsonError(w, http.StatusBadRequest, "id in body does not match path")
		return
	}
	if err := h.profiles.Save(&p); err != nil {
		if errors.Is(err, registry.ErrInvalidProfile) {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, h.profiles.Get(id))
}

func (h *handler) deleteViewer(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.Delete(r.PathValue("id")); err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidProfile):
			jsonError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, os.ErrNotExist):
			jsonError(w, http.StatusNotFound, "viewer not found")
		default:
			jsonError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}
