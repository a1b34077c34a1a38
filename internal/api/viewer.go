package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/user/cae/internal/platform"
	"github.com/user/cae/internal/process"
	"github.com/user/cae/internal/viewer"
)

type runRequest struct {
	Mode   string `json:"mode"`
	Params string `json:"params"`
}

type openRequest struct {
	Path string `json:"path"`
}

type postRequest struct {
	Command string `json:"command"`
}

type hotkeyRequest struct {
	Keys []string `json:"keys"`
}

type windowRequest struct {
	ID    platform.WindowID `json:"id"`
	Title string            `json:"title"`
}

type helpRequest struct {
	URL string `json:"url"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type alignResponse struct {
	Aligned int `json:"aligned"`
}

type windowResponse struct {
	Slot string            `json:"slot"`
	ID   platform.WindowID `json:"id"`
}

func (h *handler) getStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.ctrl.Status())
}

func (h *handler) runViewer(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.ctrl.RunCGX(req.Mode, req.Params); err != nil {
		jsonError(w, launchErrorStatus(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, h.ctrl.Status())
}

func (h *handler) openFile(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		jsonError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := h.ctrl.OpenFile(req.Path); err != nil {
		jsonError(w, launchErrorStatus(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, h.ctrl.Status())
}

// launchErrorStatus maps launch failures to client or server errors.
func launchErrorStatus(err error) int {
	switch {
	case errors.Is(err, process.ErrExecutableNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, viewer.ErrUnknownViewer), errors.Is(err, viewer.ErrUnknownMode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) postCommand(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	jsonResponse(w, http.StatusOK, okResponse{OK: h.ctrl.Post(req.Command)})
}

func (h *handler) sendHotkey(w http.ResponseWriter, r *http.Request) {
	var req hotkeyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Keys) == 0 {
		jsonError(w, http.StatusBadRequest, "keys are required")
		return
	}
	jsonResponse(w, http.StatusOK, okResponse{OK: h.ctrl.SendHotkey(req.Keys...)})
}

func (h *handler) align(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, alignResponse{Aligned: h.ctrl.Align()})
}

func (h *handler) kill(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Kill(); err != nil {
		if errors.Is(err, viewer.ErrNoSession) {
			jsonError(w, http.StatusConflict, err.Error())
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) listWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.ctrl.Windows()
	if err != nil {
		if errors.Is(err, platform.ErrUnsupported) {
			jsonError(w, http.StatusNotImplemented, err.Error())
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if windows == nil {
		windows = []platform.Window{}
	}
	jsonResponse(w, http.StatusOK, windows)
}

func (h *handler) setWindow(w http.ResponseWriter, r *http.Request) {
	slot := r.PathValue("slot")
	var req windowRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id := req.ID
	var err error
	switch {
	case strings.TrimSpace(req.Title) != "":
		id, err = h.ctrl.LocateWindow(slot, req.Title)
	case req.ID.Valid():
		err = h.ctrl.SetWindow(slot, req.ID)
	default:
		jsonError(w, http.StatusBadRequest, "id or title is required")
		return
	}
	if err != nil {
		if errors.Is(err, viewer.ErrUnknownSlot) {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !id.Valid() {
		jsonError(w, http.StatusNotFound, "window not found")
		return
	}
	jsonResponse(w, http.StatusOK, windowResponse{Slot: slot, ID: id})
}

func (h *handler) openHelp(w http.ResponseWriter, r *http.Request) {
	var req helpRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		jsonError(w, http.StatusBadRequest, "url is required")
		return
	}
	jsonResponse(w, http.StatusOK, okResponse{OK: h.ctrl.OpenHelp(req.URL)})
}
