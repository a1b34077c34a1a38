// Package api exposes the viewer controller and session history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/user/cae/internal/db"
	"github.com/user/cae/internal/platform"
	"github.com/user/cae/internal/registry"
	"github.com/user/cae/internal/viewer"
)

type controller interface {
	Status() viewer.Status
	RunCGX(mode, params string) error
	OpenFile(path string) error
	Post(cmd string) bool
	SendHotkey(keys ...string) bool
	Align() int
	Kill() error
	Windows() ([]platform.Window, error)
	SetWindow(slot string, id platform.WindowID) error
	LocateWindow(slot, title string) (platform.WindowID, error)
	OpenHelp(url string) bool
}

type history interface {
	Session(ctx context.Context, id string) (*db.Session, error)
	Sessions(ctx context.Context, limit int) ([]*db.Session, error)
	Commands(ctx context.Context, sessionID string, limit int) ([]*db.SessionCommand, error)
}

type profiles interface {
	Get(id string) *registry.ViewerProfile
	List() []*registry.ViewerProfile
	Save(p *registry.ViewerProfile) error
	Delete(id string) error
}

type handler struct {
	ctrl     controller
	history  history
	profiles profiles
}

func NewRouter(ctrl controller, hist history, profs profiles, token string) http.Handler {
	handler := &handler{
		ctrl:     ctrl,
		history:  hist,
		profiles: profs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", handler.getStatus)
	mux.HandleFunc("POST /api/viewer/run", handler.runViewer)
	mux.HandleFunc("POST /api/viewer/open", handler.openFile)
	mux.HandleFunc("POST /api/viewer/post", handler.postCommand)
	mux.HandleFunc("POST /api/viewer/hotkey", handler.sendHotkey)
	mux.HandleFunc("POST /api/viewer/align", handler.align)
	mux.HandleFunc("POST /api/viewer/kill", handler.kill)

	mux.HandleFunc("GET /api/windows", handler.listWindows)
	mux.HandleFunc("PUT /api/windows/{slot}", handler.setWindow)
	mux.HandleFunc("POST /api/help", handler.openHelp)

	mux.HandleFunc("GET /api/sessions", handler.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", handler.getSession)
	mux.HandleFunc("GET /api/sessions/{id}/commands", handler.listCommands)

	mux.HandleFunc("GET /api/viewers", handler.listViewers)
	mux.HandleFunc("GET /api/viewers/{id}", handler.getViewer)
	mux.HandleFunc("PUT /api/viewers/{id}", handler.putViewer)
	mux.HandleFunc("DELETE /api/viewers/{id}", handler.deleteViewer)

	wrapped := authMiddleware(token)(jsonMiddleware(corsMiddleware(mux)))
	return wrapped
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				if strings.TrimSpace(authHeader[7:]) == token {
					next.ServeHTTP(w, r)
					return
				}
			}

			if r.URL.Query().Get("token") == token {
				next.ServeHTTP(w, r)
				return
			}

			jsonError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if data == nil || status == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}
