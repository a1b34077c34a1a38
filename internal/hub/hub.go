// Package hub streams the log pane and viewer status to websocket clients
// and accepts viewer commands from them.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const defaultBatchInterval = 100 * time.Millisecond

// Commands is the subset of the viewer controller reachable from clients.
type Commands interface {
	Post(command string) bool
	SendHotkey(keys ...string) bool
	Align() int
}

type Hub struct {
	clients      map[string]*Client
	register     chan *clientRegistration
	unregister   chan *Client
	broadcast    chan []byte
	commands     Commands
	token        string
	logger       *slog.Logger
	mu           sync.RWMutex
	status       []byte
	statusMu     sync.RWMutex
	rateLimiter  *RateLimiter
	batchEnabled atomic.Bool
	ctxWrap      *ctxWrapper
	running      atomic.Bool
}

type ctxWrapper struct {
	ctx context.Context
}

type clientRegistration struct {
	client        *Client
	initialStatus []byte
}

// New creates a hub. logger must not write back into the hub; pass the base
// logger, not one built on LogHandler.
func New(token string, commands Commands, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *clientRegistration, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
		commands:   commands,
		token:      token,
		logger:     logger,
		ctxWrap:    &ctxWrapper{ctx: context.Background()},
	}
	h.batchEnabled.Store(true)
	h.rateLimiter = NewRateLimiter(defaultBatchInterval, func(_ string, msg LogMessage) {
		h.sendJSON(msg)
	})
	return h
}

// SetCommands installs the command target after construction.
func (h *Hub) SetCommands(c Commands) {
	h.mu.Lock()
	h.commands = c
	h.mu.Unlock()
}

func (h *Hub) getCommands() Commands {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.commands
}

func (h *Hub) getContext() context.Context {
	if h.ctxWrap != nil {
		return h.ctxWrap.ctx
	}
	return context.Background()
}

func (h *Hub) Run(ctx context.Context) {
	h.ctxWrap = &ctxWrapper{ctx: ctx}
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			h.rateLimiter.FlushAll()
			// Pumps stop on ctx. send stays open: a readPump may still be
			// answering a command that was waiting on the controller.
			h.mu.Lock()
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return

		case reg := <-h.register:
			h.mu.Lock()
			h.clients[reg.client.id] = reg.client
			h.mu.Unlock()
			if reg.initialStatus != nil {
				select {
				case reg.client.send <- reg.initialStatus:
				default:
				}
			}
			go reg.client.writePump(h.getContext())
			go reg.client.readPump(h.getContext())
			h.logger.Debug("client connected", "client", reg.client.id, "total", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "client", client.id, "total", h.ClientCount())

		case data := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("client send buffer full, dropping message", "client", c.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || token != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	client := newClient(conn, h)

	h.statusMu.RLock()
	initial := h.status
	h.statusMu.RUnlock()

	select {
	case h.register <- &clientRegistration{client: client, initialStatus: initial}:
	default:
		h.logger.Warn("hub not accepting connections")
		conn.Close(websocket.StatusTryAgainLater, "server busy")
		return
	}
}

// BroadcastLog queues a log line for every client. Lines are coalesced per
// origin and level while batching is enabled.
func (h *Hub) BroadcastLog(msg LogMessage) {
	msg.Type = "log"
	if h.batchEnabled.Load() && h.rateLimiter != nil {
		h.rateLimiter.Add(msg)
	} else {
		h.sendJSON(msg)
	}
}

// BroadcastStatus sends status to every client and keeps it as the greeting
// for clients that connect later.
func (h *Hub) BroadcastStatus(status any) {
	data, err := json.Marshal(StatusMessage{Type: "status", Status: status})
	if err != nil {
		h.logger.Warn("failed to marshal status message", "error", err)
		return
	}
	h.statusMu.Lock()
	h.status = data
	h.statusMu.Unlock()
	h.enqueue(data)
}

func (h *Hub) sendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to marshal message", "error", err)
		return
	}
	h.enqueue(data)
}

func (h *Hub) enqueue(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

func (h *Hub) SendError(client *Client, message string) {
	h.sendTo(client, ErrorMessage{Type: "error", Message: message})
}

func (h *Hub) sendTo(client *Client, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to marshal message", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) setBatchEnabled(enabled bool) {
	h.batchEnabled.Store(enabled)
}

// handleCommand runs a client command against the controller and answers
// the sender with the outcome.
func (h *Hub) handleCommand(c *Client, msg ClientMessage) {
	cmds := h.getCommands()
	if cmds == nil {
		h.SendError(c, "viewer not available")
		return
	}
	switch msg.Type {
	case "post":
		h.sendTo(c, ResultMessage{Type: "result", Op: "post", OK: cmds.Post(msg.Command)})
	case "hotkey":
		if len(msg.Keys) == 0 {
			h.SendError(c, "hotkey needs keys")
			return
		}
		h.sendTo(c, ResultMessage{Type: "result", Op: "hotkey", OK: cmds.SendHotkey(msg.Keys...)})
	case "align":
		n := cmds.Align()
		h.sendTo(c, ResultMessage{Type: "result", Op: "align", OK: n > 0, Aligned: n})
	default:
		h.SendError(c, "unknown message type: "+msg.Type)
	}
}

func (h *Hub) isRunning() bool {
	return h.running.Load()
}

func (h *Hub) unregisterClient(c *Client) {
	if !h.isRunning() {
		c.conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	select {
	case h.unregister <- c:
	default:
		h.logger.Warn("unregister channel full, forcing close", "client", c.id)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
}
