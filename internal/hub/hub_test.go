package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/cae/internal/testutil"
)

type fakeCommands struct {
	mu      sync.Mutex
	posted  []string
	hotkeys [][]string
	aligned int
}

func (f *fakeCommands) Post(command string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, command)
	return true
}

func (f *fakeCommands) SendHotkey(keys ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hotkeys = append(f.hotkeys, keys)
	return keys[0] != "bogus"
}

func (f *fakeCommands) Align() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aligned++
	return 3
}

type slowCommands struct {
	fakeCommands
	delay time.Duration
	done  chan struct{}
}

func (s *slowCommands) Align() int {
	time.Sleep(s.delay)
	defer close(s.done)
	return s.fakeCommands.Align()
}

func startHub(t *testing.T, token string, cmds Commands) (*Hub, string) {
	t.Helper()
	logger, _ := testutil.NewLogger(t)
	hub := New(token, cmds, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)
	return hub, fmt.Sprintf("ws://%s/ws", server.URL[7:])
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	dialCancel()
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	_, data, err := conn.Read(readCtx)
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", data, err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	writeCtx, writeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer writeCancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
}

func TestTokenAuthentication(t *testing.T) {
	validToken := "secret-token-123"

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"valid token", validToken, http.StatusSwitchingProtocols},
		{"invalid token", "wrong-token", http.StatusUnauthorized},
		{"missing token", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, url := startHub(t, validToken, nil)
			if tt.token != "" {
				url = fmt.Sprintf("%s?token=%s", url, tt.token)
			}

			dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
			conn, resp, err := websocket.Dial(dialCtx, url, nil)
			dialCancel()

			if resp != nil && resp.StatusCode != tt.wantStatus {
				t.Errorf("status code mismatch: got %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusSwitchingProtocols && err != nil {
				t.Fatalf("expected successful connection, got error: %v", err)
			}
			if conn != nil {
				conn.Close(websocket.StatusNormalClosure, "")
			}
		})
	}
}

func TestClientLifecycle(t *testing.T) {
	hub, url := startHub(t, "tok", nil)

	conn := dial(t, url+"?token=tok")
	waitForClientCount(t, hub, 1, time.Second)

	conn.Close(websocket.StatusNormalClosure, "")
	waitForClientCount(t, hub, 0, time.Second)
}

func TestStatusGreetsLateClients(t *testing.T) {
	hub, url := startHub(t, "tok", nil)
	hub.BroadcastStatus(map[string]string{"state": "ready"})

	conn := dial(t, url+"?token=tok")

	var msg struct {
		Type   string            `json:"type"`
		Status map[string]string `json:"status"`
	}
	readJSON(t, conn, &msg)
	if msg.Type != "status" || msg.Status["state"] != "ready" {
		t.Fatalf("greeting = %+v, want ready status", msg)
	}
}

func TestBroadcastLogFanOut(t *testing.T) {
	hub, url := startHub(t, "tok", nil)

	var clients []*websocket.Conn
	for i := 0; i < 2; i++ {
		clients = append(clients, dial(t, url+"?token=tok"))
	}
	waitForClientCount(t, hub, 2, time.Second)

	hub.setBatchEnabled(false)
	hub.BroadcastLog(LogMessage{Level: "info", Origin: "cgx", Text: "reading job.frd", Ts: time.Now().UnixMilli()})

	for i, conn := range clients {
		var msg LogMessage
		readJSON(t, conn, &msg)
		if msg.Type != "log" || msg.Origin != "cgx" || msg.Text != "reading job.frd" {
			t.Errorf("client %d received %+v", i, msg)
		}
	}
}

func TestBroadcastLogBatchesPerOrigin(t *testing.T) {
	hub, url := startHub(t, "tok", nil)
	conn := dial(t, url+"?token=tok")
	waitForClientCount(t, hub, 1, time.Second)

	for i := 0; i < 5; i++ {
		hub.BroadcastLog(LogMessage{Level: "info", Origin: "cgx", Text: fmt.Sprintf("line%d", i)})
	}

	var msg LogMessage
	readJSON(t, conn, &msg)
	if got := strings.Split(msg.Text, "\n"); len(got) != 5 || got[0] != "line0" || got[4] != "line4" {
		t.Fatalf("batched text = %q, want five lines in order", msg.Text)
	}
}

func TestRateLimiterDirect(t *testing.T) {
	var mu sync.Mutex
	var received []LogMessage
	rl := NewRateLimiter(time.Hour, func(_ string, msg LogMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	rl.Add(LogMessage{Level: "info", Origin: "cgx", Text: "a", Ts: 1})
	rl.Add(LogMessage{Level: "info", Origin: "cgx", Text: "b", Ts: 3})
	rl.Add(LogMessage{Level: "error", Origin: "cgx", Text: "boom", Ts: 2})
	rl.Add(LogMessage{Level: "info", Origin: "cae", Text: "c", Ts: 2})
	rl.FlushAll()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Fatalf("flushed %d messages, want 3", len(received))
	}
	for _, msg := range received {
		if msg.Origin == "cgx" && msg.Level == "info" {
			if msg.Text != "a\nb" || msg.Ts != 3 {
				t.Fatalf("cgx info batch = %+v", msg)
			}
		}
	}
}

func TestClientCommands(t *testing.T) {
	cmds := &fakeCommands{}
	hub, url := startHub(t, "tok", cmds)
	conn := dial(t, url+"?token=tok")
	waitForClientCount(t, hub, 1, time.Second)

	var res ResultMessage

	writeJSON(t, conn, ClientMessage{Type: "post", Command: "plot fv all"})
	readJSON(t, conn, &res)
	if res.Op != "post" || !res.OK {
		t.Fatalf("post result = %+v", res)
	}

	writeJSON(t, conn, ClientMessage{Type: "hotkey", Keys: []string{"Control_L", "s"}})
	readJSON(t, conn, &res)
	if res.Op != "hotkey" || !res.OK {
		t.Fatalf("hotkey result = %+v", res)
	}

	writeJSON(t, conn, ClientMessage{Type: "align"})
	readJSON(t, conn, &res)
	if res.Op != "align" || !res.OK || res.Aligned != 3 {
		t.Fatalf("align result = %+v", res)
	}

	cmds.mu.Lock()
	defer cmds.mu.Unlock()
	if len(cmds.posted) != 1 || cmds.posted[0] != "plot fv all" {
		t.Fatalf("posted = %v", cmds.posted)
	}
	if len(cmds.hotkeys) != 1 || strings.Join(cmds.hotkeys[0], "+") != "Control_L+s" {
		t.Fatalf("hotkeys = %v", cmds.hotkeys)
	}
}

func TestShutdownWhileCommandInFlight(t *testing.T) {
	logger, _ := testutil.NewLogger(t)
	cmds := &slowCommands{delay: 300 * time.Millisecond, done: make(chan struct{})}
	hub := New("tok", cmds, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(runDone)
	}()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()
	conn := dial(t, fmt.Sprintf("ws://%s/ws?token=tok", server.URL[7:]))
	waitForClientCount(t, hub, 1, time.Second)

	writeJSON(t, conn, ClientMessage{Type: "align"})
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	select {
	case <-cmds.done:
	case <-time.After(2 * time.Second):
		t.Fatal("align command never finished")
	}
	// Give the reader time to answer the finished command.
	time.Sleep(100 * time.Millisecond)
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("ClientCount() after shutdown = %d, want 0", n)
	}
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name string
		send any
		cmds Commands
		want string
	}{
		{"unknown type", ClientMessage{Type: "resize"}, &fakeCommands{}, "unknown message type: resize"},
		{"hotkey without keys", ClientMessage{Type: "hotkey"}, &fakeCommands{}, "hotkey needs keys"},
		{"no controller", ClientMessage{Type: "align"}, nil, "viewer not available"},
		{"bad json", "not an object", &fakeCommands{}, "invalid message format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, url := startHub(t, "tok", tt.cmds)
			conn := dial(t, url+"?token=tok")
			waitForClientCount(t, hub, 1, time.Second)

			writeJSON(t, conn, tt.send)
			var msg ErrorMessage
			readJSON(t, conn, &msg)
			if msg.Type != "error" || msg.Message != tt.want {
				t.Fatalf("error = %+v, want %q", msg, tt.want)
			}
		})
	}
}

func TestLogHandlerTee(t *testing.T) {
	hub, url := startHub(t, "tok", nil)
	hub.setBatchEnabled(false)
	conn := dial(t, url+"?token=tok")
	waitForClientCount(t, hub, 1, time.Second)

	_, base := testutil.NewLogger(t)
	logger := slog.New(NewLogHandler(base, hub)).With("session", "s1")

	logger.Info("FOO.FRD", "origin", "cgx")
	logger.Warn("Failed to map Key", "key", "€")

	var first, second LogMessage
	readJSON(t, conn, &first)
	readJSON(t, conn, &second)

	if first.Origin != "cgx" || first.Level != "info" || first.Text != "FOO.FRD session=s1" {
		t.Fatalf("first = %+v", first)
	}
	if second.Origin != DefaultOrigin || second.Level != "warn" || second.Text != "Failed to map Key session=s1 key=€" {
		t.Fatalf("second = %+v", second)
	}
	if n := base.Count(slog.LevelWarn, "Failed to map Key"); n != 1 {
		t.Fatalf("base handler warnings = %d, want 1", n)
	}
}

func waitForClientCount(t *testing.T, hub *Hub, expected int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == expected {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != expected {
		t.Errorf("expected %d clients, got %d", expected, hub.ClientCount())
	}
}
