//go:build linux || freebsd || openbsd || netbsd || dragonfly

package platform

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"

	"github.com/user/cae/internal/keymap"
)

const x11MaxPropertyLength = (1 << 32) - 1

// x11 talks to an EWMH-compliant window manager over the X protocol.
// Key events are sent straight to the target window with SendEvent, so the
// viewer never has to take focus. Hotkeys go through XTEST because window
// managers only react to real (or faked) device input.
type x11 struct {
	mu     sync.Mutex
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	root   xproto.Window
	atoms  map[string]xproto.Atom
	codes  map[uint32]xproto.Keycode
	xtest  bool
	logger *slog.Logger
}

func newX11(logger *slog.Logger) (*x11, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connect to X server: %w", err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	b := &x11{
		conn:   conn,
		screen: screen,
		root:   screen.Root,
		atoms:  make(map[string]xproto.Atom),
		logger: logger,
	}
	if err := xtest.Init(conn); err != nil {
		logger.Warn("XTEST extension unavailable, hotkeys disabled", "error", err)
	} else {
		b.xtest = true
	}
	if err := b.loadKeyboardMapping(setup); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// loadKeyboardMapping builds the keysym -> keycode table once; the server's
// mapping is what makes a keysym land on the right physical key for the
// active layout.
func (b *x11) loadKeyboardMapping(setup *xproto.SetupInfo) error {
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(b.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return fmt.Errorf("read keyboard mapping: %w", err)
	}
	per := int(reply.KeysymsPerKeycode)
	codes := make(map[uint32]xproto.Keycode, int(count)*per)
	for i := 0; i < int(count); i++ {
		for j := 0; j < per; j++ {
			idx := i*per + j
			if idx >= len(reply.Keysyms) {
				break
			}
			sym := uint32(reply.Keysyms[idx])
			if sym == 0 {
				continue
			}
			if _, seen := codes[sym]; !seen {
				codes[sym] = setup.MinKeycode + xproto.Keycode(i)
			}
		}
	}
	b.codes = codes
	return nil
}

func (b *x11) Name() string          { return "x11" }
func (b *x11) Keymap() *keymap.Table { return keymap.X11() }
func (b *x11) TargetedInput() bool   { return true }

func (b *x11) ListWindows() ([]Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reply, err := b.property(b.root, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, err
	}
	ids := cardinals(reply)
	out := make([]Window, 0, len(ids))
	for _, id := range ids {
		win := xproto.Window(id)
		out = append(out, Window{ID: WindowID(id), PID: b.pid(win), Title: b.title(win)})
	}
	return out, nil
}

func (b *x11) ActiveWindow() (WindowID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	reply, err := b.property(b.root, "_NET_ACTIVE_WINDOW")
	if err != nil {
		return None, err
	}
	vals := cardinals(reply)
	if len(vals) == 0 {
		return None, nil
	}
	return WindowID(vals[0]), nil
}

func (b *x11) WorkArea() (Rect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	full := Rect{Width: int(b.screen.WidthInPixels), Height: int(b.screen.HeightInPixels)}
	reply, err := b.property(b.root, "_NET_WORKAREA")
	if err != nil {
		return full, nil
	}
	vals := cardinals(reply)
	if len(vals) < 4 || vals[2] == 0 || vals[3] == 0 {
		return full, nil
	}
	return Rect{X: int(int32(vals[0])), Y: int(int32(vals[1])), Width: int(vals[2]), Height: int(vals[3])}, nil
}

func (b *x11) SendKey(id WindowID, key keymap.Key, press bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	code, err := b.keycode(key)
	if err != nil {
		return err
	}
	var state uint16
	if key.Shift {
		state = xproto.ModMaskShift
	}
	ev := xproto.KeyPressEvent{
		Detail:     code,
		Time:       xproto.TimeCurrentTime,
		Root:       b.root,
		Event:      xproto.Window(id),
		Child:      xproto.WindowNone,
		State:      state,
		SameScreen: false,
	}
	payload := ev.Bytes()
	if !press {
		payload = xproto.KeyReleaseEvent(ev).Bytes()
	}
	xproto.SendEvent(b.conn, true, xproto.Window(id), xproto.EventMaskNoEvent, string(payload))
	return nil
}

func (b *x11) InjectKey(key keymap.Key, press bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.xtest {
		return fmt.Errorf("%w: XTEST extension missing", ErrUnsupported)
	}
	code, err := b.keycode(key)
	if err != nil {
		return err
	}
	var typ byte = xproto.KeyRelease
	if press {
		typ = xproto.KeyPress
	}
	if err := xtest.FakeInputChecked(b.conn, typ, byte(code), 0, b.root, 0, 0, 0).Check(); err != nil {
		return fmt.Errorf("fake key input: %w", err)
	}
	return nil
}

func (b *x11) Focus(id WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	win := xproto.Window(id)
	// Source indication 1: request from a normal application.
	if err := b.clientMessage(win, "_NET_ACTIVE_WINDOW", 1, xproto.TimeCurrentTime, 0); err != nil {
		return err
	}
	xproto.SetInputFocus(b.conn, xproto.InputFocusNone, win, xproto.TimeCurrentTime)
	return nil
}

func (b *x11) Restore(id WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	win := xproto.Window(id)
	if err := xproto.MapWindowChecked(b.conn, win).Check(); err != nil {
		return fmt.Errorf("map window %s: %w", id, err)
	}
	vert, err := b.atom("_NET_WM_STATE_MAXIMIZED_VERT")
	if err != nil {
		return err
	}
	horz, err := b.atom("_NET_WM_STATE_MAXIMIZED_HORZ")
	if err != nil {
		return err
	}
	// Action 0 removes both maximized states.
	return b.clientMessage(win, "_NET_WM_STATE", 0, uint32(vert), uint32(horz), 1)
}

func (b *x11) MoveResize(id WindowID, r Rect) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY | xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)
	vals := []uint32{uint32(r.X), uint32(r.Y), uint32(r.Width), uint32(r.Height)}
	if err := xproto.ConfigureWindowChecked(b.conn, xproto.Window(id), mask, vals).Check(); err != nil {
		return fmt.Errorf("configure window %s: %w", id, err)
	}
	return nil
}

// Flush does a round trip so every queued request has reached the server.
func (b *x11) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := xproto.GetInputFocus(b.conn).Reply(); err != nil {
		return fmt.Errorf("sync with X server: %w", err)
	}
	return nil
}

func (b *x11) Close() error {
	b.conn.Close()
	return nil
}

func (b *x11) keycode(key keymap.Key) (xproto.Keycode, error) {
	code, ok := b.codes[key.Code]
	if !ok {
		return 0, fmt.Errorf("%w: keysym 0x%x has no keycode in the current layout", keymap.ErrNotSupported, key.Code)
	}
	return code, nil
}

func (b *x11) atom(name string) (xproto.Atom, error) {
	if a, ok := b.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(b.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("intern atom %s: %w", name, err)
	}
	b.atoms[name] = reply.Atom
	return reply.Atom, nil
}

func (b *x11) property(win xproto.Window, name string) (*xproto.GetPropertyReply, error) {
	a, err := b.atom(name)
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(b.conn, false, win, a, xproto.GetPropertyTypeAny, 0, x11MaxPropertyLength).Reply()
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", name, err)
	}
	return reply, nil
}

func (b *x11) title(win xproto.Window) string {
	if reply, err := b.property(win, "_NET_WM_NAME"); err == nil && len(reply.Value) > 0 {
		return string(reply.Value)
	}
	reply, err := xproto.GetProperty(b.conn, false, win, xproto.AtomWmName, xproto.GetPropertyTypeAny, 0, x11MaxPropertyLength).Reply()
	if err != nil {
		return ""
	}
	return string(reply.Value)
}

func (b *x11) pid(win xproto.Window) int {
	reply, err := b.property(win, "_NET_WM_PID")
	if err != nil {
		return 0
	}
	vals := cardinals(reply)
	if len(vals) == 0 {
		return 0
	}
	return int(vals[0])
}

func (b *x11) clientMessage(win xproto.Window, name string, data ...uint32) error {
	a, err := b.atom(name)
	if err != nil {
		return err
	}
	vals := make([]uint32, 5)
	copy(vals, data)
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   a,
		Data:   xproto.ClientMessageDataUnionData32New(vals),
	}
	mask := uint32(xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify)
	if err := xproto.SendEventChecked(b.conn, false, b.root, mask, string(ev.Bytes())).Check(); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

func cardinals(reply *xproto.GetPropertyReply) []uint32 {
	if reply == nil || reply.Format != 32 {
		return nil
	}
	out := make([]uint32, 0, len(reply.Value)/4)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		out = append(out, xgb.Get32(reply.Value[i:]))
	}
	return out
}
