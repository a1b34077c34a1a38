package platform

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/user/cae/internal/keymap"
)

// KeyEvent is one key event recorded by the memory backend. Window is None
// for globally injected events.
type KeyEvent struct {
	Window WindowID
	Key    keymap.Key
	Press  bool
}

// Move is one MoveResize call recorded by the memory backend.
type Move struct {
	Window WindowID
	Rect   Rect
}

// Memory is an in-process window system. It backs headless runs and tests:
// windows are registered by hand and every input or placement request is
// recorded instead of reaching a display.
type Memory struct {
	mu       sync.Mutex
	keys     *keymap.Table
	area     Rect
	targeted bool
	nextID   WindowID
	windows  []Window
	rects    map[WindowID]Rect
	active   WindowID
	events   []KeyEvent
	moves    []Move
	restores []WindowID
	focuses  []WindowID
	flushes  int
	failKeys error
	missing  map[uint32]bool
}

// NewMemory returns an empty window system with the given work area. Input is
// window-targeted unless SetTargetedInput(false) is called.
func NewMemory(area Rect) *Memory {
	return &Memory{
		keys:     keymap.ForOS(runtime.GOOS),
		area:     area,
		targeted: true,
		nextID:   0x01000000,
		rects:    make(map[WindowID]Rect),
		missing:  make(map[uint32]bool),
	}
}

func (m *Memory) Name() string { return KindMemory }

func (m *Memory) Keymap() *keymap.Table {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys
}

// SetKeymap swaps the key table, e.g. to exercise the Windows table on Linux.
func (m *Memory) SetKeymap(t *keymap.Table) {
	m.mu.Lock()
	m.keys = t
	m.mu.Unlock()
}

// SetTargetedInput toggles window-targeted delivery.
func (m *Memory) SetTargetedInput(v bool) {
	m.mu.Lock()
	m.targeted = v
	m.mu.Unlock()
}

// FailKeys makes every subsequent SendKey/InjectKey return err.
func (m *Memory) FailKeys(err error) {
	m.mu.Lock()
	m.failKeys = err
	m.mu.Unlock()
}

// DropKeysym makes code behave like a keysym the display layout has no
// keycode for: key requests carrying it fail with keymap.ErrNotSupported.
func (m *Memory) DropKeysym(code uint32) {
	m.mu.Lock()
	m.missing[code] = true
	m.mu.Unlock()
}

// AddWindow registers a visible window and returns its id.
func (m *Memory) AddWindow(title string, pid int) WindowID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.windows = append(m.windows, Window{ID: id, PID: pid, Title: title})
	return id
}

// RemoveWindow unregisters a window.
func (m *Memory) RemoveWindow(id WindowID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.windows {
		if w.ID == id {
			m.windows = append(m.windows[:i], m.windows[i+1:]...)
			break
		}
	}
	delete(m.rects, id)
}

func (m *Memory) ListWindows() ([]Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Window(nil), m.windows...), nil
}

func (m *Memory) ActiveWindow() (WindowID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, nil
}

func (m *Memory) WorkArea() (Rect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.area, nil
}

func (m *Memory) TargetedInput() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targeted
}

func (m *Memory) SendKey(id WindowID, key keymap.Key, press bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.targeted {
		return ErrUnsupported
	}
	if m.failKeys != nil {
		return m.failKeys
	}
	if m.missing[key.Code] {
		return fmt.Errorf("%w: keysym 0x%x", keymap.ErrNotSupported, key.Code)
	}
	if !m.known(id) {
		return fmt.Errorf("memory: window %s not found", id)
	}
	m.events = append(m.events, KeyEvent{Window: id, Key: key, Press: press})
	return nil
}

func (m *Memory) InjectKey(key keymap.Key, press bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failKeys != nil {
		return m.failKeys
	}
	if m.missing[key.Code] {
		return fmt.Errorf("%w: keysym 0x%x", keymap.ErrNotSupported, key.Code)
	}
	key.Shift = false
	m.events = append(m.events, KeyEvent{Window: None, Key: key, Press: press})
	return nil
}

func (m *Memory) Focus(id WindowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known(id) {
		return fmt.Errorf("memory: window %s not found", id)
	}
	m.active = id
	m.focuses = append(m.focuses, id)
	return nil
}

func (m *Memory) Restore(id WindowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known(id) {
		return fmt.Errorf("memory: window %s not found", id)
	}
	m.restores = append(m.restores, id)
	return nil
}

func (m *Memory) MoveResize(id WindowID, r Rect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known(id) {
		return fmt.Errorf("memory: window %s not found", id)
	}
	m.rects[id] = r
	m.moves = append(m.moves, Move{Window: id, Rect: r})
	return nil
}

func (m *Memory) Flush() error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of the recorded key events.
func (m *Memory) Events() []KeyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]KeyEvent(nil), m.events...)
}

// ResetEvents drops recorded key events.
func (m *Memory) ResetEvents() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}

// Moves returns a copy of the recorded MoveResize calls.
func (m *Memory) Moves() []Move {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Move(nil), m.moves...)
}

// Restores returns the windows passed to Restore, in order.
func (m *Memory) Restores() []WindowID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WindowID(nil), m.restores...)
}

// Focuses returns the windows passed to Focus, in order.
func (m *Memory) Focuses() []WindowID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WindowID(nil), m.focuses...)
}

// Flushes returns how many times Flush was called.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// RectOf returns the last rectangle a window was moved to.
func (m *Memory) RectOf(id WindowID) (Rect, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rects[id]
	return r, ok
}

func (m *Memory) known(id WindowID) bool {
	for _, w := range m.windows {
		if w.ID == id {
			return true
		}
	}
	return false
}
