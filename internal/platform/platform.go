// Package platform abstracts the window-system operations needed to drive a
// foreign top-level window: enumeration, synthetic keyboard input, focus and
// placement. One Backend variant exists per windowing system and is chosen
// once at startup.
package platform

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/cae/internal/keymap"
)

// ErrUnsupported is returned by operations a backend cannot perform, such as
// window-targeted key events on Win32.
var ErrUnsupported = errors.New("platform: operation not supported")

// WindowID is an opaque top-level window handle. Zero means "not resolved".
type WindowID uint64

// None is the unresolved window id.
const None WindowID = 0

func (id WindowID) String() string {
	return fmt.Sprintf("0x%08x", uint64(id))
}

// Valid reports whether the id refers to a window.
func (id WindowID) Valid() bool { return id != None }

// Rect is a rectangle in screen coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Window describes a visible top-level window.
type Window struct {
	ID    WindowID `json:"id"`
	PID   int      `json:"pid"`
	Title string   `json:"title"`
}

// Backend is the window-system capability set.
type Backend interface {
	// Name identifies the variant ("x11", "win32", "memory").
	Name() string
	// Keymap returns the key table whose codes this backend understands.
	Keymap() *keymap.Table

	// ListWindows enumerates visible top-level windows.
	ListWindows() ([]Window, error)
	// ActiveWindow returns the window that currently has input focus.
	ActiveWindow() (WindowID, error)
	// WorkArea returns the usable screen area.
	WorkArea() (Rect, error)

	// TargetedInput reports whether SendKey can deliver events to a window
	// without activating it.
	TargetedInput() bool
	// SendKey delivers one key event to a specific window. Shift is encoded
	// in the event's modifier state.
	SendKey(id WindowID, key keymap.Key, press bool) error
	// InjectKey synthesizes one global key event for the focused window.
	// The Shift flag is ignored; callers press the Shift key themselves.
	InjectKey(key keymap.Key, press bool) error
	// Focus brings a window to the foreground.
	Focus(id WindowID) error

	// Restore un-minimizes and un-maximizes a window.
	Restore(id WindowID) error
	// MoveResize places a window.
	MoveResize(id WindowID, r Rect) error

	// Flush pushes any buffered requests to the window system.
	Flush() error
	Close() error
}

const (
	KindAuto   = "auto"
	KindMemory = "memory"
)

// New returns the backend for kind. "auto" selects the native window system
// for the running OS.
func New(kind string, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch kind {
	case "", KindAuto:
		b, err := newNative(logger)
		if err != nil {
			return nil, fmt.Errorf("open native window system: %w", err)
		}
		return b, nil
	case KindMemory:
		return NewMemory(Rect{Width: 1920, Height: 1080}), nil
	default:
		return nil, fmt.Errorf("unknown platform backend %q", kind)
	}
}
