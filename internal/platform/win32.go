//go:build windows

package platform

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/user/cae/internal/keymap"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procSetForegroundWindow  = user32.NewProc("SetForegroundWindow")
	procMoveWindow           = user32.NewProc("MoveWindow")
	procKeybdEvent           = user32.NewProc("keybd_event")
	procSystemParametersInfo = user32.NewProc("SystemParametersInfoW")
	procSetProcessDPIAware   = user32.NewProc("SetProcessDPIAware")
)

const (
	swRestore        = 9
	spiGetWorkArea   = 0x0030
	keyeventfKeyUp   = 0x0002
	win32TitleBuffer = 512
)

type win32Rect struct {
	Left, Top, Right, Bottom int32
}

// win32 has no primitive for delivering keystrokes to a window that is not
// in the foreground, so TargetedInput is false and the poster steals focus
// around global keybd_event injection.
type win32 struct {
	mu       sync.Mutex
	enumProc uintptr
	found    []Window
	logger   *slog.Logger
}

func newWin32(logger *slog.Logger) (*win32, error) {
	if err := procSetProcessDPIAware.Find(); err == nil {
		// Account for display scaling so MoveWindow gets physical pixels.
		procSetProcessDPIAware.Call()
	}
	b := &win32{logger: logger}
	// Callbacks are a scarce resource; create the enumerator once.
	b.enumProc = windows.NewCallback(b.collect)
	return b, nil
}

func (b *win32) Name() string          { return "win32" }
func (b *win32) Keymap() *keymap.Table { return keymap.Windows() }
func (b *win32) TargetedInput() bool   { return false }

func (b *win32) collect(hwnd windows.HWND, _ uintptr) uintptr {
	if !windows.IsWindowVisible(hwnd) {
		return 1
	}
	buf := make([]uint16, win32TitleBuffer)
	n, _ := windows.GetWindowText(hwnd, &buf[0], int32(len(buf)))
	var pid uint32
	_, _ = windows.GetWindowThreadProcessId(hwnd, &pid)
	b.found = append(b.found, Window{
		ID:    WindowID(hwnd),
		PID:   int(pid),
		Title: windows.UTF16ToString(buf[:n]),
	})
	return 1
}

func (b *win32) ListWindows() ([]Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.found = nil
	if err := windows.EnumWindows(b.enumProc, nil); err != nil {
		return nil, fmt.Errorf("enumerate windows: %w", err)
	}
	out := b.found
	b.found = nil
	return out, nil
}

func (b *win32) ActiveWindow() (WindowID, error) {
	return WindowID(windows.GetForegroundWindow()), nil
}

func (b *win32) WorkArea() (Rect, error) {
	var r win32Rect
	ok, _, err := procSystemParametersInfo.Call(spiGetWorkArea, 0, uintptr(unsafe.Pointer(&r)), 0)
	if ok == 0 {
		return Rect{}, fmt.Errorf("read work area: %w", err)
	}
	return Rect{X: int(r.Left), Y: int(r.Top), Width: int(r.Right - r.Left), Height: int(r.Bottom - r.Top)}, nil
}

func (b *win32) SendKey(WindowID, keymap.Key, bool) error {
	return ErrUnsupported
}

func (b *win32) InjectKey(key keymap.Key, press bool) error {
	var flags uintptr
	if !press {
		flags = keyeventfKeyUp
	}
	procKeybdEvent.Call(uintptr(key.Code), 0, flags, 0)
	return nil
}

func (b *win32) Focus(id WindowID) error {
	ok, _, err := procSetForegroundWindow.Call(uintptr(id))
	if ok == 0 {
		return fmt.Errorf("set foreground window %s: %w", id, err)
	}
	return nil
}

func (b *win32) Restore(id WindowID) error {
	windows.ShowWindow(windows.HWND(id), swRestore)
	return nil
}

func (b *win32) MoveResize(id WindowID, r Rect) error {
	// Last argument repaints the window after the move.
	ok, _, err := procMoveWindow.Call(uintptr(id), uintptr(r.X), uintptr(r.Y), uintptr(r.Width), uintptr(r.Height), 1)
	if ok == 0 {
		return fmt.Errorf("move window %s: %w", id, err)
	}
	return nil
}

func (b *win32) Flush() error { return nil }
func (b *win32) Close() error { return nil }
