// Package poster types text commands into a foreign window by synthesizing
// keyboard events.
package poster

import (
	"errors"
	"log/slog"
	"time"

	"github.com/user/cae/internal/keymap"
	"github.com/user/cae/internal/platform"
)

const (
	// DefaultKeyDelay separates injected keys when focus has to be stolen.
	// Win32 drops keystrokes sent back to back.
	DefaultKeyDelay = time.Millisecond
	// DefaultHotkeySettle is the pause after a hotkey before flushing.
	DefaultHotkeySettle = 300 * time.Millisecond
)

// Liveness is the process check a post needs. *process.Process satisfies it.
type Liveness interface {
	Running() bool
}

// Target identifies where a command goes.
type Target struct {
	// Process is the viewer process; nil means no session.
	Process Liveness
	// Window is the viewer window that receives the keys.
	Window platform.WindowID
	// Home is the window focus returns to when focus has to be stolen.
	Home platform.WindowID
}

// Ready reports whether a post to t would deliver anything.
func (t Target) Ready() bool {
	return t.Process != nil && t.Process.Running() && t.Window.Valid()
}

type Poster struct {
	backend platform.Backend
	keys    *keymap.Table
	logger  *slog.Logger

	keyDelay     time.Duration
	hotkeySettle time.Duration
}

func New(backend platform.Backend, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		backend:      backend,
		keys:         backend.Keymap(),
		logger:       logger,
		keyDelay:     DefaultKeyDelay,
		hotkeySettle: DefaultHotkeySettle,
	}
}

// SetTiming overrides the inter-key delay and hotkey settle time.
func (p *Poster) SetTiming(keyDelay, hotkeySettle time.Duration) {
	p.keyDelay = keyDelay
	p.hotkeySettle = hotkeySettle
}

// Post types command into the target window followed by a newline. A blank
// line goes first to drop whatever a previous partial command left in the
// viewer's input, and a trailing space makes the viewer flush its output.
//
// Post is a silent no-op unless the process is alive and its window is
// known. Unsupported characters are skipped with a warning each. It reports
// whether every key event was handed to the window system.
func (p *Poster) Post(t Target, command string) bool {
	if !t.Ready() {
		return false
	}

	segments := []string{"\n", command + "\n", " "}
	if p.backend.TargetedInput() {
		for _, seg := range segments {
			if !p.sendTargeted(t.Window, seg) {
				return false
			}
		}
		return true
	}
	return p.sendFocused(t, segments)
}

// sendTargeted delivers one segment straight to the window without
// activating it.
func (p *Poster) sendTargeted(id platform.WindowID, text string) bool {
	for _, r := range text {
		symbol := string(r)
		key, ok := p.resolve(symbol)
		if !ok {
			continue
		}
		if err := p.backend.SendKey(id, key, true); err != nil {
			if p.skipMissing(symbol, err) {
				continue
			}
			p.logger.Error("key press failed", "wid", id.String(), "error", err)
			return false
		}
		if err := p.backend.SendKey(id, key, false); err != nil {
			p.logger.Error("key release failed", "wid", id.String(), "error", err)
			return false
		}
	}
	if err := p.backend.Flush(); err != nil {
		p.logger.Error("flush failed", "error", err)
		return false
	}
	return true
}

// sendFocused brings the viewer to the foreground, injects every segment
// and hands focus back to the home window whatever happened.
func (p *Poster) sendFocused(t Target, segments []string) bool {
	if t.Home.Valid() {
		defer func() {
			if err := p.backend.Focus(t.Home); err != nil {
				p.logger.Warn("failed to restore focus", "wid", t.Home.String(), "error", err)
			}
		}()
	}
	if err := p.backend.Focus(t.Window); err != nil {
		p.logger.Error("failed to focus window", "wid", t.Window.String(), "error", err)
		return false
	}

	shift, err := p.keys.Resolve("Shift_L")
	if err != nil {
		p.logger.Error("no shift key in keymap", "error", err)
		return false
	}

	for _, seg := range segments {
		for _, r := range seg {
			time.Sleep(p.keyDelay)
			symbol := string(r)
			key, ok := p.resolve(symbol)
			if !ok {
				continue
			}
			if err := p.inject(shift, key); err != nil {
				if p.skipMissing(symbol, err) {
					continue
				}
				p.logger.Error("key injection failed", "error", err)
				return false
			}
		}
	}
	if err := p.backend.Flush(); err != nil {
		p.logger.Error("flush failed", "error", err)
		return false
	}
	return true
}

func (p *Poster) inject(shift, key keymap.Key) error {
	if key.Shift {
		if err := p.backend.InjectKey(shift, true); err != nil {
			return err
		}
		defer p.backend.InjectKey(shift, false)
	}
	if err := p.backend.InjectKey(key, true); err != nil {
		return err
	}
	return p.backend.InjectKey(key, false)
}

func (p *Poster) resolve(symbol string) (keymap.Key, bool) {
	key, err := p.keys.Resolve(symbol)
	if err != nil {
		p.logger.Warn("symbol is not supported", "symbol", symbol)
		return keymap.Key{}, false
	}
	return key, true
}

// skipMissing reports whether err means the display layout lacks the key for
// symbol. Such a symbol is skipped like one the keymap does not know.
func (p *Poster) skipMissing(symbol string, err error) bool {
	if !errors.Is(err, keymap.ErrNotSupported) {
		return false
	}
	p.logger.Warn("symbol is not supported", "symbol", symbol, "error", err)
	return true
}

// SendHotkey presses keys in order and releases them in reverse, as a chord,
// into whatever window has focus. Every key is checked first; one unknown
// key aborts the chord with a warning.
func (p *Poster) SendHotkey(keys ...string) bool {
	if len(keys) == 0 {
		return false
	}
	resolved := make([]keymap.Key, 0, len(keys))
	for _, name := range keys {
		key, err := p.keys.Resolve(name)
		if err != nil {
			p.logger.Warn("key is not supported", "key", name)
			return false
		}
		resolved = append(resolved, key)
	}

	ok := true
	pressed := 0
	for _, key := range resolved {
		if err := p.backend.InjectKey(key, true); err != nil {
			p.logger.Error("hotkey press failed", "error", err)
			ok = false
			break
		}
		pressed++
	}
	for i := pressed - 1; i >= 0; i-- {
		if err := p.backend.InjectKey(resolved[i], false); err != nil {
			p.logger.Error("hotkey release failed", "error", err)
			ok = false
		}
	}

	time.Sleep(p.hotkeySettle)
	if err := p.backend.Flush(); err != nil {
		p.logger.Error("flush failed", "error", err)
		return false
	}
	return ok
}
