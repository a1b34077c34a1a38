// Package keymap maps printable characters and named keys to native key
// codes for synthetic keyboard input.
//
// A Table is built once per windowing system and never mutated afterwards.
// The X11 table yields keysyms (the backend translates them to keycodes with
// the server's keyboard mapping); the Windows table yields virtual-key codes.
// Named keys use X11 keysym names ("Super_L", "Down", "F5") on every OS so
// callers can issue the same hotkey regardless of platform.
package keymap

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotSupported is returned by Resolve for symbols without a table entry.
var ErrNotSupported = errors.New("keymap: symbol not supported")

const (
	OSX11     = "x11"
	OSWindows = "windows"
)

// Key is a native key code plus whether the Shift modifier must be held.
type Key struct {
	Code  uint32
	Shift bool
}

// Table is an immutable symbol -> Key lookup for one windowing system.
type Table struct {
	os   string
	keys map[string]Key
}

// OS reports which windowing system the table targets.
func (t *Table) OS() string { return t.os }

// Resolve returns the key for a single character ("a", "\n") or a named key
// ("Return", "Super_L").
func (t *Table) Resolve(symbol string) (Key, error) {
	k, ok := t.keys[symbol]
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrNotSupported, symbol)
	}
	return k, nil
}

// Supports reports whether symbol has an entry.
func (t *Table) Supports(symbol string) bool {
	_, ok := t.keys[symbol]
	return ok
}

// Symbols returns every mapped symbol in sorted order.
func (t *Table) Symbols() []string {
	out := make([]string, 0, len(t.keys))
	for s := range t.keys {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

var (
	x11Table     = buildX11()
	windowsTable = buildWindows()
)

// X11 returns the keysym table.
func X11() *Table { return x11Table }

// Windows returns the virtual-key table.
func Windows() *Table { return windowsTable }

// ForOS picks the table for a runtime.GOOS value. Every non-Windows system is
// assumed to run an X server.
func ForOS(goos string) *Table {
	if goos == "windows" {
		return windowsTable
	}
	return x11Table
}

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits    = "0123456789"
)

// Keysym values from X11/keysymdef.h.
var x11Named = map[string]uint32{
	"BackSpace":    0xff08,
	"Tab":          0xff09,
	"Return":       0xff0d,
	"Pause":        0xff13,
	"Scroll_Lock":  0xff14,
	"Escape":       0xff1b,
	"Home":         0xff50,
	"Left":         0xff51,
	"Up":           0xff52,
	"Right":        0xff53,
	"Down":         0xff54,
	"Page_Up":      0xff55,
	"Page_Down":    0xff56,
	"End":          0xff57,
	"Print":        0xff61,
	"Insert":       0xff63,
	"Help":         0xff6a,
	"Num_Lock":     0xff7f,
	"KP_Multiply":  0xffaa,
	"KP_Add":       0xffab,
	"KP_Separator": 0xffac,
	"KP_Subtract":  0xffad,
	"KP_Decimal":   0xffae,
	"KP_Divide":    0xffaf,
	"Shift_L":      0xffe1,
	"Shift_R":      0xffe2,
	"Control_L":    0xffe3,
	"Control_R":    0xffe4,
	"Caps_Lock":    0xffe5,
	"Alt_L":        0xffe9,
	"Alt_R":        0xffea,
	"Super_L":      0xffeb,
	"Super_R":      0xffec,
	"Delete":       0xffff,
}

// US layout: these characters need Shift. Every other printable ASCII
// character is typed as-is. Latin-1 keysyms equal their code points.
const x11Shifted = "!\"#$%&()*+:<>?@^_{|}~"

func buildX11() *Table {
	keys := make(map[string]Key, 160)
	keys["\t"] = Key{Code: x11Named["Tab"]}
	keys["\n"] = Key{Code: x11Named["Return"]}
	keys["\r"] = Key{Code: x11Named["Return"]}
	keys["\b"] = Key{Code: x11Named["BackSpace"]}
	for c := rune(0x20); c < 0x7f; c++ {
		keys[string(c)] = Key{Code: uint32(c)}
	}
	for _, c := range x11Shifted {
		keys[string(c)] = Key{Code: uint32(c), Shift: true}
	}
	for _, c := range uppercase {
		keys[string(c)] = Key{Code: uint32(c), Shift: true}
	}
	for name, code := range x11Named {
		keys[name] = Key{Code: code}
	}
	for i := 0; i <= 9; i++ {
		keys[fmt.Sprintf("KP_%d", i)] = Key{Code: 0xffb0 + uint32(i)}
	}
	for i := 1; i <= 12; i++ {
		keys[fmt.Sprintf("F%d", i)] = Key{Code: 0xffbe + uint32(i-1)}
	}
	return &Table{os: OSX11, keys: keys}
}

// Virtual-key codes from WinUser.h.
var windowsNamed = map[string]uint32{
	"BackSpace":    0x08,
	"Tab":          0x09,
	"Return":       0x0d,
	"Pause":        0x13,
	"Caps_Lock":    0x14,
	"Escape":       0x1b,
	"Page_Up":      0x21,
	"Page_Down":    0x22,
	"End":          0x23,
	"Home":         0x24,
	"Left":         0x25,
	"Up":           0x26,
	"Right":        0x27,
	"Down":         0x28,
	"Print":        0x2c,
	"Insert":       0x2d,
	"Delete":       0x2e,
	"Help":         0x2f,
	"Super_L":      0x5b,
	"Super_R":      0x5c,
	"KP_Multiply":  0x6a,
	"KP_Add":       0x6b,
	"KP_Separator": 0x6c,
	"KP_Subtract":  0x6d,
	"KP_Decimal":   0x6e,
	"KP_Divide":    0x6f,
	"Num_Lock":     0x90,
	"Scroll_Lock":  0x91,
	"Shift_L":      0xa0,
	"Shift_R":      0xa1,
	"Control_L":    0xa2,
	"Control_R":    0xa3,
	"Alt_L":        0xa4,
	"Alt_R":        0xa5,
}

var windowsAliases = map[string]string{
	"VK_LWIN":  "Super_L",
	"VK_RWIN":  "Super_R",
	"VK_LEFT":  "Left",
	"VK_UP":    "Up",
	"VK_RIGHT": "Right",
	"VK_DOWN":  "Down",
	"VK_SHIFT": "Shift_L",
}

// OEM punctuation keys on a US layout: unshifted and shifted symbol per key.
var windowsOEM = []struct {
	code           uint32
	plain, shifted string
}{
	{0xba, ";", ":"},
	{0xbb, "=", "+"},
	{0xbc, ",", "<"},
	{0xbd, "-", "_"},
	{0xbe, ".", ">"},
	{0xbf, "/", "?"},
	{0xc0, "`", "~"},
	{0xdb, "[", "{"},
	{0xdc, "\\", "|"},
	{0xdd, "]", "}"},
	{0xde, "'", "\""},
}

func buildWindows() *Table {
	keys := make(map[string]Key, 160)
	keys["\t"] = Key{Code: 0x09}
	keys["\n"] = Key{Code: 0x0d}
	keys["\r"] = Key{Code: 0x0d}
	keys["\b"] = Key{Code: 0x08}
	keys[" "] = Key{Code: 0x20}
	for _, c := range digits {
		keys[string(c)] = Key{Code: uint32(c)}
	}
	for _, c := range lowercase {
		keys[string(c)] = Key{Code: uint32(c) - 32}
	}
	for _, c := range uppercase {
		keys[string(c)] = Key{Code: uint32(c), Shift: true}
	}
	// Shifted digit row.
	for i, c := range ")!@#$%^&*(" {
		keys[string(c)] = Key{Code: uint32('0' + i), Shift: true}
	}
	for _, k := range windowsOEM {
		keys[k.plain] = Key{Code: k.code}
		keys[k.shifted] = Key{Code: k.code, Shift: true}
	}
	for name, code := range windowsNamed {
		keys[name] = Key{Code: code}
	}
	for i := 0; i <= 9; i++ {
		keys[fmt.Sprintf("KP_%d", i)] = Key{Code: 0x60 + uint32(i)}
	}
	for i := 1; i <= 12; i++ {
		keys[fmt.Sprintf("F%d", i)] = Key{Code: 0x70 + uint32(i-1)}
	}
	for alias, name := range windowsAliases {
		keys[alias] = keys[name]
	}
	return &Table{os: OSWindows, keys: keys}
}
