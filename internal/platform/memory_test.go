package platform

import (
	"errors"
	"testing"

	"github.com/user/cae/internal/keymap"
)

func TestNewMemoryBackend(t *testing.T) {
	b, err := New(KindMemory, nil)
	if err != nil {
		t.Fatalf("New(memory) error = %v", err)
	}
	if b.Name() != KindMemory {
		t.Fatalf("Name() = %q, want %q", b.Name(), KindMemory)
	}
	area, err := b.WorkArea()
	if err != nil {
		t.Fatalf("WorkArea() error = %v", err)
	}
	if area.Width != 1920 || area.Height != 1080 {
		t.Fatalf("WorkArea() = %+v", area)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("wayland", nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestMemoryRecordsTargetedKeys(t *testing.T) {
	m := NewMemory(Rect{Width: 900, Height: 600})
	id := m.AddWindow("CalculiX GraphiX", 42)

	key := keymap.Key{Code: 'A', Shift: true}
	if err := m.SendKey(id, key, true); err != nil {
		t.Fatalf("SendKey() error = %v", err)
	}
	if err := m.SendKey(id, key, false); err != nil {
		t.Fatalf("SendKey() error = %v", err)
	}

	events := m.Events()
	if len(events) != 2 {
		t.Fatalf("len(Events()) = %d, want 2", len(events))
	}
	if !events[0].Press || events[1].Press {
		t.Fatalf("events = %+v, want press then release", events)
	}
	if events[0].Window != id || !events[0].Key.Shift {
		t.Fatalf("events[0] = %+v", events[0])
	}
}

func TestMemoryUntargetedRejectsSendKey(t *testing.T) {
	m := NewMemory(Rect{Width: 900, Height: 600})
	id := m.AddWindow("viewer", 1)
	m.SetTargetedInput(false)

	if err := m.SendKey(id, keymap.Key{Code: 'a'}, true); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("SendKey() error = %v, want ErrUnsupported", err)
	}
	if err := m.InjectKey(keymap.Key{Code: 'a', Shift: true}, true); err != nil {
		t.Fatalf("InjectKey() error = %v", err)
	}
	if got := m.Events()[0]; got.Window != None || got.Key.Shift {
		t.Fatalf("InjectKey recorded %+v, want global unshifted event", got)
	}
}

func TestMemoryRemoveWindow(t *testing.T) {
	m := NewMemory(Rect{Width: 900, Height: 600})
	a := m.AddWindow("a", 1)
	b := m.AddWindow("b", 2)
	m.RemoveWindow(a)

	wins, err := m.ListWindows()
	if err != nil {
		t.Fatalf("ListWindows() error = %v", err)
	}
	if len(wins) != 1 || wins[0].ID != b {
		t.Fatalf("ListWindows() = %+v, want only %s", wins, b)
	}
	if err := m.MoveResize(a, Rect{Width: 1, Height: 1}); err == nil {
		t.Fatal("expected MoveResize on removed window to fail")
	}
}

func TestWindowIDString(t *testing.T) {
	if got := WindowID(0x3a00007).String(); got != "0x03a00007" {
		t.Fatalf("String() = %q", got)
	}
	if None.Valid() {
		t.Fatal("None.Valid() = true")
	}
}
