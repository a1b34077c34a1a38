package poster

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/user/cae/internal/keymap"
	"github.com/user/cae/internal/platform"
	"github.com/user/cae/internal/testutil"
)

type fakeProcess struct{ running bool }

func (f *fakeProcess) Running() bool { return f.running }

func newPoster(t *testing.T, targeted bool) (*Poster, *platform.Memory, *testutil.LogCapture, Target) {
	t.Helper()
	m := platform.NewMemory(platform.Rect{Width: 1200, Height: 900})
	m.SetTargetedInput(targeted)
	if targeted {
		m.SetKeymap(keymap.X11())
	} else {
		m.SetKeymap(keymap.Windows())
	}
	home := m.AddWindow("cae", 1)
	viewer := m.AddWindow("CalculiX GraphiX", 2)

	logger, logs := testutil.NewLogger(t)
	p := New(m, logger)
	p.SetTiming(0, 0)
	return p, m, logs, Target{Process: &fakeProcess{running: true}, Window: viewer, Home: home}
}

func typed(events []platform.KeyEvent) []uint32 {
	var codes []uint32
	for _, e := range events {
		if e.Press {
			codes = append(codes, e.Key.Code)
		}
	}
	return codes
}

func TestPostTargetedSequence(t *testing.T) {
	p, m, logs, target := newPoster(t, true)

	if !p.Post(target, "ab") {
		t.Fatal("Post() = false, want true")
	}
	events := m.Events()
	if len(events) != 10 {
		t.Fatalf("len(Events()) = %d, want 10", len(events))
	}
	for i := 0; i < len(events); i += 2 {
		if !events[i].Press || events[i+1].Press || events[i].Key != events[i+1].Key {
			t.Fatalf("events %d,%d = %+v %+v, want press/release pair", i, i+1, events[i], events[i+1])
		}
		if events[i].Window != target.Window {
			t.Fatalf("event %d went to %s, want %s", i, events[i].Window, target.Window)
		}
	}
	want := []uint32{0xff0d, 'a', 'b', 0xff0d, ' '}
	got := typed(events)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("typed = %x, want %x", got, want)
		}
	}
	if m.Flushes() == 0 {
		t.Fatal("Post() did not flush")
	}
	if len(m.Focuses()) != 0 {
		t.Fatalf("targeted post changed focus: %v", m.Focuses())
	}
	if n := logs.CountLevel(slog.LevelWarn); n != 0 {
		t.Fatalf("warnings = %d, want 0", n)
	}
}

func TestPostTargetedCarriesShift(t *testing.T) {
	p, m, _, target := newPoster(t, true)

	p.Post(target, "A")
	events := m.Events()
	if !events[2].Key.Shift || events[2].Key.Code != 'A' {
		t.Fatalf("events[2] = %+v, want shifted A", events[2])
	}
}

func TestPostSkipsUnsupportedSymbols(t *testing.T) {
	p, m, logs, target := newPoster(t, true)

	if !p.Post(target, "aébé") {
		t.Fatal("Post() = false, want true")
	}
	got := typed(m.Events())
	want := []uint32{0xff0d, 'a', 'b', 0xff0d, ' '}
	if len(got) != len(want) {
		t.Fatalf("typed = %x, want %x", got, want)
	}
	if n := logs.Count(slog.LevelWarn, "not supported"); n != 2 {
		t.Fatalf("warnings = %d, want 2", n)
	}
}

func TestPostSkipsKeysMissingFromLayout(t *testing.T) {
	for _, targeted := range []bool{true, false} {
		p, m, logs, target := newPoster(t, targeted)
		tilde, err := m.Keymap().Resolve("~")
		if err != nil {
			t.Fatalf("Resolve(~) error = %v", err)
		}
		m.DropKeysym(tilde.Code)

		if !p.Post(target, "cd ~/model") {
			t.Fatalf("targeted=%v: Post() = false, want true", targeted)
		}
		var text []rune
		for _, code := range typed(m.Events()) {
			if code == tilde.Code {
				t.Fatalf("targeted=%v: dropped key was typed", targeted)
			}
			if code >= ' ' && code < 0x7f {
				text = append(text, rune(code))
			}
		}
		if targeted && string(text) != "cd /model " {
			t.Fatalf("typed text = %q, want %q", string(text), "cd /model ")
		}
		if m.Flushes() == 0 {
			t.Fatalf("targeted=%v: Post() did not flush", targeted)
		}
		if n := logs.Count(slog.LevelWarn, "not supported"); n != 1 {
			t.Fatalf("targeted=%v: warnings = %d, want 1", targeted, n)
		}
		if n := logs.CountLevel(slog.LevelError); n != 0 {
			t.Fatalf("targeted=%v: errors = %d, want 0", targeted, n)
		}
	}
}

func TestPostWithoutSessionIsNoop(t *testing.T) {
	p, m, logs, target := newPoster(t, true)

	cases := []Target{
		{Window: target.Window},
		{Process: &fakeProcess{running: false}, Window: target.Window},
		{Process: &fakeProcess{running: true}},
	}
	for i, tc := range cases {
		if p.Post(tc, "plot e all") {
			t.Fatalf("case %d: Post() = true, want false", i)
		}
	}
	if len(m.Events()) != 0 || m.Flushes() != 0 || len(m.Focuses()) != 0 {
		t.Fatal("precondition failure touched the window system")
	}
	if len(logs.Records()) != 0 {
		t.Fatalf("records = %+v, want none", logs.Records())
	}
}

func TestPostFocusStealRestoresHome(t *testing.T) {
	p, m, _, target := newPoster(t, false)

	if !p.Post(target, "A") {
		t.Fatal("Post() = false, want true")
	}
	focuses := m.Focuses()
	if len(focuses) != 2 || focuses[0] != target.Window || focuses[1] != target.Home {
		t.Fatalf("Focuses() = %v, want [viewer home]", focuses)
	}

	events := m.Events()
	if len(events) != 10 {
		t.Fatalf("len(Events()) = %d, want 10", len(events))
	}
	// Shift wraps the uppercase key.
	shift := keymap.Windows()
	sk, _ := shift.Resolve("Shift_L")
	if events[2].Key.Code != sk.Code || !events[2].Press || events[5].Key.Code != sk.Code || events[5].Press {
		t.Fatalf("events = %+v, want shift around A", events[2:6])
	}
	for _, e := range events {
		if e.Window != platform.None {
			t.Fatalf("event %+v targeted a window, want global injection", e)
		}
	}
}

func TestPostFocusStealRestoresHomeOnFailure(t *testing.T) {
	p, m, logs, target := newPoster(t, false)
	m.FailKeys(errors.New("input desktop locked"))

	if p.Post(target, "plot") {
		t.Fatal("Post() = true, want false")
	}
	focuses := m.Focuses()
	if len(focuses) != 2 || focuses[1] != target.Home {
		t.Fatalf("Focuses() = %v, want focus back on home", focuses)
	}
	if n := logs.CountLevel(slog.LevelError); n != 1 {
		t.Fatalf("errors = %d, want 1", n)
	}
}

func TestPostTargetedAbortsOnBackendError(t *testing.T) {
	p, m, _, target := newPoster(t, true)
	m.FailKeys(errors.New("bad window"))

	if p.Post(target, "plot") {
		t.Fatal("Post() = true, want false")
	}
	if len(m.Events()) != 0 {
		t.Fatal("events recorded after failure")
	}
}

func TestSendHotkeyChord(t *testing.T) {
	p, m, _, _ := newPoster(t, true)

	if !p.SendHotkey("Control_L", "Alt_L", "Delete") {
		t.Fatal("SendHotkey() = false, want true")
	}
	events := m.Events()
	table := keymap.X11()
	ctrl, _ := table.Resolve("Control_L")
	alt, _ := table.Resolve("Alt_L")
	del, _ := table.Resolve("Delete")
	want := []platform.KeyEvent{
		{Key: ctrl, Press: true}, {Key: alt, Press: true}, {Key: del, Press: true},
		{Key: del}, {Key: alt}, {Key: ctrl},
	}
	if len(events) != len(want) {
		t.Fatalf("Events() = %+v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %+v, want %+v", i, events[i], want[i])
		}
	}
	if m.Flushes() != 1 {
		t.Fatalf("Flushes() = %d, want 1", m.Flushes())
	}
}

func TestSendHotkeyUnknownKeyAborts(t *testing.T) {
	p, m, logs, _ := newPoster(t, true)

	if p.SendHotkey("Control_L", "Hyper_Q") {
		t.Fatal("SendHotkey() = true, want false")
	}
	if len(m.Events()) != 0 {
		t.Fatalf("Events() = %+v, want none", m.Events())
	}
	if n := logs.Count(slog.LevelWarn, "not supported"); n != 1 {
		t.Fatalf("warnings = %d, want 1", n)
	}
}
