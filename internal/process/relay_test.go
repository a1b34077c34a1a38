package process

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/user/cae/internal/testutil"
)

func TestRelayForwardsLinesWithOrigin(t *testing.T) {
	logger, logs := testutil.NewLogger(t)
	stream := io.NopCloser(strings.NewReader("first\n\n   \nsecond\r\nthird"))

	r := NewRelay("cgx-relay", "cgx", stream, logger)
	r.Start()
	if !r.Wait(time.Second) {
		t.Fatal("relay did not finish at EOF")
	}
	if r.Active() {
		t.Fatal("Active() = true after EOF")
	}

	recs := logs.Records()
	var got []string
	for _, rec := range recs {
		if rec.Attrs["origin"] != "cgx" || rec.Level != slog.LevelInfo {
			t.Fatalf("record = %+v, want info with origin=cgx", rec)
		}
		got = append(got, rec.Message)
	}
	if strings.Join(got, ",") != "first,second,third" {
		t.Fatalf("relayed = %q", got)
	}
}

func TestRelayStripsEscapeSequences(t *testing.T) {
	logger, logs := testutil.NewLogger(t)
	stream := io.NopCloser(strings.NewReader("\x1b[1;32mready\x1b[0m\n\x1b]0;title\x07abc\bd\n"))

	r := NewRelay("r", "cgx", stream, logger)
	r.Start()
	r.Wait(time.Second)

	if logs.Count(slog.LevelInfo, "ready") != 1 || logs.Count(slog.LevelInfo, "abd") != 1 {
		t.Fatalf("records = %+v", logs.Records())
	}
}

func TestRelayKeepsFlowingAfterOverlongLine(t *testing.T) {
	logger, logs := testutil.NewLogger(t)
	long := strings.Repeat("x", maxLineBytes+10)
	stream := io.NopCloser(strings.NewReader(long + "\nafter\n"))

	r := NewRelay("r", "cgx", stream, logger)
	r.Start()
	if !r.Wait(5 * time.Second) {
		t.Fatal("relay did not finish at EOF")
	}

	var sizes []int
	for _, rec := range logs.Records() {
		sizes = append(sizes, len(rec.Message))
	}
	if len(sizes) != 3 || sizes[0] != maxLineBytes || sizes[1] != 10 {
		t.Fatalf("record sizes = %v, want [%d 10 5]", sizes, maxLineBytes)
	}
	if logs.Count(slog.LevelInfo, "after") != 1 {
		t.Fatal("line after the overlong one was not relayed")
	}
}

func TestRelayStopUnblocksPendingRead(t *testing.T) {
	logger, _ := testutil.NewLogger(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewRelay("r", "cgx", pr, logger)
	r.Start()
	if !r.Active() {
		t.Fatal("Active() = false after Start")
	}

	start := time.Now()
	r.Stop()
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("Stop() blocked the caller")
	}
	r.Stop()

	if !r.Wait(StopGrace) {
		t.Fatal("relay still running after grace period")
	}
	if r.Active() {
		t.Fatal("Active() = true after Stop")
	}
}

func TestRelayWaitWithoutStart(t *testing.T) {
	r := NewRelay("r", "cgx", io.NopCloser(strings.NewReader("")), nil)
	if !r.Wait(10 * time.Millisecond) {
		t.Fatal("Wait() on unstarted relay = false")
	}
	r.Stop()
}

func TestCleanLine(t *testing.T) {
	cases := map[string]string{
		"plain":               "plain",
		"\x1b[31mred\x1b[0m":  "red",
		"tab\there":           "tab\there",
		"cr\r":                "cr",
		"\x1b(Bcharset":       "charset",
		"\x1bPdcs\x1b\\after": "after",
		"ab\b\bxy":            "xy",
	}
	for in, want := range cases {
		if got := cleanLine(in); got != want {
			t.Errorf("cleanLine(%q) = %q, want %q", in, got, want)
		}
	}
}
