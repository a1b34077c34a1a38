//go:build !windows

package process

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/cae/internal/testutil"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "viewer.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLaunchMissingExecutable(t *testing.T) {
	logger, logs := testutil.NewLogger(t)
	l := NewLauncher(logger)

	p, err := l.Launch("cgx", filepath.Join(t.TempDir(), "nope"), nil)
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("Launch() error = %v, want ErrExecutableNotFound", err)
	}
	if p != nil {
		t.Fatal("Launch() returned a process for a missing executable")
	}
	if n := logs.Count(slog.LevelError, "executable not found"); n != 1 {
		t.Fatalf("error records = %d, want 1", n)
	}
}

func TestLaunchMergesStderrIntoStdout(t *testing.T) {
	script := writeScript(t, `echo out; echo err 1>&2`)
	logger, logs := testutil.NewLogger(t)
	l := NewLauncher(logger)
	defer l.Close()

	p, err := l.Launch("cgx", script, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	r := NewRelay("cgx-relay", "cgx", p.Stdout(), logger)
	r.Start()

	if !r.Wait(5 * time.Second) {
		t.Fatal("relay did not finish after process exit")
	}
	if logs.Count(slog.LevelInfo, "out") != 1 || logs.Count(slog.LevelInfo, "err") != 1 {
		t.Fatalf("records = %+v, want both streams relayed", logs.Records())
	}
	if !p.Wait(5 * time.Second) {
		t.Fatal("process did not exit")
	}
	if code, running := p.Poll(); running || code != 0 {
		t.Fatalf("Poll() = (%d, %v), want (0, false)", code, running)
	}
}

func TestPollReportsExitCode(t *testing.T) {
	script := writeScript(t, `exit 3`)
	logger, _ := testutil.NewLogger(t)
	l := NewLauncher(logger)

	p, err := l.Launch("solver", script, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !p.Wait(5 * time.Second) {
		t.Fatal("process did not exit")
	}
	if code, running := p.Poll(); running || code != 3 {
		t.Fatalf("Poll() = (%d, %v), want (3, false)", code, running)
	}
}

func TestLaunchKillsPreviousProcessForRole(t *testing.T) {
	script := writeScript(t, `exec sleep 30`)
	logger, _ := testutil.NewLogger(t)
	l := NewLauncher(logger)
	defer l.Close()

	first, err := l.Launch("cgx", script, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if !first.Running() {
		t.Fatal("first process not running")
	}

	second, err := l.Launch("cgx", script, nil)
	if err != nil {
		t.Fatalf("second Launch() error = %v", err)
	}
	if !first.Wait(2 * time.Second) {
		t.Fatal("previous process still running after relaunch")
	}
	if _, running := first.Poll(); running {
		t.Fatal("Poll() reports previous process running")
	}
	if !second.Running() {
		t.Fatal("second process not running")
	}
	if got, _ := l.Get("cgx"); got != second {
		t.Fatal("Get(cgx) does not return the new process")
	}
}

func TestLaunchOtherRoleKeepsProcess(t *testing.T) {
	script := writeScript(t, `exec sleep 30`)
	logger, _ := testutil.NewLogger(t)
	l := NewLauncher(logger)
	defer l.Close()

	viewer, err := l.Launch("cgx", script, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if _, err := l.Launch("solver", script, nil); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if viewer.Wait(200 * time.Millisecond) {
		t.Fatal("launching another role killed the viewer")
	}
}

func TestKillExitedProcessIsNotAnError(t *testing.T) {
	script := writeScript(t, `true`)
	logger, _ := testutil.NewLogger(t)
	l := NewLauncher(logger)

	p, err := l.Launch("cgx", script, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	p.Wait(5 * time.Second)
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
}

func TestResolveUsesPath(t *testing.T) {
	got, err := Resolve("sh")
	if err != nil {
		t.Fatalf("Resolve(sh) error = %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Fatalf("Resolve(sh) = %q, want absolute path", got)
	}
	if _, err := Resolve(t.TempDir()); !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("Resolve(dir) error = %v, want ErrExecutableNotFound", err)
	}
}

func TestLaunchWithPTY(t *testing.T) {
	script := writeScript(t, `echo hello-pty`)
	logger, logs := testutil.NewLogger(t)
	l := NewLauncher(logger)
	l.SetPTY(true)
	defer l.Close()

	p, err := l.Launch("cgx", script, nil)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	r := NewRelay("cgx-relay", "cgx", p.Stdout(), logger)
	r.Start()
	if !p.Wait(5 * time.Second) {
		t.Fatal("process did not exit")
	}
	if !r.Wait(5 * time.Second) {
		t.Fatal("relay did not finish")
	}
	if n := logs.Count(slog.LevelInfo, "hello-pty"); n != 1 {
		t.Fatalf("hello-pty records = %d, want 1", n)
	}
}
