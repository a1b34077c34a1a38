// Package process starts the external viewer with redirected standard
// streams and relays its output into the log.
package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ErrExecutableNotFound is returned when the viewer binary does not exist.
var ErrExecutableNotFound = errors.New("executable not found")

// Launcher starts child processes and keeps at most one live process per
// role.
type Launcher struct {
	mu     sync.Mutex
	procs  map[string]*Process
	usePTY bool
	logger *slog.Logger
}

func NewLauncher(logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		procs:  make(map[string]*Process),
		logger: logger,
	}
}

// SetPTY makes subsequent launches attach the child to a pseudo-terminal
// instead of plain pipes, so stdio line-buffers. Ignored where ptys are not
// available.
func (l *Launcher) SetPTY(v bool) {
	l.mu.Lock()
	l.usePTY = v
	l.mu.Unlock()
}

// Resolve turns a bare command name into a path using PATH; paths are
// returned cleaned.
func Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrExecutableNotFound)
	}
	if !strings.ContainsRune(path, os.PathSeparator) && !strings.ContainsRune(path, '/') {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, path)
		}
		return found, nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, path)
	}
	return filepath.Clean(path), nil
}

// Launch starts path with args under role. A previous process for the same
// role is killed first. A missing executable is logged and reported as
// ErrExecutableNotFound without touching the previous process.
func (l *Launcher) Launch(role, path string, args []string) (*Process, error) {
	exe, err := Resolve(path)
	if err != nil {
		l.logger.Error("executable not found", "role", role, "path", path)
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.procs[role]; ok {
		l.stop(prev)
		delete(l.procs, role)
	}

	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = sysProcAttr()

	var p *Process
	if l.usePTY && ptySupported {
		p, err = startPTY(role, cmd)
	} else {
		p, err = startPipes(role, cmd)
	}
	if err != nil {
		l.logger.Error("failed to start process", "role", role, "path", exe, "error", err)
		return nil, fmt.Errorf("start %s: %w", role, err)
	}

	l.procs[role] = p
	l.logger.Debug("process started", "role", role, "pid", p.PID(), "cmd", strings.Join(cmd.Args, " "))
	return p, nil
}

// Get returns the process managed under role, if any.
func (l *Launcher) Get(role string) (*Process, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.procs[role]
	return p, ok
}

// Kill terminates the process managed under role. It is a no-op when nothing
// runs under that role.
func (l *Launcher) Kill(role string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.procs[role]; ok {
		l.stop(p)
		delete(l.procs, role)
	}
}

// Close kills every managed process.
func (l *Launcher) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for role, p := range l.procs {
		l.stop(p)
		delete(l.procs, role)
	}
}

func (l *Launcher) stop(p *Process) {
	if !p.Running() {
		return
	}
	if err := p.Kill(); err != nil {
		l.logger.Warn("failed to kill process", "role", p.Role(), "pid", p.PID(), "error", err)
		return
	}
	l.logger.Debug("process killed", "role", p.Role(), "pid", p.PID())
}

// startPipes wires stdin to a pipe and both stdout and stderr to the write
// end of one os.Pipe so the relay sees a single ordered stream.
func startPipes(role string, cmd *exec.Cmd) (*Process, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	// The child owns the write end now; ours must go or EOF never arrives.
	_ = w.Close()

	return newProcess(role, cmd, stdin, r), nil
}
