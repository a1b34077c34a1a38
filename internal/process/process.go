package process

import (
	"errors"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Process is a running child with piped standard streams. Stderr is merged
// into Stdout.
type Process struct {
	role string
	cmd  *exec.Cmd

	// stdin stays open for the child's lifetime so it never reads EOF.
	stdin  io.WriteCloser
	stdout io.ReadCloser

	done     chan struct{}
	mu       sync.Mutex
	exitCode int
	waitErr  error
	killOnce sync.Once
}

func newProcess(role string, cmd *exec.Cmd, stdin io.WriteCloser, stdout io.ReadCloser) *Process {
	p := &Process{
		role:     role,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		done:     make(chan struct{}),
		exitCode: -1,
	}
	go p.waitExit()
	return p
}

// waitExit reaps the child and records its exit status.
func (p *Process) waitExit() {
	err := p.cmd.Wait()

	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	p.mu.Lock()
	p.exitCode = code
	p.waitErr = err
	p.mu.Unlock()
	close(p.done)
}

// Role is the name the launcher manages this process under.
func (p *Process) Role() string { return p.role }

// PID returns the child's process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stdout returns the merged stdout/stderr stream.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// Done is closed when the child has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Poll is a non-blocking liveness check. While the child runs it returns
// (0, true); afterwards the exit code and false. A child killed by a signal
// reports -1, as does a nil process.
func (p *Process) Poll() (int, bool) {
	if p == nil {
		return -1, false
	}
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exitCode, false
	default:
		return 0, true
	}
}

// Running reports whether the child has not exited yet.
func (p *Process) Running() bool {
	_, running := p.Poll()
	return running
}

// Wait blocks until the child exits or timeout passes and reports whether it
// exited.
func (p *Process) Wait(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Kill terminates the child and everything it spawned. Killing an exited
// process is not an error.
func (p *Process) Kill() error {
	if !p.Running() {
		return nil
	}
	var err error
	p.killOnce.Do(func() {
		err = killTree(p.cmd)
	})
	if err != nil && !p.Running() {
		return nil
	}
	return err
}
