package process

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// StopGrace is how long callers should wait after Stop before treating the
// relay's stream as released.
const StopGrace = time.Second

const maxLineBytes = 1024 * 1024

// Relay drains one output stream on a background goroutine and forwards each
// line to the logger tagged with its origin.
type Relay struct {
	name   string
	origin string
	stream io.ReadCloser
	logger *slog.Logger

	active   atomic.Bool
	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	start    sync.Once
	done     chan struct{}
}

func NewRelay(name, origin string, stream io.ReadCloser, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		name:   name,
		origin: origin,
		stream: stream,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Name identifies the relay in diagnostics.
func (r *Relay) Name() string { return r.name }

// Start launches the worker. Calling Start more than once has no effect.
func (r *Relay) Start() {
	r.start.Do(func() {
		r.active.Store(true)
		r.started.Store(true)
		go r.run()
	})
}

func (r *Relay) run() {
	defer close(r.done)
	defer r.active.Store(false)

	scanner := bufio.NewScanner(r.stream)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	scanner.Split(scanCappedLines)
	for scanner.Scan() {
		if r.stopped() {
			return
		}
		if text := strings.TrimRight(cleanLine(scanner.Text()), " \t"); strings.TrimSpace(text) != "" {
			r.logger.Info(text, "origin", r.origin)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) && !r.stopped() {
		// A pty master reports EIO once the child is gone.
		r.logger.Debug("relay stream ended", "relay", r.name, "error", err)
	}
}

// scanCappedLines splits like bufio.ScanLines but emits a line longer than
// maxLineBytes as consecutive chunks so the stream keeps flowing.
func scanCappedLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= maxLineBytes {
		return maxLineBytes, data[:maxLineBytes], nil
	}
	return advance, token, err
}

func (r *Relay) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Stop signals the worker and closes the stream so a pending read returns.
// It never blocks on the worker and may be called any number of times.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		_ = r.stream.Close()
	})
}

// Active reports whether the worker is still draining the stream.
func (r *Relay) Active() bool { return r.active.Load() }

// Done is closed when the worker has exited.
func (r *Relay) Done() <-chan struct{} { return r.done }

// Wait blocks until the worker exits or grace passes. It reports whether the
// worker exited. A relay that was never started counts as exited.
func (r *Relay) Wait(grace time.Duration) bool {
	if !r.started.Load() {
		return true
	}
	select {
	case <-r.done:
		return true
	case <-time.After(grace):
		return false
	}
}
