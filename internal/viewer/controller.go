// Package viewer drives one external viewer session: it launches the viewer,
// finds its window, relays its output, and types commands into it.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"

	"github.com/user/cae/internal/aligner"
	"github.com/user/cae/internal/db"
	"github.com/user/cae/internal/locator"
	"github.com/user/cae/internal/platform"
	"github.com/user/cae/internal/poster"
	"github.com/user/cae/internal/process"
	"github.com/user/cae/internal/registry"
)

const launchRole = "viewer"

var (
	ErrNoSession     = errors.New("no viewer session")
	ErrUnknownViewer = errors.New("unknown viewer profile")
	ErrUnknownSlot   = errors.New("unknown window slot")
	ErrUnknownMode   = errors.New("no viewer mode for file")
)

// History stores sessions and the commands sent to them. *db.History
// satisfies it.
type History interface {
	SaveSession(ctx context.Context, s *db.Session) error
	SaveCommand(ctx context.Context, c *db.SessionCommand) error
}

// Profiles looks up viewer profiles. *registry.Registry satisfies it.
type Profiles interface {
	Get(id string) *registry.ViewerProfile
}

type Options struct {
	// Viewer is the profile id to launch.
	Viewer string
	// Executable overrides the profile's executable when set.
	Executable string
	// ScriptsDir resolves relative startup script names.
	ScriptsDir    string
	AlignWindows  bool
	LocateTimeout time.Duration
	// HelpTitle is the title of the browser window help pages open in.
	// Empty leaves the help slot alone.
	HelpTitle string
	UsePTY    bool
}

type session struct {
	id     string
	proc   *process.Process
	relay  *process.Relay
	state  State
	record *db.Session
}

// Controller owns the viewer session and every window slot. All operations
// are serialized on one mutex, so a locate or a post blocks the next caller
// until it finishes.
type Controller struct {
	mu       sync.Mutex
	opts     Options
	backend  platform.Backend
	profiles Profiles
	launcher *process.Launcher
	locator  *locator.Locator
	poster   *poster.Poster
	aligner  *aligner.Aligner
	history  History
	logger   *slog.Logger

	session *session
	slots   aligner.Slots
	relays  []*process.Relay

	statusMu sync.Mutex
	status   Status
	onChange func(Status)

	openURL func(string) error
}

func New(opts Options, backend platform.Backend, profiles Profiles, history History, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LocateTimeout <= 0 {
		opts.LocateTimeout = locator.DefaultTimeout
	}
	launcher := process.NewLauncher(logger)
	launcher.SetPTY(opts.UsePTY)

	c := &Controller{
		opts:     opts,
		backend:  backend,
		profiles: profiles,
		launcher: launcher,
		locator:  locator.New(backend, logger),
		poster:   poster.New(backend, logger),
		aligner:  aligner.New(backend, logger),
		history:  history,
		logger:   logger,
		openURL:  openBrowser,
	}
	c.status = Status{Viewer: opts.Viewer, State: StateIdle}
	return c
}

// OnChange registers fn to receive every status change. fn runs with the
// controller locked and must not call back into it.
func (c *Controller) OnChange(fn func(Status)) {
	c.statusMu.Lock()
	c.onChange = fn
	c.statusMu.Unlock()
}

// Status returns the latest snapshot without waiting for a running
// operation.
func (c *Controller) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// AdoptActiveWindow stores the window that currently has focus as the host
// slot. Focus returns there after a focus-stealing post.
func (c *Controller) AdoptActiveWindow() platform.WindowID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.backend.ActiveWindow()
	if err != nil || !id.Valid() {
		c.logger.Warn("no active window to adopt as host", "error", err)
		return platform.None
	}
	c.slots.Host = id
	c.logger.Debug("host window adopted", "wid", id.String())
	c.publishLocked()
	return id
}

// RunCGX starts the configured viewer with params, replacing any running
// session. It fails only when the viewer cannot be started; a window that
// never shows up leaves the session terminated with the process running.
func (c *Controller) RunCGX(mode, params string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	profile := c.profiles.Get(c.opts.Viewer)
	if profile == nil {
		c.logger.Error("viewer profile not found", "viewer", c.opts.Viewer)
		return fmt.Errorf("%w: %s", ErrUnknownViewer, c.opts.Viewer)
	}
	exe := profile.Executable
	if c.opts.Executable != "" {
		exe = c.opts.Executable
	}
	if _, err := process.Resolve(exe); err != nil {
		c.logger.Error("viewer not found", "path", exe)
		return err
	}
	args, err := shellquote.Split(params)
	if err != nil {
		return fmt.Errorf("parse viewer params: %w", err)
	}

	c.teardownLocked()

	s := &session{
		id:    uuid.NewString(),
		state: StateLaunching,
		record: &db.Session{
			Viewer:    profile.ID,
			Mode:      mode,
			Params:    params,
			State:     string(StateLaunching),
			StartedAt: time.Now().UTC(),
		},
	}
	s.record.ID = s.id
	c.session = s
	c.slots.Viewer = platform.None
	c.saveSessionLocked(s)
	c.publishLocked()

	proc, err := c.launcher.Launch(launchRole, exe, args)
	if err != nil {
		c.endLocked(s, -1)
		return err
	}
	s.proc = proc
	s.record.PID = proc.PID()
	c.logger.Debug("viewer started", "viewer", profile.ID, "pid", proc.PID())

	s.relay = process.NewRelay(fmt.Sprintf("%s-%d", profile.ID, proc.PID()), profile.ID, proc.Stdout(), c.logger)
	c.addRelayLocked(s.relay)
	s.relay.Start()
	go c.watchExit(s)

	c.setStateLocked(s, StateWaiting)
	wid, ok := c.locator.Find(profile.WindowTitle, c.opts.LocateTimeout)
	if !ok {
		// The process stays up: the user may still be working in it.
		c.setStateLocked(s, StateTerminated)
		return nil
	}
	c.slots.Viewer = wid
	s.record.ViewerWindow = wid.String()
	c.setStateLocked(s, StateReady)

	if c.opts.AlignWindows {
		c.alignLocked()
	}

	for _, name := range profile.StartupScripts {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.opts.ScriptsDir, name)
		}
		if _, err := os.Stat(path); err != nil {
			c.logger.Error("startup script not found", "path", path)
			continue
		}
		c.postLocked("read " + path)
	}
	return nil
}

// OpenInp opens an input deck in pre-processing mode.
func (c *Controller) OpenInp(path string) error {
	return c.openMode(ModeInp, path)
}

// OpenFrd opens a results file in post-processing mode.
func (c *Controller) OpenFrd(path string) error {
	return c.openMode(ModeFrd, path)
}

// OpenFile picks the mode from the file extension.
func (c *Controller) OpenFile(path string) error {
	profile := c.profiles.Get(c.opts.Viewer)
	if profile == nil {
		return fmt.Errorf("%w: %s", ErrUnknownViewer, c.opts.Viewer)
	}
	m, ok := profile.ModeForExt(filepath.Ext(path))
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMode, path)
	}
	return c.RunCGX(m.Name, shellquote.Join(m.Flag, path))
}

func (c *Controller) openMode(mode, path string) error {
	profile := c.profiles.Get(c.opts.Viewer)
	if profile == nil {
		return fmt.Errorf("%w: %s", ErrUnknownViewer, c.opts.Viewer)
	}
	m, ok := profile.Mode(mode)
	if !ok {
		return fmt.Errorf("%w: mode %s", ErrUnknownMode, mode)
	}
	return c.RunCGX(mode, shellquote.Join(m.Flag, path))
}

// Post types cmd into the viewer window. It reports whether the command was
// delivered; without a live session it does nothing.
func (c *Controller) Post(cmd string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.postLocked(cmd)
}

func (c *Controller) postLocked(cmd string) bool {
	t := c.targetLocked()
	if !t.Ready() {
		return false
	}
	ok := c.poster.Post(t, cmd)
	c.saveCommandLocked("post", cmd, ok)
	return ok
}

func (c *Controller) targetLocked() poster.Target {
	t := poster.Target{Window: c.slots.Viewer, Home: c.slots.Host}
	if c.session != nil && c.session.proc != nil {
		t.Process = c.session.proc
	}
	return t
}

// SendHotkey presses keys as one chord into the focused window.
func (c *Controller) SendHotkey(keys ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.poster.SendHotkey(keys...)
	c.saveCommandLocked("hotkey", strings.Join(keys, "+"), ok)
	return ok
}

// Align lays out every known window and returns how many moved.
func (c *Controller) Align() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alignLocked()
}

func (c *Controller) alignLocked() int {
	s := c.session
	ready := s != nil && s.state == StateReady
	if ready {
		c.setStateLocked(s, StateAligning)
	}
	moved, err := c.aligner.Align(c.slots)
	if err != nil {
		c.logger.Error("align failed", "error", err)
	}
	if ready && s.state == StateAligning {
		c.setStateLocked(s, StateReady)
	}
	c.saveCommandLocked("align", fmt.Sprintf("%d", moved), err == nil)
	return moved
}

// Kill terminates the current session's viewer.
func (c *Controller) Kill() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || !c.session.proc.Running() {
		return ErrNoSession
	}
	c.teardownLocked()
	return nil
}

// StopRelays stops every relay still draining output and gives them one
// grace period to finish.
func (c *Controller) StopRelays() {
	c.mu.Lock()
	var active []*process.Relay
	for _, r := range c.relays {
		if r.Active() {
			active = append(active, r)
		}
	}
	c.relays = nil
	c.mu.Unlock()

	if len(active) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString("Stopping relays:")
	for _, r := range active {
		b.WriteString("\n" + r.Name())
		r.Stop()
	}
	c.logger.Debug(b.String())

	deadline := time.Now().Add(process.StopGrace)
	for _, r := range active {
		if !r.Wait(time.Until(deadline)) {
			c.logger.Warn("relay did not stop in time", "relay", r.Name())
		}
	}
}

// SetWindow assigns id to slot. platform.None clears the slot.
func (c *Controller) SetWindow(slot string, id platform.WindowID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := slotPtr(&c.slots, slot)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	*p = id
	c.publishLocked()
	return nil
}

// LocateWindow looks for a window titled title and stores it in slot.
func (c *Controller) LocateWindow(slot, title string) (platform.WindowID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := slotPtr(&c.slots, slot)
	if p == nil {
		return platform.None, fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	id, ok := c.locator.Find(title, c.opts.LocateTimeout)
	if !ok {
		return platform.None, nil
	}
	*p = id
	c.publishLocked()
	return id, nil
}

// Windows returns every visible top-level window.
func (c *Controller) Windows() ([]platform.Window, error) {
	return c.backend.ListWindows()
}

// OpenHelp opens url in the browser. When a help window title is
// configured the browser window is tracked in the help slot and aligned.
func (c *Controller) OpenHelp(url string) bool {
	c.logger.Info("opening help page", "url", url)
	if err := c.openURL(url); err != nil {
		c.logger.Warn("can't open url", "url", url, "error", err)
		return false
	}
	if c.opts.HelpTitle == "" {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.locator.Find(c.opts.HelpTitle, c.opts.LocateTimeout); ok {
		c.slots.Help = id
		c.publishLocked()
		if c.opts.AlignWindows {
			c.alignLocked()
		}
	}
	return true
}

// Close kills the viewer and stops all relays.
func (c *Controller) Close() {
	c.mu.Lock()
	c.teardownLocked()
	c.launcher.Close()
	c.mu.Unlock()
	c.StopRelays()
}

// teardownLocked kills the current session's process and waits for it to
// go away so the next launch never overlaps it.
func (c *Controller) teardownLocked() {
	s := c.session
	if s == nil {
		return
	}
	if s.proc != nil && s.proc.Running() {
		c.launcher.Kill(launchRole)
		if !s.proc.Wait(process.StopGrace) {
			c.logger.Warn("viewer still running after kill", "pid", s.proc.PID())
		}
	}
	code := -1
	if s.proc != nil {
		code, _ = s.proc.Poll()
	}
	c.endLocked(s, code)
}

func (c *Controller) endLocked(s *session, code int) {
	if s.record.EndedAt.IsZero() {
		s.record.EndedAt = time.Now().UTC()
		s.record.ExitCode = &code
	}
	if c.session == s {
		c.slots.Viewer = platform.None
	}
	c.setStateLocked(s, StateTerminated)
}

// watchExit moves the session to terminated once its process is gone.
func (c *Controller) watchExit(s *session) {
	<-s.proc.Done()
	code, _ := s.proc.Poll()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.record.EndedAt.IsZero() {
		return
	}
	c.logger.Info("viewer exited", "pid", s.proc.PID(), "exit_code", code)
	c.endLocked(s, code)
}

func (c *Controller) setStateLocked(s *session, st State) {
	if s.state == st && st != StateTerminated {
		return
	}
	s.state = st
	s.record.State = string(st)
	c.saveSessionLocked(s)
	c.publishLocked()
}

func (c *Controller) addRelayLocked(r *process.Relay) {
	kept := c.relays[:0]
	for _, old := range c.relays {
		if old.Active() {
			kept = append(kept, old)
		}
	}
	c.relays = append(kept, r)
}

func (c *Controller) publishLocked() {
	st := Status{Viewer: c.opts.Viewer, State: StateIdle, Windows: c.slots}
	if s := c.session; s != nil {
		st.SessionID = s.id
		st.Viewer = s.record.Viewer
		st.Mode = s.record.Mode
		st.Params = s.record.Params
		st.State = s.state
		st.ExitCode = s.record.ExitCode
		if s.proc != nil {
			st.PID = s.proc.PID()
			st.Running = s.proc.Running()
		}
	}

	c.statusMu.Lock()
	c.status = st
	fn := c.onChange
	c.statusMu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (c *Controller) saveSessionLocked(s *session) {
	if c.history == nil {
		return
	}
	rec := *s.record
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.history.SaveSession(ctx, &rec); err != nil {
		c.logger.Warn("failed to save session", "session_id", s.id, "error", err)
	}
}

func (c *Controller) saveCommandLocked(op, payload string, delivered bool) {
	if c.history == nil || c.session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.history.SaveCommand(ctx, &db.SessionCommand{
		SessionID: c.session.id,
		Op:        op,
		Payload:   payload,
		Delivered: delivered,
	})
	if err != nil {
		c.logger.Warn("failed to save command", "session_id", c.session.id, "op", op, "error", err)
	}
}
