// Package locator finds a foreign top-level window by its title.
package locator

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/user/cae/internal/platform"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// WindowLister is the slice of platform.Backend the locator needs.
type WindowLister interface {
	ListWindows() ([]platform.Window, error)
}

type Locator struct {
	windows  WindowLister
	interval time.Duration
	logger   *slog.Logger
}

func New(windows WindowLister, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		windows:  windows,
		interval: DefaultInterval,
		logger:   logger,
	}
}

// SetInterval changes the poll interval.
func (l *Locator) SetInterval(d time.Duration) {
	if d > 0 {
		l.interval = d
	}
}

// Pattern compiles the title matcher: the exact title, case-insensitive,
// optionally decorated with " - "-separated words on either side, as in
// "model.inp - CalculiX GraphiX" or "CalculiX GraphiX - unsaved".
func Pattern(title string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^(\S+ - )*` + regexp.QuoteMeta(title) + `( - \S+)*$`)
}

// Find polls the window list until a title matches or timeout expires. It
// returns platform.None and false on timeout after logging the visible
// windows. Find never blocks longer than timeout (plus one enumeration).
func (l *Locator) Find(title string, timeout time.Duration) (platform.WindowID, bool) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	re := Pattern(title)
	deadline := time.Now().Add(timeout)

	for {
		if id, ok := l.match(re); ok {
			l.logger.Debug("window found", "title", title, "wid", id.String())
			return id, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		time.Sleep(min(l.interval, remaining))
	}

	l.logger.Error("can't get window", "title", title, "timeout", timeout)
	l.LogWindowList()
	l.logger.Error("communication with window will not work", "title", title)
	return platform.None, false
}

// Match reports whether title would be accepted for pattern.
func Match(pattern, title string) bool {
	return Pattern(pattern).MatchString(title)
}

func (l *Locator) match(re *regexp.Regexp) (platform.WindowID, bool) {
	wins, err := l.windows.ListWindows()
	if err != nil {
		return platform.None, false
	}
	for _, w := range wins {
		if re.MatchString(strings.TrimSpace(w.Title)) {
			return w.ID, true
		}
	}
	return platform.None, false
}

// LogWindowList writes one debug record listing every visible window.
func (l *Locator) LogWindowList() {
	wins, err := l.windows.ListWindows()
	if err != nil {
		l.logger.Debug("window list unavailable", "error", err)
		return
	}
	var b strings.Builder
	b.WriteString("Window list:")
	for _, w := range wins {
		fmt.Fprintf(&b, "\n%s %6d %s", w.ID, w.PID, w.Title)
	}
	l.logger.Debug(b.String(), "count", len(wins))
}
