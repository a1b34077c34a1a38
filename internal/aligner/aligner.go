// Package aligner arranges the host, dialog, viewer and help windows into a
// fixed two-column layout.
package aligner

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/user/cae/internal/platform"
)

// DefaultSettle is the pause between restoring a window and moving it.
// Window managers ignore geometry requests on windows still animating out of
// a maximized or minimized state.
const DefaultSettle = 300 * time.Millisecond

// Placer is the slice of platform.Backend the aligner needs.
type Placer interface {
	WorkArea() (platform.Rect, error)
	Restore(id platform.WindowID) error
	MoveResize(id platform.WindowID, r platform.Rect) error
	Flush() error
}

// Slots are the windows the layout knows about. Zero ids are skipped.
type Slots struct {
	Host   platform.WindowID `json:"host"`
	Dialog platform.WindowID `json:"dialog"`
	Viewer platform.WindowID `json:"viewer"`
	Help   platform.WindowID `json:"help"`
}

type Aligner struct {
	placer Placer
	settle time.Duration
	logger *slog.Logger
}

func New(placer Placer, logger *slog.Logger) *Aligner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aligner{placer: placer, settle: DefaultSettle, logger: logger}
}

// SetSettle overrides the restore settle delay.
func (a *Aligner) SetSettle(d time.Duration) {
	a.settle = d
}

// Layout splits area into a left third and a right two thirds. Both columns
// take the full height.
func Layout(area platform.Rect) (left, right platform.Rect) {
	third := area.Width / 3
	rightX := area.X + (area.Width+2)/3
	left = platform.Rect{X: area.X, Y: area.Y, Width: third, Height: area.Height}
	right = platform.Rect{X: rightX, Y: area.Y, Width: area.Width * 2 / 3, Height: area.Height}
	return left, right
}

// Align places every known window and returns how many were moved. Host and
// dialog share the left column, viewer and help share the right one. A
// window that cannot be placed is logged and skipped.
func (a *Aligner) Align(s Slots) (int, error) {
	area, err := a.placer.WorkArea()
	if err != nil {
		return 0, fmt.Errorf("get work area: %w", err)
	}
	left, right := Layout(area)

	moved := 0
	for _, item := range []struct {
		slot string
		id   platform.WindowID
		rect platform.Rect
	}{
		{"host", s.Host, left},
		{"dialog", s.Dialog, left},
		{"viewer", s.Viewer, right},
		{"help", s.Help, right},
	} {
		if !item.id.Valid() {
			continue
		}
		if a.place(item.slot, item.id, item.rect) {
			moved++
		}
	}

	if err := a.placer.Flush(); err != nil {
		a.logger.Warn("flush after align failed", "error", err)
	}
	return moved, nil
}

func (a *Aligner) place(slot string, id platform.WindowID, r platform.Rect) bool {
	if err := a.placer.Restore(id); err != nil {
		a.logger.Warn("failed to restore window", "slot", slot, "wid", id.String(), "error", err)
	}
	if a.settle > 0 {
		time.Sleep(a.settle)
	}
	if err := a.placer.MoveResize(id, r); err != nil {
		a.logger.Warn("failed to move window", "slot", slot, "wid", id.String(), "error", err)
		return false
	}
	a.logger.Debug("window aligned", "slot", slot, "wid", id.String(),
		"x", r.X, "y", r.Y, "width", r.Width, "height", r.Height)
	return true
}
