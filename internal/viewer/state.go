package viewer

import (
	"github.com/user/cae/internal/aligner"
	"github.com/user/cae/internal/platform"
)

// State is where a viewer session is in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateLaunching  State = "launching"
	StateWaiting    State = "waiting_for_window"
	StateReady      State = "ready"
	StateAligning   State = "aligning"
	StateTerminated State = "terminated"
)

// Mode tags record which kind of file a session was opened for.
const (
	ModeInp = "inp"
	ModeFrd = "frd"
)

// Window slots accepted by SetWindow and LocateWindow.
const (
	SlotHost   = "host"
	SlotDialog = "dialog"
	SlotViewer = "viewer"
	SlotHelp   = "help"
)

// Status is a snapshot of the controller for display.
type Status struct {
	SessionID string        `json:"session_id,omitempty"`
	Viewer    string        `json:"viewer"`
	Mode      string        `json:"mode,omitempty"`
	Params    string        `json:"params,omitempty"`
	State     State         `json:"state"`
	PID       int           `json:"pid,omitempty"`
	Running   bool          `json:"running"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Windows   aligner.Slots `json:"windows"`
}

func slotPtr(s *aligner.Slots, slot string) *platform.WindowID {
	switch slot {
	case SlotHost:
		return &s.Host
	case SlotDialog:
		return &s.Dialog
	case SlotViewer:
		return &s.Viewer
	case SlotHelp:
		return &s.Help
	default:
		return nil
	}
}
