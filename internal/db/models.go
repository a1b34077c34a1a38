package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is the stored record of one viewer run.
type Session struct {
	ID           string    `json:"id"`
	Viewer       string    `json:"viewer"`
	Mode         string    `json:"mode"`
	Params       string    `json:"params"`
	PID          int       `json:"pid"`
	ViewerWindow string    `json:"viewer_window,omitempty"`
	State        string    `json:"state"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at,omitempty"`
}

// SessionCommand is one post, hotkey or align issued during a session.
type SessionCommand struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Op        string    `json:"op"`
	Payload   string    `json:"payload"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func formatTimestampOrEmpty(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return formatTimestamp(ts)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}

func parseOptionalTimestamp(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return parseTimestamp(raw)
}
