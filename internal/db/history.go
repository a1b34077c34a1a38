package db

import (
	"context"
	"errors"
)

// History records viewer sessions and the commands sent to them.
type History struct {
	sessions *SessionRepo
	commands *SessionCommandRepo
}

func NewHistory(d *DB) *History {
	return &History{
		sessions: NewSessionRepo(d.SQL()),
		commands: NewSessionCommandRepo(d.SQL()),
	}
}

// SaveSession inserts s or overwrites the stored copy.
func (h *History) SaveSession(ctx context.Context, s *Session) error {
	err := h.sessions.Update(ctx, s)
	if errors.Is(err, ErrNotFound) {
		return h.sessions.Create(ctx, s)
	}
	return err
}

func (h *History) SaveCommand(ctx context.Context, c *SessionCommand) error {
	return h.commands.Create(ctx, c)
}

func (h *History) Session(ctx context.Context, id string) (*Session, error) {
	return h.sessions.Get(ctx, id)
}

func (h *History) Sessions(ctx context.Context, limit int) ([]*Session, error) {
	return h.sessions.List(ctx, limit)
}

func (h *History) Commands(ctx context.Context, sessionID string, limit int) ([]*SessionCommand, error) {
	return h.commands.ListBySession(ctx, sessionID, limit)
}
