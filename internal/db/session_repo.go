package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = errors.New("not found")

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `id, viewer, mode, params, pid, viewer_window, state, exit_code, started_at, ended_at`

func (r *SessionRepo) Create(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session is required")
	}
	if s.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		s.ID = id
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = nowUTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		s.ID,
		s.Viewer,
		s.Mode,
		s.Params,
		s.PID,
		s.ViewerWindow,
		s.State,
		nullableInt(s.ExitCode),
		formatTimestamp(s.StartedAt),
		formatTimestampOrEmpty(s.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %q: %w", id, err)
	}
	return s, nil
}

func (r *SessionRepo) List(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM sessions
ORDER BY started_at DESC, rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*Session, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating sessions: %w", err)
	}
	return out, nil
}

func (r *SessionRepo) Update(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session is required")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE sessions
SET viewer = ?, mode = ?, params = ?, pid = ?, viewer_window = ?, state = ?, exit_code = ?, ended_at = ?
WHERE id = ?
`,
		s.Viewer,
		s.Mode,
		s.Params,
		s.PID,
		s.ViewerWindow,
		s.State,
		nullableInt(s.ExitCode),
		formatTimestampOrEmpty(s.EndedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session %q: %w", s.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for session %q: %w", s.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %q: %w", s.ID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var exitCode sql.NullInt64
	var startedAtRaw, endedAtRaw string
	if err := row.Scan(
		&s.ID,
		&s.Viewer,
		&s.Mode,
		&s.Params,
		&s.PID,
		&s.ViewerWindow,
		&s.State,
		&exitCode,
		&startedAtRaw,
		&endedAtRaw,
	); err != nil {
		return nil, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		s.ExitCode = &code
	}
	var err error
	if s.StartedAt, err = parseTimestamp(startedAtRaw); err != nil {
		return nil, err
	}
	if s.EndedAt, err = parseOptionalTimestamp(endedAtRaw); err != nil {
		return nil, err
	}
	return &s, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
