package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/timvw/pane-tracker/internal/model"
)

const sessionColumns = `id, pane_id, session_name, window_index, pane_index, working_dir,
	state, detection_method, last_activity, created_at, updated_at`

// CreateSession inserts a new session. A second session for the same pane
// fails with ErrDuplicatePane.
func (c conn) CreateSession(ctx context.Context, s model.Session) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PaneID, s.SessionName, s.WindowIndex, s.PaneIndex, s.WorkingDir,
		s.State.String(), s.DetectionMethod.String(),
		toMillis(s.LastActivity), toMillis(s.CreatedAt), toMillis(s.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create session for pane %s: %w", s.PaneID, ErrDuplicatePane)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSession overwrites the mutable fields of an existing session: its
// location, state, detection method and timestamps. CreatedAt is kept.
func (c conn) UpdateSession(ctx context.Context, s model.Session) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE sessions SET
			session_name = ?, window_index = ?, pane_index = ?, working_dir = ?,
			state = ?, detection_method = ?, last_activity = ?, updated_at = ?
		WHERE id = ?`,
		s.SessionName, s.WindowIndex, s.PaneIndex, s.WorkingDir,
		s.State.String(), s.DetectionMethod.String(),
		toMillis(s.LastActivity), toMillis(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update session %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

// DeleteSession removes a session. It reports whether a row existed.
func (c conn) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return n > 0, nil
}

// GetSession returns the session with the given id, or ErrNotFound.
func (c conn) GetSession(ctx context.Context, id string) (model.Session, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// GetSessionByPane returns the session for a pane, or ErrNotFound.
func (c conn) GetSessionByPane(ctx context.Context, paneID string) (model.Session, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE pane_id = ?`, paneID)
	return scanSession(row)
}

// ListSessions returns all sessions, newest created first.
func (c conn) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanSession decodes one row. A stored state or detection method that does
// not parse fails with model.ErrInvalidState.
func scanSession(sc scanner) (model.Session, error) {
	var (
		s                              model.Session
		state, method                  string
		lastActivity, created, updated int64
	)
	err := sc.Scan(&s.ID, &s.PaneID, &s.SessionName, &s.WindowIndex, &s.PaneIndex, &s.WorkingDir,
		&state, &method, &lastActivity, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("scan session: %w", err)
	}
	if s.State, err = model.ParseSessionState(state); err != nil {
		return model.Session{}, fmt.Errorf("session %s: %w", s.ID, err)
	}
	if s.DetectionMethod, err = model.ParseDetectionMethod(method); err != nil {
		return model.Session{}, fmt.Errorf("session %s: %w", s.ID, err)
	}
	s.LastActivity = fromMillis(lastActivity)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	return s, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
