package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/timvw/pane-tracker/internal/model"
)

// AppendEvent adds an event to the log and returns its id. payload may be
// nil; otherwise it must be valid JSON.
//
// The stored timestamp never precedes the session's latest event, so
// timestamp order within a session matches insertion order even when
// writers read their clocks at different times.
func (c conn) AppendEvent(ctx context.Context, sessionID string, et model.EventType, payload json.RawMessage, ts time.Time) (int64, error) {
	typeJSON, err := json.Marshal(et)
	if err != nil {
		return 0, fmt.Errorf("encode event type: %w", err)
	}
	var payloadArg any
	if len(payload) > 0 {
		if !json.Valid(payload) {
			return 0, fmt.Errorf("append event: payload is not valid JSON")
		}
		payloadArg = string(payload)
	}
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, payload, timestamp)
		VALUES (?, ?, ?, MAX(?, COALESCE((SELECT MAX(timestamp) FROM events WHERE session_id = ?), 0)))`,
		sessionID, string(typeJSON), payloadArg, toMillis(ts), sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return id, nil
}

// GetEvents returns up to limit events for a session, newest first.
func (c conn) GetEvents(ctx context.Context, sessionID string, limit int) ([]model.Event, error) {
	if limit <= 0 {
		return []model.Event{}, nil
	}
	return c.queryEvents(ctx, `
		SELECT id, session_id, event_type, payload, timestamp FROM events
		WHERE session_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, sessionID, limit)
}

// GetRecentEvents returns up to limit events across all sessions, newest first.
func (c conn) GetRecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		return []model.Event{}, nil
	}
	return c.queryEvents(ctx, `
		SELECT id, session_id, event_type, payload, timestamp FROM events
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
}

func (c conn) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var (
			e        model.Event
			typeJSON string
			payload  *string
			ts       int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &typeJSON, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(typeJSON), &e.Type); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
		if payload != nil {
			e.Payload = json.RawMessage(*payload)
		}
		e.Timestamp = fromMillis(ts)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return events, nil
}
