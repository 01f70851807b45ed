package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidState is returned when a persisted or transmitted value does not
// name a known SessionState or DetectionMethod.
var ErrInvalidState = errors.New("invalid state")

// ErrUnknownEventType is returned when an encoded event type is outside the
// closed set of event variants.
var ErrUnknownEventType = errors.New("unknown event type")

// Pane is one tmux pane as seen by a single discovery pass. It is rediscovered
// on every poll and is never persisted on its own.
type Pane struct {
	// SessionName is the tmux session the pane lives in.
	SessionName string `json:"session_name"`
	// WindowIndex is the window index within the session.
	WindowIndex int `json:"window_index"`
	// PaneIndex is the pane index within the window.
	PaneIndex int `json:"pane_index"`
	// ID is the stable tmux pane identifier (e.g., "%7").
	ID string `json:"pane_id"`
	// WorkingDir is the pane's current working directory.
	WorkingDir string `json:"working_dir"`
}

// Target returns the human-readable "session:window.pane" address. It is not
// stable across renumbering; use ID to join against stored sessions.
func (p Pane) Target() string {
	return fmt.Sprintf("%s:%d.%d", p.SessionName, p.WindowIndex, p.PaneIndex)
}

// SessionState is the inferred activity of an assistant session.
type SessionState int

const (
	Idle SessionState = iota
	Working
	NeedsInput
	Done
)

var stateNames = [...]string{
	Idle:       "idle",
	Working:    "working",
	NeedsInput: "needs_input",
	Done:       "done",
}

func (s SessionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
	return stateNames[s]
}

// ParseSessionState converts a stored name back into a SessionState.
// Unrecognized names are an error wrapping ErrInvalidState.
func ParseSessionState(s string) (SessionState, error) {
	for i, name := range stateNames {
		if name == s {
			return SessionState(i), nil
		}
	}
	return 0, fmt.Errorf("%w: session state %q", ErrInvalidState, s)
}

func (s SessionState) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("%w: session state %d", ErrInvalidState, int(s))
	}
	return []byte(stateNames[s]), nil
}

func (s *SessionState) UnmarshalText(b []byte) error {
	v, err := ParseSessionState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// DetectionMethod records how a pane was recognized as hosting the assistant.
type DetectionMethod int

const (
	// ProcessName means the pane's foreground command alone identified it.
	ProcessName DetectionMethod = iota
	// PaneContent means the command was a generic runtime and captured text
	// had to confirm it.
	PaneContent
)

func (m DetectionMethod) String() string {
	switch m {
	case ProcessName:
		return "process_name"
	case PaneContent:
		return "pane_content"
	}
	return fmt.Sprintf("DetectionMethod(%d)", int(m))
}

// ParseDetectionMethod is the inverse of DetectionMethod.String.
func ParseDetectionMethod(s string) (DetectionMethod, error) {
	switch s {
	case "process_name":
		return ProcessName, nil
	case "pane_content":
		return PaneContent, nil
	}
	return 0, fmt.Errorf("%w: detection method %q", ErrInvalidState, s)
}

func (m DetectionMethod) MarshalText() ([]byte, error) {
	switch m {
	case ProcessName, PaneContent:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("%w: detection method %d", ErrInvalidState, int(m))
}

func (m *DetectionMethod) UnmarshalText(b []byte) error {
	v, err := ParseDetectionMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Session is the durable record for one live pane hosting the assistant.
type Session struct {
	ID              string          `json:"id"`
	PaneID          string          `json:"pane_id"`
	SessionName     string          `json:"session_name"`
	WindowIndex     int             `json:"window_index"`
	PaneIndex       int             `json:"pane_index"`
	WorkingDir      string          `json:"working_dir"`
	State           SessionState    `json:"state"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	LastActivity    time.Time       `json:"last_activity"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Pane returns the pane location stored on the session.
func (s Session) Pane() Pane {
	return Pane{
		SessionName: s.SessionName,
		WindowIndex: s.WindowIndex,
		PaneIndex:   s.PaneIndex,
		ID:          s.PaneID,
		WorkingDir:  s.WorkingDir,
	}
}

// Event is one immutable entry in the audit log. SessionID is kept after the
// session itself has been removed.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
