package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind discriminates the closed set of event variants.
type EventKind int

const (
	SessionDiscovered EventKind = iota
	SessionRemoved
	StateChanged
	HookReceived
)

func (k EventKind) String() string {
	switch k {
	case SessionDiscovered:
		return "session_discovered"
	case SessionRemoved:
		return "session_removed"
	case StateChanged:
		return "state_changed"
	case HookReceived:
		return "hook_received"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// EventType is a tagged variant. From and To are only meaningful for
// StateChanged, HookType only for HookReceived.
type EventType struct {
	Kind     EventKind
	From     SessionState
	To       SessionState
	HookType string
}

// Discovered returns the SessionDiscovered variant.
func Discovered() EventType { return EventType{Kind: SessionDiscovered} }

// Removed returns the SessionRemoved variant.
func Removed() EventType { return EventType{Kind: SessionRemoved} }

// Changed returns a StateChanged variant for the transition from -> to.
func Changed(from, to SessionState) EventType {
	return EventType{Kind: StateChanged, From: from, To: to}
}

// Hook returns a HookReceived variant.
func Hook(hookType string) EventType {
	return EventType{Kind: HookReceived, HookType: hookType}
}

func (t EventType) String() string {
	switch t.Kind {
	case StateChanged:
		return fmt.Sprintf("state_changed(%s -> %s)", t.From, t.To)
	case HookReceived:
		return fmt.Sprintf("hook_received(%s)", t.HookType)
	}
	return t.Kind.String()
}

type eventTypeJSON struct {
	Type     string        `json:"type"`
	From     *SessionState `json:"from,omitempty"`
	To       *SessionState `json:"to,omitempty"`
	HookType *string       `json:"hook_type,omitempty"`
}

func (t EventType) MarshalJSON() ([]byte, error) {
	out := eventTypeJSON{Type: t.Kind.String()}
	switch t.Kind {
	case SessionDiscovered, SessionRemoved:
	case StateChanged:
		from, to := t.From, t.To
		out.From, out.To = &from, &to
	case HookReceived:
		if strings.TrimSpace(t.HookType) == "" {
			return nil, fmt.Errorf("hook_received: hook_type is required")
		}
		hook := t.HookType
		out.HookType = &hook
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownEventType, int(t.Kind))
	}
	return json.Marshal(out)
}

func (t *EventType) UnmarshalJSON(b []byte) error {
	var in eventTypeJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	switch in.Type {
	case "session_discovered":
		*t = Discovered()
	case "session_removed":
		*t = Removed()
	case "state_changed":
		if in.From == nil || in.To == nil {
			return fmt.Errorf("state_changed: from and to are required")
		}
		*t = Changed(*in.From, *in.To)
	case "hook_received":
		if in.HookType == nil || strings.TrimSpace(*in.HookType) == "" {
			return fmt.Errorf("hook_received: hook_type is required")
		}
		*t = Hook(*in.HookType)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, in.Type)
	}
	return nil
}
