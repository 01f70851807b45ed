package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseSessionState(t *testing.T) {
	tests := []struct {
		in   string
		want SessionState
	}{
		{"idle", Idle},
		{"working", Working},
		{"needs_input", NeedsInput},
		{"done", Done},
	}
	for _, tt := range tests {
		got, err := ParseSessionState(tt.in)
		if err != nil {
			t.Fatalf("ParseSessionState(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseSessionState(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got.String() != tt.in {
			t.Errorf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestParseSessionStateRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "Idle", "blocked", "needs-input"} {
		if _, err := ParseSessionState(in); !errors.Is(err, ErrInvalidState) {
			t.Errorf("ParseSessionState(%q) err = %v, want ErrInvalidState", in, err)
		}
	}
}

func TestSessionStateJSONRejectsUnknown(t *testing.T) {
	var s struct {
		State SessionState `json:"state"`
	}
	err := json.Unmarshal([]byte(`{"state":"sleeping"}`), &s)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestParseDetectionMethod(t *testing.T) {
	for _, m := range []DetectionMethod{ProcessName, PaneContent} {
		got, err := ParseDetectionMethod(m.String())
		if err != nil {
			t.Fatalf("ParseDetectionMethod(%q): %v", m, err)
		}
		if got != m {
			t.Errorf("got %v, want %v", got, m)
		}
	}
	if _, err := ParseDetectionMethod("heuristic"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestEventTypeJSON(t *testing.T) {
	tests := []struct {
		name string
		in   EventType
		want string
	}{
		{"discovered", Discovered(), `{"type":"session_discovered"}`},
		{"removed", Removed(), `{"type":"session_removed"}`},
		{"changed", Changed(Working, Done), `{"type":"state_changed","from":"working","to":"done"}`},
		{"hook", Hook("Stop"), `{"type":"hook_received","hook_type":"Stop"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("got %s, want %s", b, tt.want)
			}
			var back EventType
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != tt.in {
				t.Errorf("decoded %+v, want %+v", back, tt.in)
			}
		})
	}
}

func TestEventTypeUnmarshalStrict(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"unknown variant", `{"type":"session_paused"}`, ErrUnknownEventType},
		{"bad state", `{"type":"state_changed","from":"working","to":"asleep"}`, ErrInvalidState},
		{"missing to", `{"type":"state_changed","from":"working"}`, nil},
		{"missing hook type", `{"type":"hook_received"}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var et EventType
			err := json.Unmarshal([]byte(tt.in), &et)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPaneTarget(t *testing.T) {
	p := Pane{SessionName: "main", WindowIndex: 2, PaneIndex: 1, ID: "%7"}
	if got := p.Target(); got != "main:2.1" {
		t.Errorf("Target() = %q, want %q", got, "main:2.1")
	}
}
