package ipc

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		line string
		want Message
	}{
		{`{"type":"ping"}`, Ping()},
		{`{"type":"pong"}`, Pong()},
		{`{"type":"error","message":"boom"}`, Message{Type: TypeError, Text: "boom"}},
		{`{"type":"error","message":""}`, Message{Type: TypeError}},
	}
	for _, tt := range tests {
		got, err := Decode([]byte(tt.line))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tt.line, err)
		}
		if got != tt.want {
			t.Errorf("Decode(%s) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		line    string
		unknown bool
	}{
		{`{"type":"status"}`, true},
		{`{"type":""}`, true},
		{`{}`, true},
		{`{"type":"error"}`, false},
		{`not json`, false},
	}
	for _, tt := range tests {
		_, err := Decode([]byte(tt.line))
		if err == nil {
			t.Errorf("Decode(%s): expected error", tt.line)
			continue
		}
		if got := errors.Is(err, ErrUnknownMessage); got != tt.unknown {
			t.Errorf("Decode(%s): errors.Is(ErrUnknownMessage) = %v, want %v", tt.line, got, tt.unknown)
		}
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		in   Message
		want string
	}{
		{Ping(), "{\"type\":\"ping\"}\n"},
		{Pong(), "{\"type\":\"pong\"}\n"},
		{Errorf("bad %s", "input"), "{\"type\":\"error\",\"message\":\"bad input\"}\n"},
	}
	for _, tt := range tests {
		b, err := Encode(tt.in)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", tt.in, err)
		}
		if string(b) != tt.want {
			t.Errorf("Encode(%+v) = %q, want %q", tt.in, b, tt.want)
		}
	}

	if _, err := Encode(Message{Type: "status"}); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestRespond(t *testing.T) {
	if reply, ok := Respond(Ping()); !ok || reply != Pong() {
		t.Errorf("Respond(ping) = %+v, %v", reply, ok)
	}
	for _, m := range []Message{Pong(), Errorf("x")} {
		if _, ok := Respond(m); ok {
			t.Errorf("Respond(%s) should not reply", m.Type)
		}
	}
}
