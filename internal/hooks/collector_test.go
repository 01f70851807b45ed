package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timvw/pane-tracker/internal/registry"
)

type recorded struct {
	paneID   string
	hookType string
	payload  string
}

type fakeRecorder struct {
	mu    sync.Mutex
	known map[string]bool
	got   []recorded
}

func (f *fakeRecorder) RecordHook(_ context.Context, paneID, hookType string, payload json.RawMessage) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.known[paneID] {
		return 0, fmt.Errorf("%w: %s", registry.ErrUnknownPane, paneID)
	}
	f.got = append(f.got, recorded{paneID, hookType, string(payload)})
	return int64(len(f.got)), nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func startCollector(t *testing.T, rec Recorder) (*Collector, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socketPath := shortSocketPath(t)
	c := NewCollector(rec, socketPath)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start collector: %v", err)
	}
	return c, socketPath
}

func TestCollector_StartBindsSocket(t *testing.T) {
	_, socketPath := startCollector(t, &fakeRecorder{})
	st, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("expected socket at %s: %v", socketPath, err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Errorf("socket mode: got %v, want 0600", st.Mode().Perm())
	}
}

func TestCollector_RecordsHook(t *testing.T) {
	rec := &fakeRecorder{known: map[string]bool{"%3": true}}
	_, socketPath := startCollector(t, rec)

	err := Send(socketPath, Hook{PaneID: "%3", HookType: "Stop", Payload: json.RawMessage(`{"reason":"end_turn"}`)})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, time.Second, func() bool { return rec.count() == 1 })
	got := rec.got[0]
	if got.paneID != "%3" || got.hookType != "Stop" {
		t.Errorf("got %+v", got)
	}
	if got.payload != `{"reason":"end_turn"}` {
		t.Errorf("payload: got %q", got.payload)
	}
}

func TestCollector_DropsUnknownPane(t *testing.T) {
	rec := &fakeRecorder{known: map[string]bool{"%3": true}}
	_, socketPath := startCollector(t, rec)

	if err := Send(socketPath, Hook{PaneID: "%9", HookType: "Stop"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := Send(socketPath, Hook{PaneID: "%3", HookType: "Notification"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, time.Second, func() bool { return rec.count() == 1 })
	if rec.got[0].paneID != "%3" {
		t.Errorf("recorded wrong pane: %+v", rec.got[0])
	}
}

func TestCollector_IgnoresMalformed(t *testing.T) {
	rec := &fakeRecorder{known: map[string]bool{"%1": true}}
	_, socketPath := startCollector(t, rec)

	for _, payload := range []string{
		`not-json`,
		`{"pane_id":"main:0.1","hook_type":"Stop"}`,
		`{"pane_id":"%1"}`,
	} {
		if err := sendDatagram(socketPath, []byte(payload)); err != nil {
			t.Fatalf("send datagram: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Fatalf("expected 0 hooks for malformed payloads, got %d", got)
	}
}

func TestCollector_RejectsOversizedPayload(t *testing.T) {
	rec := &fakeRecorder{known: map[string]bool{"%1": true}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socketPath := shortSocketPath(t)
	c := NewCollector(rec, socketPath)
	c.MaxPayloadBytes = 64
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start collector: %v", err)
	}

	big := `{"pane_id":"%1","hook_type":"Stop","payload":"` + strings.Repeat("a", 128) + `"}`
	if err := sendDatagram(socketPath, []byte(big)); err != nil {
		t.Fatalf("send datagram: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Fatalf("expected 0 hooks for oversized payload, got %d", got)
	}
}

func TestCollector_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	socketPath := shortSocketPath(t)
	c := NewCollector(&fakeRecorder{}, socketPath)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	waitFor(t, time.Second, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket not removed: %v", err)
	}
}

func TestCollector_IgnoresSenderTimestamp(t *testing.T) {
	rec := &fakeRecorder{known: map[string]bool{"%4": true}}
	_, socketPath := startCollector(t, rec)

	// Older senders stamped datagrams; the field is accepted and ignored.
	if err := sendDatagram(socketPath, []byte(`{"pane_id":"%4","hook_type":"Stop","ts":"2001-01-01T00:00:00Z"}`)); err != nil {
		t.Fatalf("send datagram: %v", err)
	}
	waitFor(t, time.Second, func() bool { return rec.count() == 1 })

	b, err := json.Marshal(Hook{PaneID: "%4", HookType: "Stop"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"pane_id":"%4","hook_type":"Stop"}` {
		t.Errorf("encoded hook = %s", b)
	}
}

func TestSendValidates(t *testing.T) {
	if err := Send(shortSocketPath(t), Hook{PaneID: "", HookType: "Stop"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestHookValidate(t *testing.T) {
	tests := []struct {
		name    string
		hook    Hook
		wantErr bool
	}{
		{"ok", Hook{PaneID: "%12", HookType: "Stop"}, false},
		{"ok with payload", Hook{PaneID: "%1", HookType: "Stop", Payload: json.RawMessage(`{}`)}, false},
		{"target instead of id", Hook{PaneID: "s:0.1", HookType: "Stop"}, true},
		{"bare percent", Hook{PaneID: "%", HookType: "Stop"}, true},
		{"missing type", Hook{PaneID: "%1", HookType: "  "}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.hook.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func sendDatagram(socketPath string, payload []byte) error {
	addr, err := net.ResolveUnixAddr("unixgram", socketPath)
	if err != nil {
		return err
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func shortSocketPath(t *testing.T) string {
	t.Helper()
	base := filepath.Join(os.TempDir(), "pt-hooks")
	if err := os.MkdirAll(base, 0o700); err != nil {
		t.Fatalf("mkdir temp base: %v", err)
	}
	p := filepath.Join(base, fmt.Sprintf("%d-%d.sock", time.Now().UnixNano(), os.Getpid()))
	t.Cleanup(func() {
		_ = os.Remove(p)
	})
	return p
}
