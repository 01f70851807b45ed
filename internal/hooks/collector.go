// Package hooks receives notifications from assistant hooks.
//
// Hooks configured in the assistant run `pane-tracker hook`, which sends one
// JSON datagram over a unixgram socket. Each valid datagram for a tracked
// pane becomes a HookReceived event on that pane's session.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/timvw/pane-tracker/internal/logging"
	ptotel "github.com/timvw/pane-tracker/internal/otel"
	"github.com/timvw/pane-tracker/internal/registry"
)

var log = logging.ForComponent(logging.CompHooks)

const defaultMaxPayloadBytes = 8 * 1024

// Recorder stores a hook against the session tracking a pane.
type Recorder interface {
	RecordHook(ctx context.Context, paneID, hookType string, payload json.RawMessage) (int64, error)
}

type Collector struct {
	recorder Recorder
	path     string

	MaxPayloadBytes int
	Metrics         *ptotel.Metrics // nil-safe

	mu     sync.Mutex
	conn   *net.UnixConn
	closed bool
	done   chan struct{}
}

func NewCollector(recorder Recorder, socketPath string) *Collector {
	return &Collector{
		recorder:        recorder,
		path:            socketPath,
		MaxPayloadBytes: defaultMaxPayloadBytes,
	}
}

func (c *Collector) SocketPath() string {
	return c.path
}

// Start binds the socket and begins reading in the background. The socket
// is closed when ctx is done.
func (c *Collector) Start(ctx context.Context) error {
	if c.recorder == nil {
		return fmt.Errorf("recorder is required")
	}
	if c.path == "" {
		return fmt.Errorf("socket path is required")
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = defaultMaxPayloadBytes
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if st, err := os.Lstat(c.path); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			return fmt.Errorf("hook socket path exists and is not a unix socket: %s", c.path)
		}
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	addr, err := net.ResolveUnixAddr("unixgram", c.path)
	if err != nil {
		return fmt.Errorf("resolve unix addr: %w", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("listen unixgram: %w", err)
	}
	if err := os.Chmod(c.path, 0o600); err != nil {
		_ = conn.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.close()
	}()

	go c.readLoop(ctx, conn)

	return nil
}

// Run starts the collector and blocks until ctx is done and the read loop
// has exited.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	c.close()
	<-c.done
	return nil
}

func (c *Collector) readLoop(ctx context.Context, conn *net.UnixConn) {
	defer close(c.done)
	// One extra byte so an oversized datagram is detectable.
	buf := make([]byte, c.MaxPayloadBytes+1)
	for {
		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			if c.isClosed() {
				return
			}
			log.Warn("hook read failed", "error", err)
			continue
		}
		c.handle(ctx, buf[:n])
	}
}

func (c *Collector) handle(ctx context.Context, datagram []byte) {
	if len(datagram) == 0 {
		return
	}
	if len(datagram) > c.MaxPayloadBytes {
		log.Warn("hook datagram too large", "bytes", len(datagram), "max", c.MaxPayloadBytes)
		c.Metrics.RecordHook(ctx, "invalid")
		return
	}

	var h Hook
	if err := json.Unmarshal(datagram, &h); err != nil {
		log.Warn("malformed hook datagram", "error", err)
		c.Metrics.RecordHook(ctx, "invalid")
		return
	}
	if err := h.Validate(); err != nil {
		log.Warn("invalid hook datagram", "error", err)
		c.Metrics.RecordHook(ctx, "invalid")
		return
	}

	id, err := c.recorder.RecordHook(ctx, h.PaneID, h.HookType, h.Payload)
	switch {
	case errors.Is(err, registry.ErrUnknownPane):
		log.Debug("hook for untracked pane", "pane_id", h.PaneID, "hook_type", h.HookType)
		c.Metrics.RecordHook(ctx, "unknown_pane")
	case err != nil:
		log.Error("record hook failed", "pane_id", h.PaneID, "hook_type", h.HookType, "error", err)
		c.Metrics.RecordHook(ctx, "error")
	default:
		log.Debug("hook recorded", "pane_id", h.PaneID, "hook_type", h.HookType, "event_id", id)
		c.Metrics.RecordHook(ctx, "recorded")
	}
}

// Close stops the collector, removes its socket and waits for the read loop
// to exit. It is safe to call more than once.
func (c *Collector) Close() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	c.close()
	if done != nil {
		<-done
	}
	return nil
}

func (c *Collector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Collector) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	_ = os.Remove(c.path)
}

// Send delivers one hook datagram to the collector at socketPath.
func Send(socketPath string, h Hook) error {
	if err := h.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode hook: %w", err)
	}
	addr, err := net.ResolveUnixAddr("unixgram", socketPath)
	if err != nil {
		return err
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return fmt.Errorf("dial hook socket: %w", err)
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}
