package daemon

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timvw/pane-tracker/internal/config"
	"github.com/timvw/pane-tracker/internal/hooks"
	"github.com/timvw/pane-tracker/internal/ipc"
	"github.com/timvw/pane-tracker/internal/lockfile"
	"github.com/timvw/pane-tracker/internal/model"
	"github.com/timvw/pane-tracker/internal/registry"
)

// shortDataDir keeps socket paths under the unix socket length limit.
func shortDataDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pt-d")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = shortDataDir(t)
	require.NoError(t, cfg.Finalize())
	return cfg
}

func TestDaemonRunLifecycle(t *testing.T) {
	cfg := testConfig(t)
	m := newMock()
	m.add("main", "%3", "claude", "Tool: Read\nReading file...")

	polls := make(chan error, 10)
	d, err := New(Options{
		Config: cfg,
		Mux:    m,
		Clock:  clock.NewMock(),
		OnPoll: func(_ *registry.ReconcileReport, err error) { polls <- err },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-polls:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first poll")
	}

	pid, err := lockfile.Read(cfg.LockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	pctx, pcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pcancel()
	c, err := ipc.Dial(pctx, cfg.SocketPath)
	require.NoError(t, err)
	_, err = c.Ping(pctx)
	require.NoError(t, err)
	c.Close()

	require.NoError(t, hooks.Send(cfg.HookSocketPath, hooks.Hook{
		PaneID:   "%3",
		HookType: "Stop",
		Payload:  json.RawMessage(`{"reason":"end_turn"}`),
	}))
	reg := d.Registry()
	s, err := reg.GetSessionByPane(context.Background(), "%3")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		evs, err := reg.GetEvents(context.Background(), s.ID, 10)
		return err == nil && len(evs) == 2 && evs[0].Type == model.Hook("Stop")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	for _, p := range []string{cfg.SocketPath, cfg.HookSocketPath, cfg.LockPath} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "%s should be removed on shutdown", p)
	}
	_, err = os.Stat(cfg.DBPath)
	assert.NoError(t, err, "the database outlives the daemon")
}

func TestDaemonRefusesLiveLock(t *testing.T) {
	cfg := testConfig(t)
	other, err := lockfile.Acquire(cfg.LockPath)
	require.NoError(t, err)
	defer other.Release()

	d, err := New(Options{Config: cfg, Mux: newMock()})
	require.NoError(t, err)

	err = d.Run(context.Background())
	require.ErrorIs(t, err, lockfile.ErrAlreadyRunning)

	_, err = os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err), "no listener may be opened when the lock is held")
	_, err = os.Stat(cfg.DBPath)
	assert.True(t, os.IsNotExist(err), "no storage may be opened when the lock is held")

	running, _, err := lockfile.IsRunning(cfg.LockPath)
	require.NoError(t, err)
	assert.True(t, running, "the other instance's lock is left alone")
}

func TestDaemonReclaimsStaleResources(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.LockPath, []byte("999999\n"), 0o600))

	polls := make(chan error, 10)
	d, err := New(Options{
		Config: cfg,
		Mux:    newMock(),
		Clock:  clock.NewMock(),
		OnPoll: func(_ *registry.ReconcileReport, err error) { polls <- err },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-polls:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first poll")
	}
	pid, err := lockfile.Read(cfg.LockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	cancel()
	require.NoError(t, <-done)
}

func TestNewRequiresConfigAndMux(t *testing.T) {
	_, err := New(Options{Mux: newMock()})
	assert.Error(t, err)
	_, err = New(Options{Config: config.Defaults()})
	assert.Error(t, err)
}
