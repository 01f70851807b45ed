// Package daemon runs the tracker: a poller that keeps the registry in step
// with the multiplexer, the IPC liveness service and the hook collector.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/timvw/pane-tracker/internal/config"
	"github.com/timvw/pane-tracker/internal/hooks"
	"github.com/timvw/pane-tracker/internal/ipc"
	"github.com/timvw/pane-tracker/internal/lockfile"
	"github.com/timvw/pane-tracker/internal/mux"
	ptotel "github.com/timvw/pane-tracker/internal/otel"
	"github.com/timvw/pane-tracker/internal/registry"
	"github.com/timvw/pane-tracker/internal/store"
)

// Options configures a Daemon. Config and Mux are required.
type Options struct {
	Config  *config.Config
	Mux     mux.Multiplexer
	Clock   clock.Clock     // defaults to the wall clock
	Metrics *ptotel.Metrics // nil-safe

	// SelfPaneID is skipped during discovery.
	SelfPaneID string

	// OnPoll is passed through to the Poller.
	OnPoll func(*registry.ReconcileReport, error)
}

// Daemon owns the process-wide resources of a running tracker.
type Daemon struct {
	opts Options

	lock      *lockfile.Lock
	store     *store.Store
	registry  *registry.Registry
	server    *ipc.Server
	collector *hooks.Collector
	stopHooks context.CancelFunc
}

// New validates opts and returns an unstarted Daemon.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil {
		return nil, errors.New("daemon: config is required")
	}
	if opts.Mux == nil {
		return nil, errors.New("daemon: multiplexer is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Daemon{opts: opts}, nil
}

// Run acquires the lock, opens storage and the sockets, then serves until
// ctx is done. Startup failures are returned before any work starts and
// leave nothing behind. On return every resource has been released:
// listeners first, then storage, then the lock.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.start(ctx); err != nil {
		d.shutdown()
		return err
	}
	defer d.shutdown()

	cfg := d.opts.Config
	poller := &Poller{
		Scanner: &Scanner{
			Mux:             d.opts.Mux,
			CaptureLines:    cfg.CaptureLines,
			Parallel:        cfg.Parallel,
			ExcludeSessions: cfg.ExcludeSessions,
			SelfPaneID:      d.opts.SelfPaneID,
			Metrics:         d.opts.Metrics,
		},
		Registry: d.registry,
		Clock:    d.opts.Clock,
		Interval: cfg.PollDuration,
		Metrics:  d.opts.Metrics,
		OnPoll:   d.opts.OnPoll,
	}

	log.Info("daemon started",
		"mux", d.opts.Mux.Name(),
		"db", cfg.DBPath,
		"socket", cfg.SocketPath,
		"hook_socket", cfg.HookSocketPath,
		"poll_interval", cfg.PollDuration.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.server.Serve(gctx) })
	g.Go(func() error { return poller.Run(gctx) })
	err := g.Wait()
	log.Info("daemon stopping", "reason", context.Cause(gctx))
	return err
}

func (d *Daemon) start(ctx context.Context) error {
	cfg := d.opts.Config

	lock, err := lockfile.Acquire(cfg.LockPath)
	if err != nil {
		return err
	}
	d.lock = lock

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.store = st
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	d.registry = registry.New(st, registry.WithClock(d.opts.Clock))

	srv, err := ipc.Listen(cfg.SocketPath)
	if err != nil {
		return err
	}
	srv.Metrics = d.opts.Metrics
	d.server = srv

	collector := hooks.NewCollector(d.registry, cfg.HookSocketPath)
	collector.Metrics = d.opts.Metrics
	// The collector outlives ctx so that shutdown alone decides teardown
	// order.
	hookCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	if err := collector.Start(hookCtx); err != nil {
		stop()
		return fmt.Errorf("start hook collector: %w", err)
	}
	d.collector = collector
	d.stopHooks = stop
	return nil
}

// shutdown releases whatever start acquired, in reverse order.
func (d *Daemon) shutdown() {
	if d.server != nil {
		if err := d.server.Close(); err != nil {
			log.Warn("close ipc server", "error", err)
		}
		d.server = nil
	}
	if d.collector != nil {
		d.stopHooks()
		_ = d.collector.Close()
		d.collector = nil
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			log.Warn("close store", "error", err)
		}
		d.store = nil
	}
	if d.lock != nil {
		if err := d.lock.Release(); err != nil {
			log.Warn("release lock", "error", err)
		}
		d.lock = nil
	}
}

// Registry returns the running daemon's registry, or nil before Run.
func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}
