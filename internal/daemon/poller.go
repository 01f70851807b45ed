package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/timvw/pane-tracker/internal/mux"
	ptotel "github.com/timvw/pane-tracker/internal/otel"
	"github.com/timvw/pane-tracker/internal/registry"
)

// Poller runs a discovery pass and reconciles it into the registry on
// every tick.
type Poller struct {
	Scanner  *Scanner
	Registry *registry.Registry
	Clock    clock.Clock
	Interval time.Duration
	Metrics  *ptotel.Metrics // nil-safe

	// OnPoll, when set, is called after every pass with its outcome.
	OnPoll func(*registry.ReconcileReport, error)
}

// Run polls once immediately and then every Interval until ctx is done.
// Failed passes are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", p.Interval)
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	ticker := clk.Ticker(p.Interval)
	defer ticker.Stop()

	log.Info("poller started", "interval", p.Interval.String())
	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("poller stopped")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	report, err := p.PollOnce(ctx)
	if err != nil && ctx.Err() == nil {
		log.Warn("poll failed", "error", err)
	}
	if p.OnPoll != nil {
		p.OnPoll(report, err)
	}
}

// PollOnce runs a single discovery and reconciliation pass.
func (p *Poller) PollOnce(ctx context.Context) (*registry.ReconcileReport, error) {
	ctx, span := tracer.Start(ctx, "poll")
	defer span.End()

	result := ptotel.PollOK
	var observations []registry.Observation
	scan, err := p.Scanner.Scan(ctx)
	switch {
	case errors.Is(err, mux.ErrNotRunning):
		log.Debug("multiplexer not running, no panes")
		result = ptotel.PollNotRunning
	case err != nil:
		p.Metrics.RecordPoll(ctx, ptotel.PollError, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, err
	default:
		observations = scan.Observations
	}

	now := time.Now()
	if p.Clock != nil {
		now = p.Clock.Now()
	}
	report, err := p.Registry.Reconcile(ctx, observations, now)
	if err != nil {
		p.Metrics.RecordPoll(ctx, ptotel.PollError, len(observations))
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	p.Metrics.RecordPoll(ctx, result, len(observations))
	p.Metrics.RecordReconcile(ctx, len(report.Created), len(report.Changed), len(report.Removed))
	span.SetAttributes(
		attribute.String("poll.result", result),
		attribute.Int("panes.observed", len(observations)),
		attribute.Int("sessions.created", len(report.Created)),
		attribute.Int("sessions.changed", len(report.Changed)),
		attribute.Int("sessions.removed", len(report.Removed)),
	)
	return report, nil
}
