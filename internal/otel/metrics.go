package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "pane-tracker"

// Poll results recorded by RecordPoll.
const (
	PollOK         = "ok"
	PollNotRunning = "not_running"
	PollError      = "error"
)

// Metrics holds the daemon's metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Polls counts discovery passes, partitioned by result.
	Polls metric.Int64Counter
	// PanesObserved counts panes classified as hosting the assistant.
	PanesObserved metric.Int64Counter
	// ReconcileActions counts registry writes, partitioned by action
	// (created, changed, removed).
	ReconcileActions metric.Int64Counter

	IPCConnections metric.Int64Counter
	IPCErrors      metric.Int64Counter

	// HooksReceived counts hook datagrams, partitioned by result
	// (recorded, unknown_pane, invalid).
	HooksReceived metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Polls, err = meter.Int64Counter("polls.total",
		metric.WithDescription("Discovery passes partitioned by result (ok, not_running, error)"))
	if err != nil {
		return nil, err
	}

	m.PanesObserved, err = meter.Int64Counter("panes.observed",
		metric.WithDescription("Panes classified as hosting a tracked assistant"),
		metric.WithUnit("{pane}"))
	if err != nil {
		return nil, err
	}

	m.ReconcileActions, err = meter.Int64Counter("reconcile.actions",
		metric.WithDescription("Session writes partitioned by action (created, changed, removed)"))
	if err != nil {
		return nil, err
	}

	m.IPCConnections, err = meter.Int64Counter("ipc.connections",
		metric.WithDescription("Accepted IPC client connections"))
	if err != nil {
		return nil, err
	}

	m.IPCErrors, err = meter.Int64Counter("ipc.errors",
		metric.WithDescription("IPC messages that failed to decode or could not be answered"))
	if err != nil {
		return nil, err
	}

	m.HooksReceived, err = meter.Int64Counter("hooks.received",
		metric.WithDescription("Hook datagrams partitioned by result (recorded, unknown_pane, invalid)"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordPoll records one discovery pass.
func (m *Metrics) RecordPoll(ctx context.Context, result string, panes int) {
	if m == nil {
		return
	}
	m.Polls.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if panes > 0 {
		m.PanesObserved.Add(ctx, int64(panes))
	}
}

// RecordReconcile records the writes made by one reconciliation.
func (m *Metrics) RecordReconcile(ctx context.Context, created, changed, removed int) {
	if m == nil {
		return
	}
	for action, n := range map[string]int{"created": created, "changed": changed, "removed": removed} {
		if n > 0 {
			m.ReconcileActions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("action", action)))
		}
	}
}

// RecordIPCConnection records an accepted client connection.
func (m *Metrics) RecordIPCConnection(ctx context.Context) {
	if m == nil {
		return
	}
	m.IPCConnections.Add(ctx, 1)
}

// RecordIPCError records a failed IPC exchange.
func (m *Metrics) RecordIPCError(ctx context.Context) {
	if m == nil {
		return
	}
	m.IPCErrors.Add(ctx, 1)
}

// RecordHook records one hook datagram.
func (m *Metrics) RecordHook(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.HooksReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
