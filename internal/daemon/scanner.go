package daemon

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/timvw/pane-tracker/internal/classifier"
	"github.com/timvw/pane-tracker/internal/config"
	"github.com/timvw/pane-tracker/internal/logging"
	"github.com/timvw/pane-tracker/internal/model"
	"github.com/timvw/pane-tracker/internal/mux"
	ptotel "github.com/timvw/pane-tracker/internal/otel"
	"github.com/timvw/pane-tracker/internal/registry"
)

var (
	log    = logging.ForComponent(logging.CompDaemon)
	tracer = otel.Tracer(ptotel.TracerName)
)

// Scanner discovers panes and classifies the ones hosting the assistant.
type Scanner struct {
	Mux             mux.Multiplexer
	CaptureLines    int
	Parallel        int
	ExcludeSessions []string        // exact names or "prefix*"
	SelfPaneID      string          // pane this process runs in; skipped
	Metrics         *ptotel.Metrics // nil-safe
}

// ScanResult is one discovery pass.
type ScanResult struct {
	// Observations holds the tracked panes in multiplexer order.
	Observations []registry.Observation
	// Listed is the number of panes the multiplexer reported.
	Listed int
	// Vanished counts panes that closed between listing and capture.
	Vanished int
}

// Scan lists all panes, captures the candidates and classifies them.
//
// A multiplexer with no server yields an error matching mux.ErrNotRunning,
// which callers treat as an empty pass. Any other failure fails the whole
// pass, since a partial set would make Reconcile remove sessions whose pane
// merely failed to capture. Panes that close mid-pass are skipped.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	panes, err := s.Mux.ListPanes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list panes: %w", err)
	}

	filtered := make([]model.Pane, 0, len(panes))
	for _, p := range panes {
		if s.SelfPaneID != "" && p.ID == s.SelfPaneID {
			continue
		}
		if len(s.ExcludeSessions) > 0 && config.MatchesExcludeList(p.SessionName, s.ExcludeSessions) {
			continue
		}
		filtered = append(filtered, p)
	}

	result := &ScanResult{Listed: len(panes)}
	if len(filtered) == 0 {
		return result, nil
	}

	parallel := s.Parallel
	if parallel < 1 {
		parallel = 1
	}

	found := make([]*registry.Observation, len(filtered))
	vanished := make([]bool, len(filtered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, pane := range filtered {
		i, pane := i, pane
		g.Go(func() error {
			obs, err := s.classifyPane(gctx, pane)
			if errors.Is(err, mux.ErrPaneNotFound) {
				log.Debug("pane vanished during scan", "pane_id", pane.ID)
				vanished[i] = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("pane %s: %w", pane.ID, err)
			}
			found[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, obs := range found {
		if vanished[i] {
			result.Vanished++
		}
		if obs != nil {
			result.Observations = append(result.Observations, *obs)
		}
	}
	return result, nil
}

// classifyPane returns nil when the pane does not host the assistant.
func (s *Scanner) classifyPane(ctx context.Context, pane model.Pane) (*registry.Observation, error) {
	ctx, span := tracer.Start(ctx, "classify_pane",
		trace.WithAttributes(
			attribute.String("pane.id", pane.ID),
			attribute.String("pane.session", pane.SessionName),
		))
	defer span.End()

	command, err := s.Mux.PaneCommand(ctx, pane.ID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("pane.command", command))
	if !classifier.Candidate(command) {
		return nil, nil
	}

	content, err := s.Mux.CapturePane(ctx, pane.ID, s.CaptureLines)
	if err != nil {
		return nil, err
	}

	method, ok := classifier.Detect(command, content)
	if !ok {
		return nil, nil
	}
	state := classifier.Classify(content)
	log.Debug("pane discovered",
		"pane_id", pane.ID,
		"target", pane.Target(),
		"command", command,
		"detection_method", method.String(),
		"state", state.String())

	span.SetAttributes(
		attribute.String("detection.method", method.String()),
		attribute.String("session.state", state.String()),
	)
	return &registry.Observation{Pane: pane, State: state, Method: method}, nil
}
