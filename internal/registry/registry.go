// Package registry owns the mapping from live panes to stored sessions.
//
// All writes go through a Registry, which serializes them with a mutex.
// Each session mutation lands in the same transaction as the event that
// describes it, so readers see a session and its latest event together.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/timvw/pane-tracker/internal/logging"
	"github.com/timvw/pane-tracker/internal/model"
	"github.com/timvw/pane-tracker/internal/store"
)

var log = logging.ForComponent(logging.CompRegistry)

var (
	// ErrNotFound is returned when a session lookup matches nothing.
	ErrNotFound = store.ErrNotFound
	// ErrDuplicatePane is returned when creating a second session for a pane.
	ErrDuplicatePane = store.ErrDuplicatePane
	// ErrUnknownPane is returned when a hook names a pane with no session.
	ErrUnknownPane = errors.New("no session for pane")
)

// Observation is one pane seen during a discovery pass, with the state the
// classifier assigned it.
type Observation struct {
	Pane   model.Pane
	State  model.SessionState
	Method model.DetectionMethod
}

// Transition is one state change applied by Reconcile.
type Transition struct {
	SessionID string
	PaneID    string
	From      model.SessionState
	To        model.SessionState
}

// ReconcileReport summarizes the actions taken by one Reconcile call.
type ReconcileReport struct {
	Created   []model.Session
	Changed   []Transition
	Unchanged int
	Removed   []model.Session
}

// Empty reports whether the pass changed nothing but timestamps.
func (r *ReconcileReport) Empty() bool {
	return len(r.Created) == 0 && len(r.Changed) == 0 && len(r.Removed) == 0
}

// Registry is the serialized-access wrapper around the session store.
type Registry struct {
	store *store.Store
	clock clock.Clock
	newID func() string

	mu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used to timestamp events recorded outside
// Reconcile.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithIDFunc overrides session id generation.
func WithIDFunc(f func() string) Option {
	return func(r *Registry) { r.newID = f }
}

// New creates a Registry over an opened and migrated store.
func New(st *store.Store, opts ...Option) *Registry {
	r := &Registry{
		store: st,
		clock: clock.New(),
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile converges stored sessions to one discovery pass. Panes seen for
// the first time get a session and a SessionDiscovered event. Known panes
// whose state differs get a StateChanged event; those whose state matches
// only have their timestamps and location refreshed. Sessions whose pane was
// not observed are deleted with a SessionRemoved event.
//
// Each session is written in its own transaction. An error aborts the pass;
// sessions already written stay written and the next pass picks up the rest.
func (r *Registry) Reconcile(ctx context.Context, observations []Observation, now time.Time) (*ReconcileReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	byPane := lo.KeyBy(existing, func(s model.Session) string { return s.PaneID })

	if n := len(observations); n > 0 {
		observations = lo.UniqBy(observations, func(o Observation) string { return o.Pane.ID })
		if dropped := n - len(observations); dropped > 0 {
			log.Warn("duplicate pane ids in observation set", "dropped", dropped)
		}
	}

	report := &ReconcileReport{}
	seen := make(map[string]bool, len(observations))
	for _, obs := range observations {
		seen[obs.Pane.ID] = true

		current, ok := byPane[obs.Pane.ID]
		if !ok {
			s, err := r.create(ctx, obs, now)
			if err != nil {
				return report, fmt.Errorf("reconcile: %w", err)
			}
			report.Created = append(report.Created, s)
			continue
		}

		if current.State != obs.State {
			log.Info("classification changed",
				"session_id", current.ID, "pane_id", current.PaneID,
				"stored", current.State.String(), "observed", obs.State.String())
			if err := r.transition(ctx, current, obs, now); err != nil {
				return report, fmt.Errorf("reconcile: %w", err)
			}
			report.Changed = append(report.Changed, Transition{
				SessionID: current.ID,
				PaneID:    current.PaneID,
				From:      current.State,
				To:        obs.State,
			})
			continue
		}

		if err := r.touch(ctx, current, obs, now); err != nil {
			return report, fmt.Errorf("reconcile: %w", err)
		}
		report.Unchanged++
	}

	for _, s := range existing {
		if seen[s.PaneID] {
			continue
		}
		if err := r.remove(ctx, s, now); err != nil {
			return report, fmt.Errorf("reconcile: %w", err)
		}
		report.Removed = append(report.Removed, s)
	}

	return report, nil
}

// CreateSession registers a pane. It fails with ErrDuplicatePane when the
// pane already has a session.
func (r *Registry) CreateSession(ctx context.Context, obs Observation, now time.Time) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(ctx, obs, now)
}

func (r *Registry) create(ctx context.Context, obs Observation, now time.Time) (model.Session, error) {
	s := model.Session{
		ID:              r.newID(),
		PaneID:          obs.Pane.ID,
		SessionName:     obs.Pane.SessionName,
		WindowIndex:     obs.Pane.WindowIndex,
		PaneIndex:       obs.Pane.PaneIndex,
		WorkingDir:      obs.Pane.WorkingDir,
		State:           obs.State,
		DetectionMethod: obs.Method,
		LastActivity:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := r.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateSession(ctx, s); err != nil {
			return err
		}
		_, err := tx.AppendEvent(ctx, s.ID, model.Discovered(), nil, now)
		return err
	})
	if err != nil {
		return model.Session{}, err
	}
	log.Info("session created",
		"session_id", s.ID, "pane_id", s.PaneID, "target", obs.Pane.Target(),
		"state", s.State.String(), "detection_method", s.DetectionMethod.String())
	return s, nil
}

func (r *Registry) transition(ctx context.Context, current model.Session, obs Observation, now time.Time) error {
	next := refreshed(current, obs, now)
	next.State = obs.State
	next.LastActivity = now
	err := r.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpdateSession(ctx, next); err != nil {
			return err
		}
		_, err := tx.AppendEvent(ctx, current.ID, model.Changed(current.State, obs.State), nil, now)
		return err
	})
	if err != nil {
		return err
	}
	log.Info("session state changed",
		"session_id", current.ID, "pane_id", current.PaneID,
		"from", current.State.String(), "to", obs.State.String())
	return nil
}

func (r *Registry) touch(ctx context.Context, current model.Session, obs Observation, now time.Time) error {
	next := refreshed(current, obs, now)
	next.LastActivity = now
	if err := r.store.UpdateSession(ctx, next); err != nil {
		return err
	}
	if next.Pane() != current.Pane() {
		log.Debug("session location refreshed",
			"session_id", current.ID, "pane_id", current.PaneID, "target", obs.Pane.Target())
	}
	return nil
}

func (r *Registry) remove(ctx context.Context, s model.Session, now time.Time) error {
	err := r.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.DeleteSession(ctx, s.ID); err != nil {
			return err
		}
		_, err := tx.AppendEvent(ctx, s.ID, model.Removed(), nil, now)
		return err
	})
	if err != nil {
		return err
	}
	log.Info("session removed", "session_id", s.ID, "pane_id", s.PaneID)
	return nil
}

// refreshed copies the observed pane location onto a session.
func refreshed(s model.Session, obs Observation, now time.Time) model.Session {
	s.SessionName = obs.Pane.SessionName
	s.WindowIndex = obs.Pane.WindowIndex
	s.PaneIndex = obs.Pane.PaneIndex
	s.WorkingDir = obs.Pane.WorkingDir
	s.DetectionMethod = obs.Method
	s.UpdatedAt = now
	return s
}

// GetSession returns a session by id, or ErrNotFound.
func (r *Registry) GetSession(ctx context.Context, id string) (model.Session, error) {
	return r.store.GetSession(ctx, id)
}

// GetSessionByPane returns the session for a pane, or ErrNotFound.
func (r *Registry) GetSessionByPane(ctx context.Context, paneID string) (model.Session, error) {
	return r.store.GetSessionByPane(ctx, paneID)
}

// ListSessions returns all sessions, newest created first.
func (r *Registry) ListSessions(ctx context.Context) ([]model.Session, error) {
	return r.store.ListSessions(ctx)
}

// DeleteSession removes a session and reports whether it existed. Deleting
// an unknown id is not an error.
func (r *Registry) DeleteSession(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.DeleteSession(ctx, id)
}

// RecordEvent appends an event for a session, timestamped now.
func (r *Registry) RecordEvent(ctx context.Context, sessionID string, et model.EventType, payload json.RawMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.AppendEvent(ctx, sessionID, et, payload, r.clock.Now())
}

// RecordHook appends a HookReceived event to the session tracking paneID.
func (r *Registry) RecordHook(ctx context.Context, paneID, hookType string, payload json.RawMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.GetSessionByPane(ctx, paneID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPane, paneID)
	}
	if err != nil {
		return 0, err
	}
	return r.store.AppendEvent(ctx, s.ID, model.Hook(hookType), payload, r.clock.Now())
}

// GetEvents returns up to limit events for a session, newest first.
func (r *Registry) GetEvents(ctx context.Context, sessionID string, limit int) ([]model.Event, error) {
	return r.store.GetEvents(ctx, sessionID, limit)
}

// GetRecentEvents returns up to limit events across sessions, newest first.
func (r *Registry) GetRecentEvents(ctx context.Context, limit int) ([]model.Event, error) {
	return r.store.GetRecentEvents(ctx, limit)
}
