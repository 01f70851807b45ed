// Package mux is the transport layer to the terminal multiplexer. It lists
// panes and captures their text without interpreting any of it; judging what
// a pane shows is the classifier's job.
package mux

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timvw/pane-tracker/internal/model"
)

// Multiplexer abstracts the multiplexer operations the tracker depends on.
type Multiplexer interface {
	// Name returns the multiplexer name (e.g., "tmux").
	Name() string

	// ListPanes returns every pane on the server. A server with no sessions
	// yields ErrNotRunning, which callers treat as an empty result.
	ListPanes(ctx context.Context) ([]model.Pane, error)

	// CapturePane returns the last lines of the pane's visible text.
	// lines == 0 returns "" without calling the multiplexer.
	CapturePane(ctx context.Context, paneID string, lines int) (string, error)

	// PaneCommand returns the pane's foreground command name.
	PaneCommand(ctx context.Context, paneID string) (string, error)
}

var (
	// ErrNotRunning means the multiplexer has no server or no sessions.
	ErrNotRunning = errors.New("multiplexer not running")
	// ErrPaneNotFound means the addressed pane no longer exists.
	ErrPaneNotFound = errors.New("pane not found")
)

// CommandError is an unexpected failure of the multiplexer binary.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("tmux %s: %v", strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ParseError reports a malformed record in multiplexer output. A single bad
// record fails the whole listing.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse pane list: %s: %q", e.Reason, e.Line)
}
