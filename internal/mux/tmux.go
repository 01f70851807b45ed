package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/timvw/pane-tracker/internal/model"
)

// paneFormat is the list-panes format. Fields are tab-separated and the
// working directory comes last.
const paneFormat = "#{session_name}\t#{window_index}\t#{pane_index}\t#{pane_id}\t#{pane_current_path}"

// Runner executes the multiplexer binary and returns its stdout. A non-zero
// exit must be reported as an error; stderr is returned alongside it.
type Runner func(ctx context.Context, args ...string) (stdout, stderr string, err error)

// Tmux implements the Multiplexer interface for tmux.
type Tmux struct {
	run Runner
}

// NewTmux creates a tmux multiplexer that shells out to the tmux binary.
func NewTmux() *Tmux {
	return &Tmux{run: execTmux}
}

// NewTmuxWithRunner creates a tmux multiplexer with a custom command runner.
func NewTmuxWithRunner(run Runner) *Tmux {
	return &Tmux{run: run}
}

// Name returns "tmux".
func (t *Tmux) Name() string {
	return "tmux"
}

// ListPanes returns all tmux panes across all sessions.
func (t *Tmux) ListPanes(ctx context.Context) ([]model.Pane, error) {
	args := []string{"list-panes", "-a", "-F", paneFormat}
	out, stderr, err := t.run(ctx, args...)
	if err != nil {
		if isNotRunning(stderr) {
			return nil, fmt.Errorf("tmux list-panes: %w", ErrNotRunning)
		}
		return nil, &CommandError{Args: args, Stderr: stderr, Err: err}
	}
	return ParsePaneList(out)
}

// CapturePane captures the last lines of a pane, joining wrapped lines.
func (t *Tmux) CapturePane(ctx context.Context, paneID string, lines int) (string, error) {
	if lines <= 0 {
		return "", nil
	}
	args := []string{"capture-pane", "-p", "-J", "-t", paneID, "-S", "-" + strconv.Itoa(lines)}
	out, stderr, err := t.run(ctx, args...)
	if err != nil {
		return "", paneError(paneID, args, stderr, err)
	}
	return out, nil
}

// PaneCommand returns the pane's current foreground command.
func (t *Tmux) PaneCommand(ctx context.Context, paneID string) (string, error) {
	args := []string{"display-message", "-p", "-t", paneID, "#{pane_current_command}"}
	out, stderr, err := t.run(ctx, args...)
	if err != nil {
		return "", paneError(paneID, args, stderr, err)
	}
	return strings.TrimSpace(out), nil
}

// ParsePaneList parses list-panes output produced with paneFormat. Blank
// lines are skipped; any other malformed line aborts the parse.
func ParsePaneList(out string) ([]model.Pane, error) {
	var panes []model.Pane
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 5 {
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("expected 5 fields, got %d", len(parts))}
		}
		window, err := strconv.ParseUint(parts[1], 10, 31)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("invalid window index %q", parts[1])}
		}
		pane, err := strconv.ParseUint(parts[2], 10, 31)
		if err != nil {
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("invalid pane index %q", parts[2])}
		}
		if parts[3] == "" {
			return nil, &ParseError{Line: line, Reason: "empty pane id"}
		}
		panes = append(panes, model.Pane{
			SessionName: parts[0],
			WindowIndex: int(window),
			PaneIndex:   int(pane),
			ID:          parts[3],
			WorkingDir:  parts[4],
		})
	}
	return panes, nil
}

func isNotRunning(stderr string) bool {
	return strings.Contains(stderr, "no server running") ||
		strings.Contains(stderr, "no sessions") ||
		strings.Contains(stderr, "error connecting to")
}

func paneError(paneID string, args []string, stderr string, err error) error {
	if strings.Contains(stderr, "can't find pane") || strings.Contains(stderr, "no such") {
		return fmt.Errorf("pane %s: %w", paneID, ErrPaneNotFound)
	}
	return &CommandError{Args: args, Stderr: stderr, Err: err}
}

// execTmux runs the tmux binary.
func execTmux(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", stderr.String(), err
		}
	}
	return stdout.String(), stderr.String(), err
}
