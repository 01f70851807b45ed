package mux

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timvw/pane-tracker/internal/model"
)

type fakeRun struct {
	stdout string
	stderr string
	err    error
	calls  [][]string
}

func (f *fakeRun) run(_ context.Context, args ...string) (string, string, error) {
	f.calls = append(f.calls, args)
	return f.stdout, f.stderr, f.err
}

var errExit = errors.New("exit status 1")

func TestParsePaneList(t *testing.T) {
	out := "main\t0\t0\t%0\t/home/u/src\n" +
		"main\t0\t1\t%7\t/home/u/src/api\n" +
		"\n" +
		"work space\t12\t3\t%42\t/tmp/with\tno\n"

	_, err := ParsePaneList(out)
	var pe *ParseError
	require.ErrorAs(t, err, &pe, "a tab inside the path yields six fields")

	out = "main\t0\t0\t%0\t/home/u/src\n" +
		"main\t0\t1\t%7\t/home/u/src/api\n" +
		"\n" +
		"work space\t12\t3\t%42\t/tmp/dir with spaces\n"
	panes, err := ParsePaneList(out)
	require.NoError(t, err)
	assert.Equal(t, []model.Pane{
		{SessionName: "main", WindowIndex: 0, PaneIndex: 0, ID: "%0", WorkingDir: "/home/u/src"},
		{SessionName: "main", WindowIndex: 0, PaneIndex: 1, ID: "%7", WorkingDir: "/home/u/src/api"},
		{SessionName: "work space", WindowIndex: 12, PaneIndex: 3, ID: "%42", WorkingDir: "/tmp/dir with spaces"},
	}, panes)
}

func TestParsePaneListStrict(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "main\t0\t0\t%0"},
		{"too many fields", "main\t0\t0\t%0\t/a\textra"},
		{"non-numeric window", "main\tx\t0\t%0\t/a"},
		{"negative pane", "main\t0\t-1\t%0\t/a"},
		{"empty pane id", "main\t0\t0\t\t/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			good := "ok\t1\t1\t%1\t/ok\n"
			_, err := ParsePaneList(good + tt.line + "\n" + good)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

func TestParsePaneListEmpty(t *testing.T) {
	panes, err := ParsePaneList("")
	require.NoError(t, err)
	assert.Empty(t, panes)
}

func TestListPanesNotRunning(t *testing.T) {
	for _, stderr := range []string{
		"no server running on /tmp/tmux-1000/default\n",
		"no sessions\n",
		"error connecting to /tmp/tmux-1000/default (No such file or directory)\n",
	} {
		f := &fakeRun{stderr: stderr, err: errExit}
		_, err := NewTmuxWithRunner(f.run).ListPanes(context.Background())
		assert.ErrorIs(t, err, ErrNotRunning, stderr)
	}
}

func TestListPanesCommandFailed(t *testing.T) {
	f := &fakeRun{stderr: "unknown option -- Z\n", err: errExit}
	_, err := NewTmuxWithRunner(f.run).ListPanes(context.Background())
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Error(), "unknown option")
	assert.NotErrorIs(t, err, ErrNotRunning)
}

func TestListPanesUsesFormat(t *testing.T) {
	f := &fakeRun{stdout: "main\t1\t2\t%3\t/w\n"}
	panes, err := NewTmuxWithRunner(f.run).ListPanes(context.Background())
	require.NoError(t, err)
	require.Len(t, panes, 1)
	assert.Equal(t, []string{"list-panes", "-a", "-F", paneFormat}, f.calls[0])
}

func TestCapturePaneZeroLinesSkipsTmux(t *testing.T) {
	f := &fakeRun{stdout: "should not be read"}
	out, err := NewTmuxWithRunner(f.run).CapturePane(context.Background(), "%1", 0)
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Empty(t, f.calls)
}

func TestCapturePaneArgs(t *testing.T) {
	f := &fakeRun{stdout: "line one\nline two\n"}
	out, err := NewTmuxWithRunner(f.run).CapturePane(context.Background(), "%5", 50)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", out)
	assert.Equal(t, "capture-pane -p -J -t %5 -S -50", strings.Join(f.calls[0], " "))
}

func TestCapturePaneErrors(t *testing.T) {
	f := &fakeRun{stderr: "can't find pane: %99\n", err: errExit}
	_, err := NewTmuxWithRunner(f.run).CapturePane(context.Background(), "%99", 20)
	assert.ErrorIs(t, err, ErrPaneNotFound)

	f = &fakeRun{stderr: "server exited unexpectedly\n", err: errExit}
	_, err = NewTmuxWithRunner(f.run).CapturePane(context.Background(), "%1", 20)
	var ce *CommandError
	assert.ErrorAs(t, err, &ce)
}

func TestPaneCommand(t *testing.T) {
	f := &fakeRun{stdout: "claude\n"}
	cmd, err := NewTmuxWithRunner(f.run).PaneCommand(context.Background(), "%2")
	require.NoError(t, err)
	assert.Equal(t, "claude", cmd)

	f = &fakeRun{stderr: "can't find pane: %2", err: errExit}
	_, err = NewTmuxWithRunner(f.run).PaneCommand(context.Background(), "%2")
	assert.ErrorIs(t, err, ErrPaneNotFound)
}

func TestFromName(t *testing.T) {
	m, err := FromName("tmux")
	require.NoError(t, err)
	assert.Equal(t, "tmux", m.Name())

	_, err = FromName("screen")
	assert.Error(t, err)
}
