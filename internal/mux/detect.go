package mux

import (
	"fmt"
	"os"
	"os/exec"
)

// Detect returns the multiplexer to track. $TMUX is checked first, then a
// running tmux server.
func Detect() (Multiplexer, error) {
	if os.Getenv("TMUX") != "" {
		return NewTmux(), nil
	}
	if os.Getenv("ZELLIJ") != "" {
		return nil, fmt.Errorf("zellij is not supported")
	}
	if path, err := exec.LookPath("tmux"); err == nil && path != "" {
		// The daemon may start before the first tmux session does. A server
		// that is not up yet still gets polled; ListPanes reports it as
		// ErrNotRunning until it appears.
		return NewTmux(), nil
	}
	return nil, fmt.Errorf("no supported terminal multiplexer detected (install tmux)")
}

// FromName creates a Multiplexer by name.
func FromName(name string) (Multiplexer, error) {
	switch name {
	case "tmux":
		return NewTmux(), nil
	case "zellij":
		return nil, fmt.Errorf("zellij is not supported")
	default:
		return nil, fmt.Errorf("unknown multiplexer: %q (supported: tmux)", name)
	}
}

// CurrentPaneID returns the pane this process runs in, if any.
func CurrentPaneID() string {
	return os.Getenv("TMUX_PANE")
}
