package hooks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Hook is the datagram an assistant hook sends to the daemon.
type Hook struct {
	PaneID   string          `json:"pane_id"`
	HookType string          `json:"hook_type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

func (h Hook) Validate() error {
	if !isValidPaneID(h.PaneID) {
		return fmt.Errorf("invalid pane_id %q", h.PaneID)
	}
	if strings.TrimSpace(h.HookType) == "" {
		return fmt.Errorf("hook_type is required")
	}
	if len(h.Payload) > 0 && !json.Valid(h.Payload) {
		return fmt.Errorf("payload is not valid JSON")
	}
	return nil
}

// isValidPaneID checks for the tmux pane id format: "%" followed by digits.
func isValidPaneID(id string) bool {
	if len(id) < 2 || id[0] != '%' {
		return false
	}
	for _, r := range id[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
