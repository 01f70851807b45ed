package classifier

import (
	"path/filepath"
	"strings"

	"github.com/timvw/pane-tracker/internal/model"
)

// genericRuntimes are interpreters the assistant may run under. Their name
// alone says nothing, so the pane text has to confirm.
var genericRuntimes = map[string]bool{
	"node": true,
	"deno": true,
	"bun":  true,
}

// Candidate reports whether a pane running command could host the
// assistant, before any pane text is captured.
func Candidate(command string) bool {
	name := commandName(command)
	if name == "" {
		return false
	}
	return strings.Contains(name, "claude") || looksLikeVersion(name) || genericRuntimes[name]
}

// Detect reports whether a pane hosts the assistant and how that was
// decided. command is the pane's foreground command; content is its captured
// text and is only consulted for generic runtimes.
func Detect(command, content string) (model.DetectionMethod, bool) {
	name := commandName(command)
	if name == "" {
		return 0, false
	}
	if strings.Contains(name, "claude") || looksLikeVersion(name) {
		return model.ProcessName, true
	}
	if genericRuntimes[name] && hasAssistantMarkers(content) {
		return model.PaneContent, true
	}
	return 0, false
}

// looksLikeVersion matches a foreground command such as "2.1.20", which is
// how tmux reports the assistant's self-named release binary.
func looksLikeVersion(name string) bool {
	if name[0] < '0' || name[0] > '9' || !strings.Contains(name, ".") {
		return false
	}
	for _, r := range name {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// hasAssistantMarkers looks for text only the assistant's TUI renders.
func hasAssistantMarkers(content string) bool {
	if strings.Contains(content, "Claude needs your permission") ||
		strings.Contains(content, "Welcome to Claude") ||
		strings.Contains(content, "? for shortcuts") {
		return true
	}
	if strings.Contains(content, "Esc to cancel") && strings.Contains(content, "Tab to amend") {
		return true
	}
	// "✻" is the thinking/working indicator.
	return strings.Contains(content, "✻")
}

func commandName(command string) string {
	command = strings.TrimSpace(command)
	if command == "" {
		return ""
	}
	return strings.ToLower(filepath.Base(command))
}
