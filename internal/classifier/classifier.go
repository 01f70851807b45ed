// Package classifier turns captured pane text into a SessionState.
//
// Classification is a pure function of the text: no I/O and no memory of
// previous calls. Rules are an ordered cascade and the first match wins:
//
//  1. a termination phrase in the tail window means Done;
//  2. an input marker in the tail window, or a prompt-like final line with
//     no activity in the recent window, means NeedsInput;
//  3. an activity marker in the recent window means Working;
//  4. a welcome phrase in the recent window means NeedsInput, else Idle.
//
// The activity check guards the prompt-character rule because tool output
// routinely ends lines in ':' or '}'.
package classifier

import (
	"strings"

	"github.com/timvw/pane-tracker/internal/model"
)

const (
	// tailSize is the number of non-empty lines in the tail window.
	tailSize = 3
	// recentSize is the number of lines in the recent window.
	recentSize = 20
)

var donePhrases = []string{
	"Session ended",
	"Goodbye",
	"exited with code",
	"connection closed",
}

var inputMarkers = []string{
	"Approve?",
	"Continue?",
	"Proceed?",
	"Do you want to proceed?",
	"Claude needs your permission",
	"(y/n)",
	"[Y/n]",
	"[y/N]",
	"Enter to continue",
	"Press Enter",
}

var activityMarkers = []string{
	"Tool:",
	"Reading",
	"Writing",
	"Searching",
	"Running",
	"Analyzing",
	"Thinking",
	"Processing",
}

var welcomePhrases = []string{
	"What would you like to do?",
	"How can I help",
}

// promptSuffixes end a line that is waiting for the user to type.
var promptSuffixes = []string{">", "?", ":", "$", "❯"}

// Classify returns the activity state shown by text.
func Classify(text string) model.SessionState {
	lines := splitLines(text)
	tail := lastNonEmpty(lines, tailSize)
	recent := bottom(lines, recentSize)

	if containsAny(tail, donePhrases) {
		return model.Done
	}

	active := containsAny(recent, activityMarkers)

	if containsAny(tail, inputMarkers) {
		return model.NeedsInput
	}
	if !active && endsWithPrompt(lastLine(tail)) {
		return model.NeedsInput
	}
	if active {
		return model.Working
	}
	if containsAny(recent, welcomePhrases) {
		return model.NeedsInput
	}
	return model.Idle
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// lastNonEmpty returns the last n lines that are non-empty after trimming,
// in their original order.
func lastNonEmpty(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			out = append(out, lines[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// bottom returns the last n lines after dropping trailing blank lines, which
// tmux pads captures with.
func bottom(lines []string, n int) []string {
	end := len(lines)
	for end > 0 && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return lines[start:end]
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

func endsWithPrompt(line string) bool {
	if line == "" {
		return false
	}
	for _, s := range promptSuffixes {
		if strings.HasSuffix(line, s) {
			return true
		}
	}
	return false
}

func containsAny(lines []string, needles []string) bool {
	for _, l := range lines {
		for _, n := range needles {
			if strings.Contains(l, n) {
				return true
			}
		}
	}
	return false
}
