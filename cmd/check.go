package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/classifier"
)

type checkResult struct {
	PaneID          string    `json:"pane_id"`
	Command         string    `json:"command"`
	Tracked         bool      `json:"tracked"`
	DetectionMethod string    `json:"detection_method,omitempty"`
	State           string    `json:"state"`
	CheckedAt       time.Time `json:"checked_at"`
	Content         string    `json:"content,omitempty"`
}

var flagCheckContent bool

var checkCmd = &cobra.Command{
	Use:   "check <pane-id>",
	Short: "Classify a single pane",
	Long: `Capture a single tmux pane and print its classification as JSON.

The state is computed even when the pane does not host the assistant, so the
classifier can be tried against any pane. Nothing is written to the session
database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paneID := args[0]

		cfg, m, err := setup()
		if err != nil {
			return err
		}

		command, err := m.PaneCommand(cmd.Context(), paneID)
		if err != nil {
			return fmt.Errorf("failed to inspect pane %q: %w", paneID, err)
		}
		content, err := m.CapturePane(cmd.Context(), paneID, cfg.CaptureLines)
		if err != nil {
			return fmt.Errorf("failed to capture pane %q: %w", paneID, err)
		}

		result := checkResult{
			PaneID:    paneID,
			Command:   command,
			State:     classifier.Classify(content).String(),
			CheckedAt: time.Now().UTC(),
		}
		if method, ok := classifier.Detect(command, content); ok {
			result.Tracked = true
			result.DetectionMethod = method.String()
		}
		if flagCheckContent {
			result.Content = content
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&flagCheckContent, "content", false, "include the captured pane content in output")
	rootCmd.AddCommand(checkCmd)
}
