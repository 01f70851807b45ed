package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagCaptureLines int

var captureCmd = &cobra.Command{
	Use:   "capture <pane-id>",
	Short: "Capture the recent content of a pane",
	Long: `Capture the last lines of a tmux pane and print them to stdout.

The pane is addressed by its tmux pane id (e.g., "%3"), as printed by list.
This is pure transport, no interpretation of the content.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paneID := args[0]

		cfg, m, err := setup()
		if err != nil {
			return err
		}
		lines := flagCaptureLines
		if lines == 0 {
			lines = cfg.CaptureLines
		}

		content, err := m.CapturePane(cmd.Context(), paneID, lines)
		if err != nil {
			return fmt.Errorf("failed to capture pane %q: %w", paneID, err)
		}

		fmt.Fprint(os.Stdout, content)
		return nil
	},
}

func init() {
	captureCmd.Flags().IntVar(&flagCaptureLines, "lines", 0, "number of lines to capture (default: capture_lines from config)")
	rootCmd.AddCommand(captureCmd)
}
