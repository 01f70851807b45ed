package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/daemon"
	"github.com/timvw/pane-tracker/internal/model"
	"github.com/timvw/pane-tracker/internal/mux"
)

var flagScanParallel int

type scannedPane struct {
	model.Pane
	Target          string                `json:"target"`
	DetectionMethod model.DetectionMethod `json:"detection_method"`
	State           model.SessionState    `json:"state"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover and classify all assistant panes once",
	Long: `Run one discovery pass and print every pane hosting the assistant with
its classification, as a JSON array.

This is the pass the daemon runs on every tick, without touching the session
database. Panes in excluded sessions are skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, m, err := setup()
		if err != nil {
			return err
		}
		parallel := flagScanParallel
		if parallel < 1 {
			parallel = cfg.Parallel
		}

		scanner := &daemon.Scanner{
			Mux:             m,
			CaptureLines:    cfg.CaptureLines,
			Parallel:        parallel,
			ExcludeSessions: cfg.ExcludeSessions,
			SelfPaneID:      mux.CurrentPaneID(),
		}
		out := []scannedPane{}
		res, err := scanner.Scan(cmd.Context())
		switch {
		case errors.Is(err, mux.ErrNotRunning):
			fmt.Fprintln(os.Stderr, "tmux is not running")
		case err != nil:
			return fmt.Errorf("scan failed: %w", err)
		default:
			for _, obs := range res.Observations {
				out = append(out, scannedPane{
					Pane:            obs.Pane,
					Target:          obs.Pane.Target(),
					DetectionMethod: obs.Method,
					State:           obs.State,
				})
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	scanCmd.Flags().IntVar(&flagScanParallel, "parallel", 0, "number of panes to capture concurrently (default: parallel from config)")
	rootCmd.AddCommand(scanCmd)
}
