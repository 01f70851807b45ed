package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/classifier"
	"github.com/timvw/pane-tracker/internal/mux"
)

var flagListJSON bool

type listedPane struct {
	PaneID          string `json:"pane_id"`
	Target          string `json:"target"`
	WorkingDir      string `json:"working_dir"`
	Command         string `json:"command"`
	Tracked         bool   `json:"tracked"`
	DetectionMethod string `json:"detection_method,omitempty"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all panes and whether they host the assistant",
	Long: `List all tmux panes with their foreground command.

Panes running the assistant are marked with how they were recognized:
process_name when the command alone is enough, pane_content when the command
is a generic runtime such as node and the pane text had to confirm it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, m, err := setup()
		if err != nil {
			return err
		}

		panes, err := m.ListPanes(ctx)
		if errors.Is(err, mux.ErrNotRunning) {
			fmt.Fprintln(os.Stderr, "tmux is not running")
			panes = nil
		} else if err != nil {
			return fmt.Errorf("failed to list panes: %w", err)
		}

		out := make([]listedPane, 0, len(panes))
		for _, p := range panes {
			lp := listedPane{PaneID: p.ID, Target: p.Target(), WorkingDir: p.WorkingDir}
			command, err := m.PaneCommand(ctx, p.ID)
			if errors.Is(err, mux.ErrPaneNotFound) {
				continue
			} else if err != nil {
				return fmt.Errorf("pane %s: %w", p.ID, err)
			}
			lp.Command = command
			if classifier.Candidate(command) {
				content, err := m.CapturePane(ctx, p.ID, cfg.CaptureLines)
				if err != nil && !errors.Is(err, mux.ErrPaneNotFound) {
					return fmt.Errorf("pane %s: %w", p.ID, err)
				}
				if method, ok := classifier.Detect(command, content); ok {
					lp.Tracked = true
					lp.DetectionMethod = method.String()
				}
			}
			out = append(out, lp)
		}

		if flagListJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		for _, p := range out {
			detection := "-"
			if p.Tracked {
				detection = p.DetectionMethod
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", p.PaneID, p.Target, p.Command, detection)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&flagListJSON, "json", false, "output JSON")
	rootCmd.AddCommand(listCmd)
}
