package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/lockfile"
	"github.com/timvw/pane-tracker/internal/model"
)

var flagStatusJSON bool

type statusOutput struct {
	DaemonRunning bool            `json:"daemon_running"`
	DaemonPID     int             `json:"daemon_pid,omitempty"`
	Sessions      []model.Session `json:"sessions"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked sessions, newest first",
	Long: `Show whether the daemon is running and list the sessions in its database,
most recently discovered first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := initCLILogging(cfg); err != nil {
			return err
		}

		running, pid, err := lockfile.IsRunning(cfg.LockPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: unreadable daemon lock: %v\n", err)
		}

		reg, closeFn, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		sessions, err := reg.ListSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		out := statusOutput{DaemonRunning: running, Sessions: sessions}
		if running {
			out.DaemonPID = pid
		}
		if flagStatusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		if running {
			fmt.Printf("daemon: running (PID %d)\n", pid)
		} else {
			fmt.Println("daemon: not running")
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		now := time.Now()
		for _, s := range sessions {
			fmt.Printf("%s\t%s\t%-11s\t%s\t%s ago\t%s\n",
				s.PaneID,
				s.Pane().Target(),
				s.State,
				s.DetectionMethod,
				now.Sub(s.UpdatedAt).Round(time.Second),
				s.WorkingDir)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&flagStatusJSON, "json", false, "output JSON")
	rootCmd.AddCommand(statusCmd)
}
