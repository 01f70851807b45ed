package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/ipc"
	"github.com/timvw/pane-tracker/internal/watch"
)

var (
	flagTheme   string
	flagRefresh time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive view of tracked sessions",
	Long: `Open a terminal UI listing the sessions the daemon tracks, grouped by
tmux session, with the recent events of the selected one.

The view is read-only: it reads the session database and pings the daemon to
show whether it is up. Inside tmux, Enter on a pane switches the client to it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := initCLILogging(cfg); err != nil {
			return err
		}

		reg, closeFn, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		tui := &watch.TUI{
			Source:          reg,
			RefreshInterval: flagRefresh,
			ThemeName:       flagTheme,
			Ping: func(ctx context.Context) error {
				c, err := ipc.Dial(ctx, cfg.SocketPath)
				if err != nil {
					return err
				}
				defer c.Close()
				_, err = c.Ping(ctx)
				return err
			},
		}
		// switch-client needs an attached tmux client.
		if os.Getenv("TMUX") != "" {
			tui.Jump = watch.JumpToPane
		}
		return tui.Run(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagTheme, "theme", "dark", "color theme: dark, light")
	watchCmd.Flags().DurationVar(&flagRefresh, "refresh", 2*time.Second, "how often to reload sessions (0 disables)")
	rootCmd.AddCommand(watchCmd)
}
