package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/ipc"
)

var flagPingTimeout time.Duration

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the daemon is answering",
	Long:  `Send a ping over the daemon socket and wait for the pong. Exits non-zero when the daemon does not answer.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := initCLILogging(cfg); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), flagPingTimeout)
		defer cancel()

		c, err := ipc.Dial(ctx, cfg.SocketPath)
		if err != nil {
			return fmt.Errorf("daemon not reachable: %w", err)
		}
		defer c.Close()

		rtt, err := c.Ping(ctx)
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pong from %s in %s\n", cfg.SocketPath, rtt.Round(time.Microsecond))
		return nil
	},
}

func init() {
	pingCmd.Flags().DurationVar(&flagPingTimeout, "timeout", 2*time.Second, "how long to wait for the pong")
	rootCmd.AddCommand(pingCmd)
}
