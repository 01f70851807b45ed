package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/daemon"
	"github.com/timvw/pane-tracker/internal/logging"
	"github.com/timvw/pane-tracker/internal/mux"
	telem "github.com/timvw/pane-tracker/internal/otel"
)

var flagConsole bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the tracking daemon in the foreground",
	Long: `Run the tracking daemon. It polls tmux on an interval, classifies every
pane hosting the assistant and keeps the session database up to date.

Only one daemon may run per data directory. A lock or socket left behind by
a daemon that crashed is reclaimed on start. SIGINT and SIGTERM stop the
daemon cleanly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&flagConsole, "console", false, "mirror log records to stderr")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Config{
		File:    cfg.LogFile,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Console: flagConsole || flagVerbose,
	}); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompDaemon)
	if cfg.ConfigFile != "" {
		log.Info("config loaded", "file", cfg.ConfigFile)
	}

	m, err := getMultiplexer(cfg)
	if err != nil {
		return fmt.Errorf("no supported terminal multiplexer found: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// No-op when no endpoint is configured.
	tel, err := telem.Init(ctx, cfg, Version, m.Name())
	if err != nil {
		log.Warn("otel init failed", "error", err)
	}
	var metrics *telem.Metrics
	if tel != nil {
		metrics = tel.Metrics
		defer func() {
			if err := tel.Close(); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		Mux:        m,
		Metrics:    metrics,
		SelfPaneID: mux.CurrentPaneID(),
	})
	if err != nil {
		return err
	}
	if err := d.Run(ctx); err != nil {
		log.Error("daemon failed", "error", err)
		return err
	}
	return nil
}
