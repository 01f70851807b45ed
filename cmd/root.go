package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/pane-tracker/internal/config"
	"github.com/timvw/pane-tracker/internal/logging"
	"github.com/timvw/pane-tracker/internal/mux"
	"github.com/timvw/pane-tracker/internal/registry"
	"github.com/timvw/pane-tracker/internal/store"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

var (
	// Global flags.
	flagConfig   string
	flagDataDir  string
	flagLogLevel string
	flagMux      string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "pane-tracker",
	Short: "Track AI coding assistant sessions running in tmux panes",
	Long: `pane-tracker watches tmux panes for an AI coding assistant and keeps a
durable record of each session and what it is doing: working, waiting for
input, idle or done.

Run "pane-tracker daemon" to start tracking. The other commands inspect panes
directly or read the session database the daemon maintains.

Configuration is loaded from .pane-tracker.yaml, ~/.config/pane-tracker/config.yaml
and PANE_TRACKER_* environment variables. Flags override both.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .pane-tracker.yaml or ~/.config/pane-tracker/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for the database, sockets and lock (default: ~/.pane-tracker)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagMux, "mux", "", "terminal multiplexer: tmux (default: auto-detect)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "log to stderr")
}

// loadConfig resolves configuration: defaults -> config file -> env -> flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithOverrides(flagConfig, func(c *config.Config) {
		if flagDataDir != "" {
			c.DataDir = flagDataDir
		}
		if flagLogLevel != "" {
			c.LogLevel = flagLogLevel
		}
		if flagMux != "" {
			c.Multiplexer = flagMux
		}
	})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// initCLILogging sends logs to stderr when --verbose is set and discards
// them otherwise. Only the daemon writes the log file.
func initCLILogging(cfg *config.Config) error {
	return logging.Init(logging.Config{
		Level:   cfg.LogLevel,
		Format:  "text",
		Console: flagVerbose,
	})
}

// getMultiplexer returns the configured or auto-detected multiplexer.
func getMultiplexer(cfg *config.Config) (mux.Multiplexer, error) {
	if cfg.Multiplexer != "" {
		return mux.FromName(cfg.Multiplexer)
	}
	return mux.Detect()
}

// setup is the common prelude of commands that talk to the multiplexer.
func setup() (*config.Config, mux.Multiplexer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := initCLILogging(cfg); err != nil {
		return nil, nil, err
	}
	m, err := getMultiplexer(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, m, nil
}

// openRegistry opens the daemon's database for reading. It does not create
// one: a missing file means the daemon has never run.
func openRegistry(cfg *config.Config) (*registry.Registry, func(), error) {
	if _, err := os.Stat(cfg.DBPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("no session database at %s (has the daemon run?)", cfg.DBPath)
		}
		return nil, nil, err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return registry.New(st), func() { _ = st.Close() }, nil
}
