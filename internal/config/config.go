// Package config loads pane-tracker configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Command-line flags (applied by cmd)
//  2. Environment variables (PANE_TRACKER_*)
//  3. Config file
//  4. Built-in defaults
//
// Config file search order, unless a path is given explicitly:
//  1. .pane-tracker.yaml in current directory
//  2. ~/.config/pane-tracker/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timvw/pane-tracker/internal/logging"
)

// ErrNoHomeDir is returned when no data directory is configured and the
// home directory cannot be determined.
var ErrNoHomeDir = errors.New("cannot determine home directory for data dir")

// MinCaptureLines is the smallest capture that still covers the
// classifier's recent window.
const MinCaptureLines = 20

// Config holds all pane-tracker configuration.
type Config struct {
	// Paths. Empty values are derived from DataDir.
	DataDir        string `yaml:"data_dir"`
	DBPath         string `yaml:"db_path"`
	SocketPath     string `yaml:"socket_path"`
	LockPath       string `yaml:"lock_path"`
	HookSocketPath string `yaml:"hook_socket_path"`
	LogFile        string `yaml:"log_file"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"

	// Polling
	Multiplexer     string   `yaml:"multiplexer"`   // "tmux"; empty auto-detects
	PollInterval    string   `yaml:"poll_interval"` // Go duration string, e.g. "2s"
	CaptureLines    int      `yaml:"capture_lines"`
	Parallel        int      `yaml:"parallel"`
	ExcludeSessions []string `yaml:"exclude_sessions"` // exact names or "prefix*"

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// PollDuration is parsed from PollInterval by Load.
	PollDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "json",
		PollInterval: "2s",
		CaptureLines: 50,
		Parallel:     4,
	}
}

// Load reads configuration from file and environment variables and resolves
// all paths. explicitPath, when set, must exist.
func Load(explicitPath string) (*Config, error) {
	return LoadWithOverrides(explicitPath, nil)
}

// LoadWithOverrides is Load with a final layer applied after the
// environment and before paths are derived. cmd uses it for flags.
func LoadWithOverrides(explicitPath string, override func(*Config)) (*Config, error) {
	cfg := Defaults()

	path, data, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, err
	}
	if path != "" {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize resolves derived paths, parses durations and validates.
func (c *Config) Finalize() error {
	if err := c.resolvePaths(); err != nil {
		return err
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid poll interval %q: %w", c.PollInterval, err)
	}
	c.PollDuration = d
	return c.Validate()
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.PollDuration <= 0 {
		return fmt.Errorf("poll interval must be positive, got %q", c.PollInterval)
	}
	if c.CaptureLines < MinCaptureLines {
		return fmt.Errorf("capture_lines must be at least %d, got %d", MinCaptureLines, c.CaptureLines)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q (want json or text)", c.LogFormat)
	}
	switch c.Multiplexer {
	case "", "tmux":
	default:
		return fmt.Errorf("unsupported multiplexer %q", c.Multiplexer)
	}
	return nil
}

func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return ErrNoHomeDir
		}
		c.DataDir = filepath.Join(home, ".pane-tracker")
	}
	var err error
	if c.DataDir, err = expandHome(c.DataDir); err != nil {
		return err
	}
	derive := func(p *string, name string) error {
		if *p == "" {
			*p = filepath.Join(c.DataDir, name)
			return nil
		}
		v, err := expandHome(*p)
		*p = v
		return err
	}
	for _, d := range []struct {
		p    *string
		name string
	}{
		{&c.DBPath, "sessions.db"},
		{&c.SocketPath, "daemon.sock"},
		{&c.LockPath, "daemon.pid"},
		{&c.HookSocketPath, "hooks.sock"},
		{&c.LogFile, "daemon.log"},
	} {
		if err := derive(d.p, d.name); err != nil {
			return err
		}
	}
	return nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", ErrNoHomeDir
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// findConfigFile returns the config file to load, or an empty path if none
// exists.
func findConfigFile(explicit string) (string, []byte, error) {
	if explicit != "" {
		data, err := os.ReadFile(explicit)
		if err != nil {
			return "", nil, fmt.Errorf("reading config file: %w", err)
		}
		return explicit, data, nil
	}

	if data, err := os.ReadFile(".pane-tracker.yaml"); err == nil {
		return ".pane-tracker.yaml", data, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "pane-tracker", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, nil
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&cfg.DataDir, file.DataDir)
	setString(&cfg.DBPath, file.DBPath)
	setString(&cfg.SocketPath, file.SocketPath)
	setString(&cfg.LockPath, file.LockPath)
	setString(&cfg.HookSocketPath, file.HookSocketPath)
	setString(&cfg.LogFile, file.LogFile)
	setString(&cfg.LogLevel, file.LogLevel)
	setString(&cfg.LogFormat, file.LogFormat)
	setString(&cfg.Multiplexer, file.Multiplexer)
	setString(&cfg.PollInterval, file.PollInterval)
	setString(&cfg.OTELEndpoint, file.OTELEndpoint)
	setString(&cfg.OTELHeaders, file.OTELHeaders)
	if file.CaptureLines > 0 {
		cfg.CaptureLines = file.CaptureLines
	}
	if file.Parallel > 0 {
		cfg.Parallel = file.Parallel
	}
	if len(file.ExcludeSessions) > 0 {
		cfg.ExcludeSessions = file.ExcludeSessions
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins over the
// file.
func mergeEnv(cfg *Config) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"PANE_TRACKER_DATA_DIR", &cfg.DataDir},
		{"PANE_TRACKER_DB", &cfg.DBPath},
		{"PANE_TRACKER_SOCKET", &cfg.SocketPath},
		{"PANE_TRACKER_LOCK", &cfg.LockPath},
		{"PANE_TRACKER_HOOK_SOCKET", &cfg.HookSocketPath},
		{"PANE_TRACKER_LOG_FILE", &cfg.LogFile},
		{"PANE_TRACKER_LOG_LEVEL", &cfg.LogLevel},
		{"PANE_TRACKER_LOG_FORMAT", &cfg.LogFormat},
		{"PANE_TRACKER_MULTIPLEXER", &cfg.Multiplexer},
		{"PANE_TRACKER_POLL", &cfg.PollInterval},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTELEndpoint},
		{"OTEL_EXPORTER_OTLP_HEADERS", &cfg.OTELHeaders},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PANE_TRACKER_CAPTURE_LINES", &cfg.CaptureLines},
		{"PANE_TRACKER_PARALLEL", &cfg.Parallel},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", i.key, v, err)
		}
		*i.dst = n
	}

	if v := os.Getenv("PANE_TRACKER_EXCLUDE_SESSIONS"); v != "" {
		cfg.ExcludeSessions = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MatchesExcludeList reports whether name matches any pattern. A pattern is
// either an exact session name or a prefix ending in "*".
func MatchesExcludeList(name string, patterns []string) bool {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if name == p {
			return true
		}
	}
	return false
}
