// ============================================================================
// cookbot CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree and YAML configuration
//
// Command Structure:
//   cookbot                        # Root command
//   ├── run                        # Run a kitchen with HTTP and gRPC front ends
//   ├── bot add | withdraw <id>    # Remote bot commands (gRPC)
//   ├── order add [--vip]          # Remote order command (gRPC)
//   ├── status [--board]           # Remote status (gRPC)
//   ├── simulate <scenario.yaml>.. # Run scenarios on the worker pool
//   ├── replay                     # Rebuild a kitchen from export + journal
//   ├── init                       # Write a default config file
//   ├── --config, -c               # Config file (default configs/default.yaml)
//   └── --log-level                # Overrides log.level
//
// Configuration Management:
//   YAML config file, sections:
//   - kitchen: cook time, tick interval, invariant checks
//   - journal: command journal (audit trail)
//   - export:  periodic JSON export
//   - metrics: Prometheus collector, served on the HTTP listener
//   - http:    REST + websocket listener
//   - grpc:    KitchenService listener, also the default --addr
//   - log:     level and format
//
//   A missing config file is not an error; defaults are used.
//
// ============================================================================

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/cookbot/pkg/types"
)

// Version is set at build time.
var Version = "0.1.0"

// Config represents the complete system configuration structure
type Config struct {
	Kitchen struct {
		CookSeconds     int           `yaml:"cook_seconds"`
		TickInterval    time.Duration `yaml:"tick_interval"`
		CheckInvariants bool          `yaml:"check_invariants"`
	} `yaml:"kitchen"`

	Journal struct {
		Path       string `yaml:"path"` // empty disables the journal
		BufferSize int    `yaml:"buffer_size"`
		Sync       bool   `yaml:"sync"`
	} `yaml:"journal"`

	Export struct {
		Path     string        `yaml:"path"` // empty disables exports
		Interval time.Duration `yaml:"interval"`
		Backups  int           `yaml:"backups"`
	} `yaml:"export"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	HTTP struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"http"`

	GRPC struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"grpc"`

	Log struct {
		Level  string `yaml:"level"`  // debug | info | warn | error
		Format string `yaml:"format"` // text | json
	} `yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	var cfg Config
	cfg.Kitchen.CookSeconds = types.DefaultCookSeconds
	cfg.Kitchen.TickInterval = time.Second
	cfg.Journal.Path = "data/journal.log"
	cfg.Journal.BufferSize = 1
	cfg.Export.Path = "data/export.json"
	cfg.Export.Interval = time.Minute
	cfg.Export.Backups = 3
	cfg.Metrics.Enabled = true
	cfg.HTTP.Enabled = true
	cfg.HTTP.Addr = ":8080"
	cfg.GRPC.Enabled = true
	cfg.GRPC.Addr = ":50051"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return &cfg
}

var (
	configFile string
	logLevel   string
)

// BuildCLI assembles the command tree.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cookbot",
		Short: "cookbot: a cooking-bot order kitchen",
		Long: `cookbot assigns orders to cooking bots:
- vip orders are served before normal ones
- bots cook one order at a time and can be withdrawn
- REST, websocket and gRPC front ends
- command journal, JSON exports and Prometheus metrics`,
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug | info | warn | error (overrides config)")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildBotCommand())
	rootCmd.AddCommand(buildOrderCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildSimulateCommand())
	rootCmd.AddCommand(buildReplayCommand())
	rootCmd.AddCommand(buildInitCommand())

	return rootCmd
}

// loadConfig reads path over the defaults. A missing file yields the
// defaults; unknown keys are rejected.
func loadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Kitchen.CookSeconds < 0 {
		return errors.New("kitchen.cook_seconds must not be negative")
	}
	if c.Kitchen.TickInterval < 0 {
		return errors.New("kitchen.tick_interval must not be negative")
	}
	if c.Export.Backups < 0 {
		return errors.New("export.backups must not be negative")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// currentConfig loads the --config file and applies flag overrides.
func currentConfig() (*Config, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		if _, err := parseLevel(logLevel); err != nil {
			return nil, err
		}
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func buildLogger(cfg *Config, w io.Writer) *slog.Logger {
	lvl, _ := parseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With(slog.String("service", "cookbot"))
}
