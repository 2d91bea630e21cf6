package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"Fleetbench/pkg/config"
)

var (
	cfgFile     string
	serialFlag  string
	logLevel    string
	dataDirFlag string
	cfg         *config.Config
	Version     = "dev" // Set by ldflags
)

var rootCmd = &cobra.Command{
	Use:   "fleetbench",
	Short: "Benchmark Android app launch latency and cache eviction over adb",
	Long: `fleetbench drives a device through repeated app launches and records how
long each launch took and which apps the system kept cached.

Quick Start:
  fleetbench devices                       # List attached devices
  fleetbench run --repeat 5                # Launch experiment over the configured apps
  fleetbench cycle                         # Round-robin launches with cache sampling
  fleetbench frames com.twitter.android    # Per-frame render times
  fleetbench report last --format json     # Show the newest stored report

Configuration lives in ~/.config/fleetbench/config.toml (fleetbench config init).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that do not need it
		switch cmd.Name() {
		case "version", "completion", "path", "init":
			return nil
		}

		var err error
		cfg, err = config.LoadOrDefault(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if dataDirFlag != "" {
			cfg.DataDir = dataDirFlag
		}
		if serialFlag != "" {
			if err := ValidateDeviceID(serialFlag); err != nil {
				return fmt.Errorf("invalid --serial: %w", err)
			}
		}

		logCfg, err := logConfigFrom(cfg, logLevel)
		if err != nil {
			return err
		}
		if err := InitLogger(logCfg); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return cfg.Validate()
	},
}

// Execute runs the command tree with ctx as the base context
func Execute(ctx context.Context) error {
	defer CloseLogger()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/fleetbench/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&serialFlag, "serial", "s", "", "device serial (default: configured, pinned or only device)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from config)")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "directory for runs.db and logs")

	// Add all subcommands
	rootCmd.AddCommand(
		// Experiments
		newRunCmd(),
		newWorkingSetCmd(),
		newCycleCmd(),
		newFramesCmd(),

		// Device
		newCacheCmd(),
		newKillAllCmd(),
		newDevicesCmd(),
		newDeviceCmd(),

		// Offline parsing
		newParseCmd(),

		// Stored runs
		newRunsCmd(),
		newReportCmd(),

		// Utilities
		newConfigCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
}

// logConfigFrom builds the logger setup from the [log] section. level
// overrides the configured level when not empty.
func logConfigFrom(c *config.Config, level string) (LogConfig, error) {
	if level == "" {
		level = c.Log.Level
	}
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return LogConfig{}, err
	}

	lc := DefaultLogConfig()
	if c.Log.EnableFile {
		dir := c.Log.Dir
		if dir == "" {
			dir = c.DataDir
		}
		lc = PersistentLogConfig(dir)
		if c.Log.Dir != "" {
			lc.FilePath = filepath.Join(c.Log.Dir, filepath.Base(lc.FilePath))
		}
	}
	lc.Level = lvl
	lc.JSON = !c.Log.PrettyPrint
	if c.Log.MaxSizeMB > 0 {
		lc.MaxSizeMB = c.Log.MaxSizeMB
	}
	if c.Log.MaxBackups > 0 {
		lc.MaxBackups = c.Log.MaxBackups
	}
	if c.Log.MaxAgeDays > 0 {
		lc.MaxAgeDays = c.Log.MaxAgeDays
	}
	lc.Compress = c.Log.Compress
	return lc, nil
}

// configPath is the file the running config came from, empty when defaults
// are in use
func configPath() string {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// openApp starts an App over the loaded config. Reports go to the command's
// stdout.
func openApp(cmd *cobra.Command) (*App, func(), error) {
	if cfg == nil {
		return nil, nil, errors.New("configuration not loaded")
	}
	app := NewApp(Version, cfg, configPath())
	if err := app.startup(cmd.Context()); err != nil {
		return nil, nil, err
	}
	app.out = cmd.OutOrStdout()
	return app, func() { app.Shutdown(context.Background()) }, nil
}
