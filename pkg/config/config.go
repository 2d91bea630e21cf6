// Package config loads the experiment, device and log settings of fleetbench
// from TOML (or YAML) files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"Fleetbench/pkg/driver"
	"Fleetbench/pkg/types"
)

// Config represents the main configuration
type Config struct {
	DataDir    string           `toml:"data_dir" yaml:"data_dir"`
	Device     DeviceConfig     `toml:"device" yaml:"device"`
	Log        LogConfig        `toml:"log" yaml:"log"`
	Cache      CacheConfig      `toml:"cache" yaml:"cache"`
	Input      InputConfig      `toml:"input" yaml:"input"`
	Experiment ExperimentConfig `toml:"experiment" yaml:"experiment"`
	WorkingSet WorkingSetConfig `toml:"working_set" yaml:"working_set"`
	Cycle      CycleConfig      `toml:"cycle" yaml:"cycle"`
	Frames     FramesConfig     `toml:"frames" yaml:"frames"`
	Apps       []AppConfig      `toml:"apps" yaml:"apps"`
}

// DeviceConfig selects the device and the adb binary
type DeviceConfig struct {
	Serial         string   `toml:"serial" yaml:"serial"`
	AdbPath        string   `toml:"adb_path" yaml:"adb_path"`
	ScriptDir      string   `toml:"script_dir" yaml:"script_dir"`
	CommandTimeout Duration `toml:"command_timeout" yaml:"command_timeout"` // 0 disables
}

// LogConfig mirrors the logger settings
type LogConfig struct {
	Level       string `toml:"level" yaml:"level"`
	Dir         string `toml:"dir" yaml:"dir"`
	EnableFile  bool   `toml:"enable_file" yaml:"enable_file"`
	MaxSizeMB   int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups  int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays  int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress    bool   `toml:"compress" yaml:"compress"`
	PrettyPrint bool   `toml:"pretty_print" yaml:"pretty_print"`
}

// CacheConfig configures the cached-app parser
type CacheConfig struct {
	AllowList []string `toml:"allow_list" yaml:"allow_list"`
	// TrimLines strips each meminfo line before splitting; needed on Pixel 5 builds
	TrimLines bool `toml:"trim_lines" yaml:"trim_lines"`
}

// Gesture is either an `input swipe` or a script run with bash
type Gesture struct {
	X1         int    `toml:"x1" yaml:"x1"`
	Y1         int    `toml:"y1" yaml:"y1"`
	X2         int    `toml:"x2" yaml:"x2"`
	Y2         int    `toml:"y2" yaml:"y2"`
	DurationMs int    `toml:"duration_ms" yaml:"duration_ms"`
	Script     string `toml:"script,omitempty" yaml:"script,omitempty"`
}

// InputConfig describes the synthetic input used during the use phase
type InputConfig struct {
	Period        Duration `toml:"period" yaml:"period"`
	HomeScript    string   `toml:"home_script,omitempty" yaml:"home_script,omitempty"`
	SwipeUpFast   Gesture  `toml:"swipe_up_fast" yaml:"swipe_up_fast"`
	SwipeDownFast Gesture  `toml:"swipe_down_fast" yaml:"swipe_down_fast"`
	SwipeUp       Gesture  `toml:"swipe_up" yaml:"swipe_up"`
}

// ExperimentConfig holds the launch experiment knobs
type ExperimentConfig struct {
	Repeat            int        `toml:"repeat" yaml:"repeat"`
	UseDuration       Duration   `toml:"use_duration" yaml:"use_duration"`
	SkipWarmup        bool       `toml:"skip_warmup" yaml:"skip_warmup"`
	SampleCache       bool       `toml:"sample_cache" yaml:"sample_cache"`
	KillAllFirst      bool       `toml:"kill_all_first" yaml:"kill_all_first"`
	HomeFirst         bool       `toml:"home_first" yaml:"home_first"`
	LaunchAllFirst    bool       `toml:"launch_all_first" yaml:"launch_all_first"`
	ManualInteraction bool       `toml:"manual_interaction" yaml:"manual_interaction"`
	Groups            [][]string `toml:"groups,omitempty" yaml:"groups,omitempty"`
}

// WorkingSetConfig holds the absolute timers of the working-set experiment
type WorkingSetConfig struct {
	App         string   `toml:"app" yaml:"app"`
	Foreground1 Duration `toml:"foreground_1" yaml:"foreground_1"`
	Background  Duration `toml:"background" yaml:"background"`
	Foreground2 Duration `toml:"foreground_2" yaml:"foreground_2"`
	SleepUnit   Duration `toml:"sleep_unit" yaml:"sleep_unit"`
}

// CycleConfig holds the foreground/background cycling knobs
type CycleConfig struct {
	Repeat          int      `toml:"repeat" yaml:"repeat"`
	Foreground      Duration `toml:"foreground" yaml:"foreground"`
	Background      Duration `toml:"background" yaml:"background"`
	KillBetweenApps bool     `toml:"kill_between_apps" yaml:"kill_between_apps"`
}

// FramesConfig configures the gfxinfo profiler
type FramesConfig struct {
	Interval Duration `toml:"interval" yaml:"interval"`
	Limit    int      `toml:"limit" yaml:"limit"`
}

// AppConfig is one tracked app. Apps without a component or script are
// launched through their launcher activity.
type AppConfig struct {
	Package      string   `toml:"package" yaml:"package"`
	Component    string   `toml:"component,omitempty" yaml:"component,omitempty"`
	LaunchScript string   `toml:"launch_script,omitempty" yaml:"launch_script,omitempty"`
	UseDuration  Duration `toml:"use_duration,omitempty" yaml:"use_duration,omitempty"`
}

// DefaultAllowList is the set of commercial apps the experiments track
var DefaultAllowList = []string{
	"com.twitter.android",
	"com.facebook.katana",
	"com.instagram.android",
	"org.telegram.messenger",
	"jp.naver.line.android",

	"com.google.android.youtube",
	"com.ss.android.ugc.aweme",
	"com.spotify.music",
	"tv.twitch.android.app",
	"com.wemesh.android",
	"sg.bigo.live",

	"com.amazon.mShop.android.shopping",
	"com.google.android.apps.maps",
	"com.android.chrome",
	"org.mozilla.firefox",
	"com.linkedin.android",

	"com.rovio.angrybirds",
	"com.king.candycrushsaga",
}

// DefaultPath returns the default config file path
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fleetbench", "config.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fleetbench", "config.toml")
}

// DefaultDataDir returns where runs.db and logs live by default
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "Fleetbench")
}

// Default returns the default configuration
func Default() *Config {
	apps := make([]AppConfig, 0, len(DefaultAllowList))
	for _, pkg := range DefaultAllowList {
		apps = append(apps, AppConfig{Package: pkg})
	}
	return &Config{
		DataDir: DefaultDataDir(),
		Device: DeviceConfig{
			CommandTimeout: Duration(2 * time.Minute),
		},
		Log: LogConfig{
			Level:       "info",
			EnableFile:  true,
			MaxSizeMB:   10,
			MaxBackups:  5,
			MaxAgeDays:  7,
			Compress:    true,
			PrettyPrint: true,
		},
		Cache: CacheConfig{
			AllowList: append([]string(nil), DefaultAllowList...),
		},
		Input: InputConfig{
			SwipeUpFast:   Gesture{X1: 540, Y1: 1600, X2: 540, Y2: 400, DurationMs: 100},
			SwipeDownFast: Gesture{X1: 540, Y1: 400, X2: 540, Y2: 1600, DurationMs: 100},
			SwipeUp:       Gesture{X1: 540, Y1: 1600, X2: 540, Y2: 400, DurationMs: 500},
		},
		Experiment: ExperimentConfig{
			Repeat:       4,
			UseDuration:  Duration(10 * time.Second),
			SkipWarmup:   true,
			KillAllFirst: true,
		},
		WorkingSet: WorkingSetConfig{
			App:         "tv.twitch.android.app",
			Foreground1: Duration(180 * time.Second),
			Background:  Duration(300 * time.Second),
			Foreground2: Duration(120 * time.Second),
			SleepUnit:   Duration(2 * time.Second),
		},
		Cycle: CycleConfig{
			Repeat:          2,
			Foreground:      Duration(10 * time.Second),
			Background:      Duration(5 * time.Second),
			KillBetweenApps: true,
		},
		Frames: FramesConfig{
			Interval: Duration(500 * time.Millisecond),
		},
		Apps: apps,
	}
}

// Load loads configuration from a file. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	// decoded lists replace the defaults instead of merging into them
	cfg.Apps = nil
	cfg.Cache.AllowList = nil

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	// Apply defaults for missing values
	if len(cfg.Cache.AllowList) == 0 {
		cfg.Cache.AllowList = append([]string(nil), DefaultAllowList...)
	}
	if len(cfg.Apps) == 0 {
		for _, pkg := range cfg.Cache.AllowList {
			cfg.Apps = append(cfg.Apps, AppConfig{Package: pkg})
		}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file is missing
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks cross-field constraints that the decoder cannot
func (c *Config) Validate() error {
	if len(c.Apps) == 0 {
		return errors.New("no apps configured")
	}
	if c.Experiment.Repeat < 1 {
		return fmt.Errorf("experiment.repeat must be >= 1, got %d", c.Experiment.Repeat)
	}
	if c.Cycle.Repeat < 1 {
		return fmt.Errorf("cycle.repeat must be >= 1, got %d", c.Cycle.Repeat)
	}
	if c.Device.CommandTimeout < 0 {
		return errors.New("device.command_timeout must not be negative")
	}
	if c.Frames.Interval <= 0 {
		return errors.New("frames.interval must be positive")
	}

	known := make(map[string]bool, len(c.Apps))
	for _, a := range c.Apps {
		if a.Package == "" {
			return errors.New("apps: empty package")
		}
		known[a.Package] = true
	}
	for i, g := range c.Experiment.Groups {
		for _, pkg := range g {
			if !known[pkg] {
				return fmt.Errorf("experiment.groups[%d]: %s is not in apps", i, pkg)
			}
		}
	}
	if c.WorkingSet.App != "" && !known[c.WorkingSet.App] {
		return fmt.Errorf("working_set.app %s is not in apps", c.WorkingSet.App)
	}
	return nil
}

// DriverConfig builds the driver configuration for one experiment mode
func (c *Config) DriverConfig(mode string) driver.Config {
	apps := make([]driver.App, 0, len(c.Apps))
	for _, a := range c.Apps {
		use := a.UseDuration
		if use == 0 {
			use = c.Experiment.UseDuration
		}
		apps = append(apps, driver.App{
			Package:      a.Package,
			Component:    a.Component,
			LaunchScript: a.LaunchScript,
			UseDuration:  use.Std(),
		})
	}

	dc := driver.Config{
		Mode:              mode,
		Apps:              apps,
		Groups:            c.Experiment.Groups,
		Repeat:            c.Experiment.Repeat,
		SkipWarmup:        c.Experiment.SkipWarmup,
		SampleCache:       c.Experiment.SampleCache,
		KillAllFirst:      c.Experiment.KillAllFirst,
		HomeFirst:         c.Experiment.HomeFirst,
		LaunchAllFirst:    c.Experiment.LaunchAllFirst,
		ManualInteraction: c.Experiment.ManualInteraction,
		KillSet:           c.Cache.AllowList,
		InputPeriod:       c.Input.Period.Std(),
		WorkingSetApp:     c.WorkingSet.App,
		Phases: driver.Phases{
			Foreground1: c.WorkingSet.Foreground1.Std(),
			Background:  c.WorkingSet.Background.Std(),
			Foreground2: c.WorkingSet.Foreground2.Std(),
			SleepUnit:   c.WorkingSet.SleepUnit.Std(),
		},
		Cycle: driver.CycleConfig{
			Foreground:      c.Cycle.Foreground.Std(),
			Background:      c.Cycle.Background.Std(),
			KillBetweenApps: c.Cycle.KillBetweenApps,
		},
	}

	switch mode {
	case types.ModeCycle:
		dc.Repeat = c.Cycle.Repeat
		dc.HomeFirst = true
	case types.ModeWorkingSet:
		dc.HomeFirst = true
	}
	return dc
}

// CreateDefault creates a default config file
func CreateDefault(path string) (string, error) {
	if path == "" {
		path = DefaultPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := Print(Default(), f); err != nil {
		return "", err
	}

	return path, nil
}

// Print writes config to a writer in TOML format
func Print(cfg *Config, w io.Writer) error {
	fmt.Fprintln(w, "# fleetbench configuration")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "# Where runs.db and logs are written\n")
	fmt.Fprintf(w, "data_dir = %q\n", cfg.DataDir)
	fmt.Fprintln(w)

	enc := toml.NewEncoder(w)
	enc.Indent = ""
	sections := []struct {
		comment string
		value   interface{}
	}{
		{"Device selection; serial may be left empty when only one device is attached", struct {
			Device DeviceConfig `toml:"device"`
		}{cfg.Device}},
		{"Logging", struct {
			Log LogConfig `toml:"log"`
		}{cfg.Log}},
		{"Packages recognised in dumpsys meminfo output", struct {
			Cache CacheConfig `toml:"cache"`
		}{cfg.Cache}},
		{"Synthetic input (input swipe x1 y1 x2 y2 duration_ms, or a script)", struct {
			Input InputConfig `toml:"input"`
		}{cfg.Input}},
		{"Launch experiment", struct {
			Experiment ExperimentConfig `toml:"experiment"`
		}{cfg.Experiment}},
		{"Working-set experiment, timers are measured from the first launch", struct {
			WorkingSet WorkingSetConfig `toml:"working_set"`
		}{cfg.WorkingSet}},
		{"Foreground/background cycling", struct {
			Cycle CycleConfig `toml:"cycle"`
		}{cfg.Cycle}},
		{"gfxinfo profiler", struct {
			Frames FramesConfig `toml:"frames"`
		}{cfg.Frames}},
		{"Tracked apps, in launch order", struct {
			Apps []AppConfig `toml:"apps"`
		}{cfg.Apps}},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "# %s\n", s.comment)
		if err := enc.Encode(s.value); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}
