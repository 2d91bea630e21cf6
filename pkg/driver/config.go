package driver

import (
	"errors"
	"fmt"
	"time"

	"Fleetbench/pkg/types"
)

// App is one tracked application
type App struct {
	Package      string        `json:"package"`
	Component    string        `json:"component,omitempty"`    // am start -n target, e.g. com.twitter.android/.StartActivity
	LaunchScript string        `json:"launchScript,omitempty"` // bash script used instead of am start
	UseDuration  time.Duration `json:"useDuration"`
}

// Phases are the absolute timers of the working-set experiment, all measured
// from the first launch
type Phases struct {
	Foreground1 time.Duration `json:"foreground1"`
	Background  time.Duration `json:"background"`
	Foreground2 time.Duration `json:"foreground2"`
	SleepUnit   time.Duration `json:"sleepUnit"`
}

// CycleConfig drives the foreground/background cycling experiment
type CycleConfig struct {
	Foreground      time.Duration `json:"foreground"`
	Background      time.Duration `json:"background"`
	KillBetweenApps bool          `json:"killBetweenApps"`
}

// Config parameterizes one experiment run
type Config struct {
	Mode   string     `json:"mode"`
	Apps   []App      `json:"apps"`
	Groups [][]string `json:"groups,omitempty"`
	Repeat int        `json:"repeat"`

	SkipWarmup        bool `json:"skipWarmup"`
	SampleCache       bool `json:"sampleCache"`
	KillAllFirst      bool `json:"killAllFirst"`
	HomeFirst         bool `json:"homeFirst"`
	LaunchAllFirst    bool `json:"launchAllFirst"`
	ManualInteraction bool `json:"manualInteraction"`

	// KillSet is force-stopped by every kill-all; defaults to the app packages
	KillSet     []string      `json:"killSet,omitempty"`
	InputPeriod time.Duration `json:"inputPeriod"`

	WorkingSetApp string      `json:"workingSetApp,omitempty"`
	Phases        Phases      `json:"phases"`
	Cycle         CycleConfig `json:"cycle"`
}

var (
	ErrNoApps      = errors.New("no apps configured")
	ErrUnknownMode = errors.New("unknown experiment mode")
)

// Validate checks the configuration before any device command is issued
func (c Config) Validate() error {
	if len(c.Apps) == 0 {
		return ErrNoApps
	}
	seen := make(map[string]bool, len(c.Apps))
	for _, a := range c.Apps {
		if a.Package == "" {
			return errors.New("app with empty package")
		}
		if seen[a.Package] {
			return fmt.Errorf("duplicate app %s", a.Package)
		}
		seen[a.Package] = true
	}

	switch c.mode() {
	case types.ModeLaunch:
		if c.Repeat < 1 {
			return fmt.Errorf("repeat must be >= 1, got %d", c.Repeat)
		}
		for i, g := range c.Groups {
			if len(g) == 0 {
				return fmt.Errorf("group %d is empty", i)
			}
			for _, pkg := range g {
				if !seen[pkg] {
					return fmt.Errorf("group %d: %s is not a configured app", i, pkg)
				}
			}
		}
	case types.ModeWorkingSet:
		if c.WorkingSetApp == "" {
			return errors.New("working-set mode needs an app")
		}
		if !seen[c.WorkingSetApp] {
			return fmt.Errorf("working-set app %s is not a configured app", c.WorkingSetApp)
		}
		if c.Phases.SleepUnit <= 0 {
			return errors.New("working-set sleep unit must be positive")
		}
	case types.ModeCycle:
		if c.Repeat < 1 {
			return fmt.Errorf("repeat must be >= 1, got %d", c.Repeat)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
	return nil
}

func (c Config) mode() string {
	if c.Mode == "" {
		return types.ModeLaunch
	}
	return c.Mode
}

// App returns the configured app for pkg
func (c Config) App(pkg string) (App, bool) {
	for _, a := range c.Apps {
		if a.Package == pkg {
			return a, true
		}
	}
	return App{}, false
}

// Packages lists the app packages in configuration order
func (c Config) Packages() []string {
	res := make([]string, 0, len(c.Apps))
	for _, a := range c.Apps {
		res = append(res, a.Package)
	}
	return res
}

// groups resolves Groups into apps; no groups means one group of every app
func (c Config) groups() [][]App {
	if len(c.Groups) == 0 {
		return [][]App{c.Apps}
	}
	res := make([][]App, 0, len(c.Groups))
	for _, g := range c.Groups {
		apps := make([]App, 0, len(g))
		for _, pkg := range g {
			if a, ok := c.App(pkg); ok {
				apps = append(apps, a)
			}
		}
		res = append(res, apps)
	}
	return res
}

func (c Config) killSet() []string {
	if len(c.KillSet) > 0 {
		return c.KillSet
	}
	return c.Packages()
}
