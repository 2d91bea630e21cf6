package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"Fleetbench/pkg/cache"
	"Fleetbench/pkg/config"
	"Fleetbench/pkg/driver"
	"Fleetbench/pkg/parser"
	"Fleetbench/pkg/types"
)

// deviceGateway is what a run needs from the device: the driver commands plus
// gfxinfo for the frame profiler
type deviceGateway interface {
	driver.Gateway
	GfxInfo(ctx context.Context, pkg string, reset bool) string
}

// App struct
type App struct {
	ctx     context.Context
	version string
	adbPath string
	dataDir string

	// Experiment configuration, replaced by the config watcher
	cfg     *config.Config
	cfgPath string
	cfgMu   sync.RWMutex

	settings *cache.Service
	store    *RunStore

	// Reports and profiler lines go here, logs go to stderr
	out io.Writer

	// newGateway builds the gateway of one device; swapped in tests
	newGateway func(serial string) deviceGateway
}

// NewApp creates a new App instance
func NewApp(version string, cfg *config.Config, cfgPath string) *App {
	app := &App{
		version: version,
		cfg:     cfg,
		cfgPath: cfgPath,
		dataDir: cfg.DataDir,
		out:     os.Stdout,
	}
	app.newGateway = app.deviceGateway
	return app
}

// startup opens the settings, the run store and finds adb
func (a *App) startup(ctx context.Context) error {
	a.ctx = ctx
	if a.dataDir == "" {
		a.dataDir = config.DefaultDataDir()
	}
	a.setupAdb()

	settings, err := cache.New(cache.Config{
		ConfigDir: a.dataDir,
		LogFunc: func(format string, args ...interface{}) {
			LogDebug("settings").Msgf(format, args...)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open settings: %w", err)
	}
	a.settings = settings

	store, err := NewRunStore(a.dataDir)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	a.store = store
	LogDebug("app").Str("db", store.DBPath()).Msg("Run store opened")
	return nil
}

// Shutdown is called when the application is closing
func (a *App) Shutdown(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			LogWarn("app").Err(err).Msg("Failed to close run store")
		}
	}
	if a.settings != nil {
		_ = a.settings.Close()
	}
}

// GetAppVersion returns the application version
func (a *App) GetAppVersion() string {
	return a.version
}

// Config returns the current experiment configuration
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// SetConfig replaces the configuration used by subsequent runs
func (a *App) SetConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
}

// ConfigPath returns the file the configuration was loaded from
func (a *App) ConfigPath() string {
	return a.cfgPath
}

// setupAdb prefers the configured adb, then the one in PATH
func (a *App) setupAdb() {
	if p := a.Config().Device.AdbPath; p != "" {
		a.adbPath = p
	} else if path, err := exec.LookPath("adb"); err == nil {
		a.adbPath = path
	} else {
		a.adbPath = "adb"
	}
	DeviceLog().Str("adb", a.adbPath).Msg("Using adb")
}

// newAdbCommand creates an exec.Cmd with a clean environment to avoid proxy issues
func (a *App) newAdbCommand(ctx context.Context, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if ctx != nil {
		cmd = exec.CommandContext(ctx, a.adbPath, args...)
	} else {
		cmd = exec.Command(a.adbPath, args...)
	}
	cmd.Env = cleanEnv()
	return cmd
}

func (a *App) deviceGateway(serial string) deviceGateway {
	cfg := a.Config()
	return NewDeviceGateway(GatewayOptions{
		AdbPath:   a.adbPath,
		Serial:    serial,
		Timeout:   cfg.Device.CommandTimeout.Std(),
		ScriptDir: cfg.Device.ScriptDir,
		Input:     cfg.Input,
	})
}

// connect resolves the device and builds its gateway
func (a *App) connect(ctx context.Context, serial string) (string, deviceGateway, error) {
	if serial == "" {
		serial = a.Config().Device.Serial
	}
	serial, err := a.SelectDevice(ctx, serial)
	if err != nil {
		return "", nil, err
	}
	return serial, a.newGateway(serial), nil
}

func (a *App) cacheParser() *parser.CachedAppParser {
	c := a.Config().Cache
	return parser.NewCachedAppParser(c.AllowList, c.TrimLines)
}

// ========================================
// Experiments
// ========================================

// RunOptions override the configured experiment for one run
type RunOptions struct {
	Serial        string
	Apps          []string // subset of the configured apps, in this order
	Repeat        int
	UseDuration   time.Duration
	SkipWarmup    *bool
	SampleCache   *bool
	WorkingSetApp string
}

func (o RunOptions) apply(dc *driver.Config) error {
	if len(o.Apps) > 0 {
		apps := make([]driver.App, 0, len(o.Apps))
		for _, pkg := range o.Apps {
			app, ok := dc.App(pkg)
			if !ok {
				app = driver.App{Package: pkg}
				if len(dc.Apps) > 0 {
					app.UseDuration = dc.Apps[0].UseDuration
				}
			}
			apps = append(apps, app)
		}
		dc.Apps = apps
		// configured groups refer to the full app list
		dc.Groups = nil
	}
	if o.Repeat != 0 {
		dc.Repeat = o.Repeat
	}
	if o.UseDuration > 0 {
		for i := range dc.Apps {
			dc.Apps[i].UseDuration = o.UseDuration
		}
	}
	if o.SkipWarmup != nil {
		dc.SkipWarmup = *o.SkipWarmup
	}
	if o.SampleCache != nil {
		dc.SampleCache = *o.SampleCache
	}
	if o.WorkingSetApp != "" {
		dc.WorkingSetApp = o.WorkingSetApp
		if _, ok := dc.App(o.WorkingSetApp); !ok {
			dc.Apps = append(dc.Apps, driver.App{Package: o.WorkingSetApp})
		}
	}
	return dc.Validate()
}

// RunExperiment executes one experiment mode against a device and stores
// every sample under a new run. The returned report carries the run ID even
// when the run was cancelled.
func (a *App) RunExperiment(ctx context.Context, mode string, opts RunOptions) (types.Report, error) {
	dc := a.Config().DriverConfig(mode)
	if err := opts.apply(&dc); err != nil {
		return types.Report{}, fmt.Errorf("invalid experiment: %w", err)
	}

	serial, gw, err := a.connect(ctx, opts.Serial)
	if err != nil {
		return types.Report{}, err
	}

	timer := StartOperation("run", mode+"_experiment").
		AddDetail("deviceId", serial).
		AddDetail("apps", len(dc.Apps)).
		AddDetail("repeat", dc.Repeat)

	runID, err := a.store.CreateRun(mode, serial, dc, time.Now())
	if err != nil {
		timer.EndWithError(err)
		return types.Report{}, err
	}
	timer.AddDetail("run", runID)

	drv, err := driver.New(dc, driver.Options{
		Gateway:     gw,
		Recorder:    a.store.Recorder(runID),
		CacheParser: a.cacheParser(),
		Logger:      Logger.With().Str("run", runID).Str("deviceId", serial).Logger(),
	})
	if err != nil {
		_ = a.store.FinishRun(runID, RunStatusFailed, time.Now())
		timer.EndWithError(err)
		return types.Report{}, err
	}

	rep, runErr := drv.Run(ctx)
	rep.RunID = runID
	rep.DeviceSerial = serial

	status := RunStatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = RunStatusCancelled
	case runErr != nil:
		status = RunStatusFailed
	}
	if err := a.store.FinishRun(runID, status, rep.FinishedAt); err != nil {
		LogError("run").Err(err).Str("run", runID).Msg("Failed to finish run")
	}

	a.settings.SetLastRun(serial, runID)
	a.updateLastActive(serial)
	RunLog().Str("run", runID).Str("mode", mode).Str("status", status).Msg("Run finished")

	if runErr != nil {
		timer.EndWithError(runErr)
	} else {
		timer.End()
	}
	return rep, runErr
}

// CachedAppsSnapshot takes one `dumpsys meminfo` and returns the tracked
// apps currently cached
func (a *App) CachedAppsSnapshot(ctx context.Context, serial string) (types.CachedAppSet, error) {
	serial, gw, err := a.connect(ctx, serial)
	if err != nil {
		return nil, err
	}
	set := a.cacheParser().Parse(gw.Meminfo(ctx))
	DeviceLog().Str("deviceId", serial).Int("cached", set.Len()).Msg("Cached apps snapshot")
	a.updateLastActive(serial)
	return set, nil
}

// KillAll force-stops every app of the allow-list
func (a *App) KillAll(ctx context.Context, serial string) (int, error) {
	serial, gw, err := a.connect(ctx, serial)
	if err != nil {
		return 0, err
	}
	dc := a.Config().DriverConfig(types.ModeLaunch)
	drv, err := driver.New(dc, driver.Options{Gateway: gw, Logger: Logger.With().Str("deviceId", serial).Logger()})
	if err != nil {
		return 0, err
	}
	drv.KillAll(ctx)
	a.updateLastActive(serial)
	return len(dc.KillSet), nil
}

// ListRuns returns the newest stored runs
func (a *App) ListRuns(limit int) ([]types.RunSummary, error) {
	return a.store.ListRuns(limit)
}

// GetReport loads the report of a stored run. "last" resolves to the newest run.
func (a *App) GetReport(runID string) (types.Report, error) {
	if runID == "last" || runID == "" {
		runs, err := a.store.ListRuns(1)
		if err != nil {
			return types.Report{}, err
		}
		if len(runs) == 0 {
			return types.Report{}, fmt.Errorf("no runs stored: %w", ErrRunNotFound)
		}
		runID = runs[0].ID
	}
	return a.store.LoadReport(runID)
}

// DeleteRun removes a stored run
func (a *App) DeleteRun(runID string) error {
	return a.store.DeleteRun(runID)
}

// knownApp reports whether pkg is a configured app
func (a *App) knownApp(pkg string) bool {
	return slices.ContainsFunc(a.Config().Apps, func(c config.AppConfig) bool { return c.Package == pkg })
}
