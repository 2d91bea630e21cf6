// Package driver runs the launch / use / background loops of an experiment
// and buckets the measured launch times.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"Fleetbench/pkg/parser"
	"Fleetbench/pkg/types"
)

// Options wires a Driver to its collaborators
type Options struct {
	Gateway     Gateway
	Clock       Clock                   // defaults to SystemClock
	Recorder    Recorder                // optional
	CacheParser *parser.CachedAppParser // required when SampleCache is set
	Logger      zerolog.Logger
}

// Driver executes one experiment configuration. A Driver may be Run more than
// once; every run starts from a fresh Accumulator.
type Driver struct {
	cfg   Config
	gw    Gateway
	clock Clock
	rec   Recorder
	cache *parser.CachedAppParser
	log   zerolog.Logger

	acc *Accumulator
}

// New validates cfg and builds a Driver
func New(cfg Config, opts Options) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Gateway == nil {
		return nil, errors.New("driver: nil gateway")
	}
	if cfg.SampleCache && opts.CacheParser == nil {
		return nil, errors.New("driver: cache sampling needs a cached-app parser")
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &Driver{
		cfg:   cfg,
		gw:    opts.Gateway,
		clock: clock,
		rec:   opts.Recorder,
		cache: opts.CacheParser,
		log:   opts.Logger.With().Str("module", "driver").Logger(),
	}, nil
}

// Config returns the validated configuration
func (d *Driver) Config() Config {
	return d.cfg
}

// Run executes the configured mode and returns the final report. On
// cancellation the report holds every sample taken so far together with the
// context error.
func (d *Driver) Run(ctx context.Context) (types.Report, error) {
	mode := d.cfg.mode()
	d.acc = NewAccumulator(d.cfg.Packages())
	started := d.clock.Now()

	d.log.Info().Str("mode", mode).Int("apps", len(d.cfg.Apps)).Int("repeat", d.cfg.Repeat).Msg("Experiment started")

	var err error
	switch mode {
	case types.ModeWorkingSet:
		err = d.runWorkingSet(ctx)
	case types.ModeCycle:
		err = d.runCycle(ctx)
	default:
		err = d.runLaunch(ctx)
	}

	rep := d.acc.Report(mode)
	rep.StartedAt = started
	rep.FinishedAt = d.clock.Now()

	ev := d.log.Info()
	if err != nil {
		ev = d.log.Warn().Err(err)
	}
	ev.Dur("elapsed", rep.FinishedAt.Sub(started)).Msg("Experiment finished")
	return rep, err
}

// ========================================
// Launch experiment
// ========================================

func (d *Driver) runLaunch(ctx context.Context) error {
	if err := d.preamble(ctx); err != nil {
		return err
	}

	if d.cfg.LaunchAllFirst {
		d.log.Info().Msg("Launching every app once before measuring")
		for _, app := range d.cfg.Apps {
			if err := ctx.Err(); err != nil {
				return err
			}
			d.gw.Launch(ctx, app)
			if err := d.UsePhase(ctx, app.UseDuration); err != nil {
				return err
			}
		}
	}

	for gi, group := range d.cfg.groups() {
		for i := 0; i < d.cfg.Repeat; i++ {
			d.log.Debug().Int("group", gi).Int("iteration", i).Msg("Iteration started")
			for _, app := range group {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := d.measure(ctx, app, i); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// preamble is the optional kill-all / home / kill-all sequence
func (d *Driver) preamble(ctx context.Context) error {
	if d.cfg.KillAllFirst {
		d.KillAll(ctx)
	}
	if d.cfg.HomeFirst {
		d.gw.Home(ctx)
		if d.cfg.KillAllFirst {
			d.KillAll(ctx)
		}
	}
	return ctx.Err()
}

// measure launches app once and, depending on the outcome, records the sample
// and plays the use phase
func (d *Driver) measure(ctx context.Context, app App, iteration int) error {
	out := d.gw.Launch(ctx, app)
	res, perr := parser.ParseLaunchResult(out)

	if d.cfg.SampleCache {
		d.sampleCache(ctx, app.Package)
	}

	if iteration == 0 && d.cfg.SkipWarmup {
		d.log.Debug().Str("package", app.Package).Msg("Warm-up launch, not recorded")
		return nil
	}

	d.accept(app, iteration, res, perr)

	// cache-pressure runs only use an app that actually came up
	if d.cfg.SampleCache && !res.OK() {
		return nil
	}
	return d.UsePhase(ctx, app.UseDuration)
}

// accept buckets an ok launch and hands it to the recorder
func (d *Driver) accept(app App, iteration int, res types.LaunchResult, perr error) {
	switch {
	case perr != nil:
		d.log.Warn().Err(perr).Str("package", app.Package).Int("iteration", iteration).Msg("Dropped launch sample")
		return
	case !res.OK():
		d.log.Warn().Str("package", app.Package).Str("status", res.Status).Msg("Launch not ok, sample skipped")
		return
	}

	d.acc.Add(app.Package, res.LaunchState, res.WaitTimeMs)
	d.log.Info().
		Str("package", app.Package).
		Int("iteration", iteration).
		Str("state", string(res.LaunchState)).
		Int("wait_ms", res.WaitTimeMs).
		Msg("Launch recorded")

	if d.rec == nil {
		return
	}
	sample := LaunchSample{Package: app.Package, Iteration: iteration, Result: res, At: d.clock.Now()}
	if err := d.rec.RecordLaunch(sample); err != nil {
		d.log.Error().Err(err).Str("package", app.Package).Msg("Failed to persist launch sample")
	}
}

func (d *Driver) sampleCache(ctx context.Context, pkg string) {
	set := d.cache.Parse(d.gw.Meminfo(ctx))
	d.acc.AddCachedCount(set.Len())
	d.log.Info().Str("package", pkg).Int("cached", set.Len()).Strs("apps", set.Sorted()).Msg("Cached apps")
	if d.rec != nil {
		if err := d.rec.RecordCacheSnapshot(CacheSnapshot{Package: pkg, Cached: set, At: d.clock.Now()}); err != nil {
			d.log.Error().Err(err).Msg("Failed to persist cache snapshot")
		}
	}
}

// KillAll force-stops every package of the kill set
func (d *Driver) KillAll(ctx context.Context) {
	for _, pkg := range d.cfg.killSet() {
		d.gw.ForceStop(ctx, pkg)
	}
	d.log.Info().Int("count", len(d.cfg.killSet())).Msg("Killed all apps")
}

// ========================================
// Working-set experiment
// ========================================

// runWorkingSet keeps one app in the foreground, sends it to the background
// and brings it back. Every phase ends at an absolute offset from the first
// launch so slow gestures do not stretch the experiment.
func (d *Driver) runWorkingSet(ctx context.Context) error {
	app, _ := d.cfg.App(d.cfg.WorkingSetApp)
	p := d.cfg.Phases

	if err := d.preamble(ctx); err != nil {
		return err
	}

	d.record(ctx, app, 0)
	start := d.clock.Now()
	log := d.log.With().Str("package", app.Package).Logger()

	log.Info().Dur("until", p.Foreground1).Msg("Foreground phase 1")
	if err := d.useUntil(ctx, start.Add(p.Foreground1)); err != nil {
		return err
	}

	d.gw.Home(ctx)
	log.Info().Dur("until", p.Foreground1+p.Background).Msg("Background phase")
	if err := d.idleUntil(ctx, start.Add(p.Foreground1+p.Background)); err != nil {
		return err
	}

	d.record(ctx, app, 1)
	log.Info().Dur("until", p.Foreground1+p.Background+p.Foreground2).Msg("Foreground phase 2")
	if err := d.useUntil(ctx, start.Add(p.Foreground1+p.Background+p.Foreground2)); err != nil {
		return err
	}

	d.KillAll(ctx)
	return ctx.Err()
}

// record launches app and buckets the result without a use phase
func (d *Driver) record(ctx context.Context, app App, iteration int) {
	res, err := parser.ParseLaunchResult(d.gw.Launch(ctx, app))
	if d.cfg.SampleCache {
		d.sampleCache(ctx, app.Package)
	}
	d.accept(app, iteration, res, err)
}

func (d *Driver) useUntil(ctx context.Context, deadline time.Time) error {
	for d.clock.Now().Before(deadline) {
		if err := d.UsePhase(ctx, d.cfg.Phases.SleepUnit); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) idleUntil(ctx context.Context, deadline time.Time) error {
	for d.clock.Now().Before(deadline) {
		if err := d.clock.Sleep(ctx, d.cfg.Phases.SleepUnit); err != nil {
			return err
		}
	}
	return nil
}

// ========================================
// Cycle experiment
// ========================================

// runCycle repeatedly brings each app to the foreground, scrolls, and parks
// it in the background
func (d *Driver) runCycle(ctx context.Context) error {
	if d.cfg.HomeFirst {
		d.gw.Home(ctx)
	}
	c := d.cfg.Cycle
	for _, app := range d.cfg.Apps {
		if c.KillBetweenApps {
			d.KillAll(ctx)
		}
		for i := 0; i < d.cfg.Repeat; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			d.record(ctx, app, i)
			if err := d.swipeFor(ctx, c.Foreground); err != nil {
				return err
			}
			d.gw.Home(ctx)
			if err := d.clock.Sleep(ctx, c.Background); err != nil {
				return err
			}
		}
	}
	return nil
}
