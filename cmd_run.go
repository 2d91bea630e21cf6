package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"Fleetbench/pkg/types"
)

// experimentFlags are shared by run, working-set and cycle
type experimentFlags struct {
	repeat      int
	apps        []string
	useDuration time.Duration
	skipWarmup  bool
	sampleCache bool
	format      string
	query       string
}

func (f *experimentFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.repeat, "repeat", "n", 0, "iterations (default from config)")
	cmd.Flags().StringSliceVar(&f.apps, "apps", nil, "subset of configured packages, in launch order")
	cmd.Flags().DurationVar(&f.useDuration, "use-duration", 0, "time spent using each app after launch")
	cmd.Flags().BoolVar(&f.skipWarmup, "skip-warmup", true, "do not record the first iteration")
	cmd.Flags().BoolVar(&f.sampleCache, "sample-cache", false, "record cached app counts after each launch")
	cmd.Flags().StringVarP(&f.format, "format", "f", FormatText, "report format: text or json")
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "print only this gjson path of the JSON report")
}

// options turns the flags into overrides; flags left at their default keep
// the configured value
func (f *experimentFlags) options(cmd *cobra.Command) RunOptions {
	opts := RunOptions{
		Serial:      serialFlag,
		Apps:        f.apps,
		Repeat:      f.repeat,
		UseDuration: f.useDuration,
	}
	if cmd.Flags().Changed("skip-warmup") {
		v := f.skipWarmup
		opts.SkipWarmup = &v
	}
	if cmd.Flags().Changed("sample-cache") {
		v := f.sampleCache
		opts.SampleCache = &v
	}
	return opts
}

func newRunCmd() *cobra.Command {
	var flags experimentFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Repeat launch cycles over the configured apps",
		Long: `Run the launch experiment: every iteration launches each app (or each
configured group) in turn and buckets its wait time by launch state.

Examples:
  fleetbench run --repeat 10
  fleetbench run --apps com.twitter.android,org.telegram.messenger --sample-cache
  fleetbench run -q 'apps.#(package=="com.twitter.android").cold'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd, types.ModeLaunch, flags.options(cmd), flags.format, flags.query)
		},
	}
	flags.register(cmd)
	return cmd
}

func newWorkingSetCmd() *cobra.Command {
	var flags experimentFlags
	var app string
	cmd := &cobra.Command{
		Use:   "working-set",
		Short: "Measure one app's launches while the other apps cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.options(cmd)
			opts.WorkingSetApp = app
			if app == "" && cfg.WorkingSet.App == "" {
				return errors.New("no working-set app: pass --app or set working_set.app")
			}
			return runExperiment(cmd, types.ModeWorkingSet, opts, flags.format, flags.query)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&app, "app", "", "measured package (default working_set.app)")
	return cmd
}

func newCycleCmd() *cobra.Command {
	var flags experimentFlags
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Launch all apps round-robin and sample the cached set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd, types.ModeCycle, flags.options(cmd), flags.format, flags.query)
		},
	}
	flags.register(cmd)
	return cmd
}

// runExperiment runs one mode and prints its report. A cancelled run still
// prints what it collected.
func runExperiment(cmd *cobra.Command, mode string, opts RunOptions, format, query string) error {
	app, closeApp, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	rep, runErr := app.RunExperiment(cmd.Context(), mode, opts)
	if rep.RunID == "" {
		return runErr
	}
	if err := printReport(cmd.OutOrStdout(), rep, format, query); err != nil {
		return err
	}
	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintf(cmd.ErrOrStderr(), "run %s cancelled, partial report stored\n", rep.RunID)
	}
	return runErr
}

func printReport(w io.Writer, rep types.Report, format, query string) error {
	if query == "" {
		return RenderReport(w, rep, format)
	}
	v, err := QueryReport(rep, query)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, v)
	return nil
}

func newFramesCmd() *cobra.Command {
	var (
		interval time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "frames <package>",
		Short: "Print per-frame render times of a running app",
		Long: `Poll 'dumpsys gfxinfo <package> reset' and print one line per rendered frame
until --limit frames were seen or the command is interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			res, err := app.ProfileFrames(cmd.Context(), FrameProfileOptions{
				Serial:   serialFlag,
				Package:  args[0],
				Interval: interval,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			frames, err := app.store.LoadFrames(res.RunID)
			if err != nil {
				return err
			}
			RenderFrameSummary(cmd.OutOrStdout(), res.RunID, frames)
			fmt.Fprintf(cmd.OutOrStdout(), "janky_frames= %d polls= %d\n", res.Janky, res.Polls)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll period (default frames.interval)")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many frames (0 = until interrupted)")
	return cmd
}

func newCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache",
		Short: "Show which tracked apps are cached right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			set, err := app.CachedAppsSnapshot(cmd.Context(), serialFlag)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cached_app_count= %d\n", set.Len())
			for _, pkg := range set.Sorted() {
				fmt.Fprintln(out, pkg)
			}
			return nil
		},
	}
}

func newKillAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill-all",
		Short: "Force-stop every tracked app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closeApp, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			n, err := app.KillAll(cmd.Context(), serialFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d apps\n", n)
			return nil
		},
	}
}
