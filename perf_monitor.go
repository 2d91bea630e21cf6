package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"Fleetbench/pkg/driver"
	"Fleetbench/pkg/parser"
	"Fleetbench/pkg/types"
)

// ========================================
// Frame Profiler - gfxinfo 帧耗时采集
// ========================================

// FrameProfileOptions configures one profiling session
type FrameProfileOptions struct {
	Serial   string
	Package  string
	Interval time.Duration // poll period, defaults to frames.interval
	Limit    int           // stop after this many frames, 0 = until cancelled
}

// FrameProfileResult summarizes a profiling session
type FrameProfileResult struct {
	RunID  string `json:"runId"`
	Frames int    `json:"frames"`
	Janky  int    `json:"janky"`  // sum of the per-poll "Janky frames" counters
	Polls  int    `json:"polls"`
}

// ProfileFrames polls `dumpsys gfxinfo <pkg> reset` and prints one line per
// rendered frame. Every poll resets the counters, so each frame is seen once.
// Cancelling ctx ends the session normally.
func (a *App) ProfileFrames(ctx context.Context, opts FrameProfileOptions) (FrameProfileResult, error) {
	var res FrameProfileResult
	if opts.Package == "" {
		return res, errors.New("package is required")
	}
	if !a.knownApp(opts.Package) {
		LogWarn("frames").Str("package", opts.Package).Msg("Package is not in the configured app list")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = a.Config().Frames.Interval.Std()
	}

	serial, gw, err := a.connect(ctx, opts.Serial)
	if err != nil {
		return res, err
	}

	dc := driver.Config{Mode: types.ModeFrames, Apps: []driver.App{{Package: opts.Package}}}
	runID, err := a.store.CreateRun(types.ModeFrames, serial, dc, time.Now())
	if err != nil {
		return res, err
	}
	res.RunID = runID

	timer := StartOperation("frames", "profile_frames").
		AddDetail("deviceId", serial).
		AddDetail("package", opts.Package).
		AddDetail("run", runID)

	runErr := a.pollFrames(ctx, gw, runID, opts.Package, interval, opts.Limit, &res)

	status := RunStatusCompleted
	if runErr != nil {
		status = RunStatusFailed
	}
	if err := a.store.FinishRun(runID, status, time.Now()); err != nil {
		LogError("frames").Err(err).Str("run", runID).Msg("Failed to finish run")
	}
	a.updateLastActive(serial)

	timer.AddDetail("frames", res.Frames).AddDetail("janky", res.Janky)
	if runErr != nil {
		timer.EndWithError(runErr)
	} else {
		timer.End()
	}
	return res, runErr
}

func (a *App) pollFrames(ctx context.Context, gw deviceGateway, runID, pkg string, interval time.Duration, limit int, res *FrameProfileResult) error {
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			// 用户中断或超时都是正常结束
			return nil
		}

		out := gw.GfxInfo(ctx, pkg, true)
		if ctx.Err() != nil {
			return nil
		}
		res.Polls++
		_, janky := parseGfxInfoFrameCounts(out)
		res.Janky += janky

		var batch []types.FrameSample
		for f := range parser.Frames(out) {
			res.Frames++
			batch = append(batch, f)
			fmt.Fprintf(a.out, "idx= %d total= %.2f draw= %.2f prepare= %.2f execute= %.2f\n",
				res.Frames, f.Total(), f.DrawMs, f.PrepareMs, f.ExecuteMs)
			if limit > 0 && res.Frames >= limit {
				break
			}
		}
		if err := a.store.RecordFrames(runID, pkg, batch, time.Now()); err != nil {
			return fmt.Errorf("failed to store frames: %w", err)
		}
		if limit > 0 && res.Frames >= limit {
			return nil
		}
	}
}

// parseGfxInfoFrameCounts 从 gfxinfo 输出解析总帧数和卡顿帧数
//
//	Total frames rendered: 12345
//	Janky frames: 678 (5.49%)
func parseGfxInfoFrameCounts(output string) (int, int) {
	var totalFrames, jankyFrames int
	lines := strings.Split(output, "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Total frames rendered:") {
			fmt.Sscanf(line, "Total frames rendered: %d", &totalFrames)
		} else if strings.HasPrefix(line, "Janky frames:") {
			fmt.Sscanf(line, "Janky frames: %d", &jankyFrames)
		}
	}
	return totalFrames, jankyFrames
}
