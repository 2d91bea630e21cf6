package driver

import (
	"context"
	"time"
)

// useStyles are played in order, each for a third of the use duration
var useStyles = [][]Gesture{
	{GestureSwipeUpFast},
	{GestureSwipeUpFast, GestureSwipeDownFast},
	{GestureSwipeUp},
}

// UsePhase simulates a user scrolling through the foreground app for d.
// With ManualInteraction it just waits, leaving input to the operator.
func (d *Driver) UsePhase(ctx context.Context, dur time.Duration) error {
	if d.cfg.ManualInteraction {
		return d.clock.Sleep(ctx, dur)
	}
	third := dur / 3
	for _, style := range useStyles {
		if err := d.gestureLoop(ctx, style, third); err != nil {
			return err
		}
	}
	return nil
}

// gestureLoop cycles through gestures until dur has elapsed since the loop
// started. At least one gesture is always issued.
func (d *Driver) gestureLoop(ctx context.Context, gestures []Gesture, dur time.Duration) error {
	deadline := d.clock.Now().Add(dur)
	for i := 0; ; i++ {
		if d.cfg.InputPeriod > 0 {
			if err := d.clock.Sleep(ctx, d.cfg.InputPeriod); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		d.gw.Gesture(ctx, gestures[i%len(gestures)])
		if d.clock.Now().After(deadline) {
			return nil
		}
	}
}

// swipeFor plays slow upward swipes only, as the cycle experiment does
func (d *Driver) swipeFor(ctx context.Context, dur time.Duration) error {
	if d.cfg.ManualInteraction {
		return d.clock.Sleep(ctx, dur)
	}
	return d.gestureLoop(ctx, []Gesture{GestureSwipeUp}, dur)
}
