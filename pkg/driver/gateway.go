package driver

import (
	"context"
	"time"

	"Fleetbench/pkg/types"
)

// Gesture names one synthetic input action
type Gesture string

const (
	GestureSwipeUpFast   Gesture = "swipe-up-fast"
	GestureSwipeDownFast Gesture = "swipe-down-fast"
	GestureSwipeUp       Gesture = "swipe-up"
)

// Gateway runs device commands and hands back their stdout untouched.
// Failures are never returned: an empty or partial text is the only signal.
type Gateway interface {
	Launch(ctx context.Context, app App) string
	ForceStop(ctx context.Context, pkg string) string
	Home(ctx context.Context) string
	Gesture(ctx context.Context, g Gesture) string
	Meminfo(ctx context.Context) string
}

// Clock abstracts wall time so runs can be replayed in tests
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// LaunchSample is a launch that made it into the accumulator
type LaunchSample struct {
	Package   string
	Iteration int
	Result    types.LaunchResult
	At        time.Time
}

// CacheSnapshot is one cached-app set taken right after a launch
type CacheSnapshot struct {
	Package string
	Cached  types.CachedAppSet
	At      time.Time
}

// Recorder persists samples as they are taken
type Recorder interface {
	RecordLaunch(s LaunchSample) error
	RecordCacheSnapshot(s CacheSnapshot) error
}

// SystemClock is the real clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
