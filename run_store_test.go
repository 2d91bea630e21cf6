package main

import (
	"errors"
	"os"
	"reflect"
	"testing"
	"time"

	"Fleetbench/pkg/driver"
	"Fleetbench/pkg/types"
)

// setupTestStore creates a temporary RunStore for testing
func setupTestStore(t *testing.T) (*RunStore, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "run_store_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := NewRunStore(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create RunStore: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return store, cleanup
}

func testRunConfig() driver.Config {
	return driver.Config{
		Mode:   types.ModeLaunch,
		Repeat: 3,
		Apps: []driver.App{
			{Package: "com.twitter.android"},
			{Package: "com.google.android.youtube"},
			{Package: "org.telegram.messenger"},
		},
	}
}

func launchSample(pkg string, iter int, state types.LaunchState, wait int, at time.Time) driver.LaunchSample {
	return driver.LaunchSample{
		Package:   pkg,
		Iteration: iter,
		Result:    types.LaunchResult{Status: types.StatusOK, LaunchState: state, WaitTimeMs: wait, TotalTimeMs: wait - 3},
		At:        at,
	}
}

func TestRunStoreCreation(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if store.db == nil {
		t.Fatal("Database connection should not be nil")
	}
	if _, err := os.Stat(store.DBPath()); os.IsNotExist(err) {
		t.Fatalf("Database file should exist at %s", store.DBPath())
	}
}

func TestRunStoreReportRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	start := time.UnixMilli(1700000000000)
	id, err := store.CreateRun(types.ModeLaunch, "0A211FDD4000GQ", testRunConfig(), start)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	rec := store.Recorder(id)
	// all samples share one timestamp; seq alone decides the order
	samples := []driver.LaunchSample{
		launchSample("com.twitter.android", 1, types.LaunchStateHot, 57, start),
		launchSample("org.telegram.messenger", 1, types.LaunchStateCold, 980, start),
		launchSample("com.twitter.android", 2, types.LaunchStateCold, 1320, start),
		launchSample("com.twitter.android", 3, types.LaunchStateHot, 41, start),
		launchSample("org.telegram.messenger", 2, types.LaunchStateWarm, 310, start),
	}
	for _, s := range samples {
		if err := rec.RecordLaunch(s); err != nil {
			t.Fatalf("RecordLaunch: %v", err)
		}
	}
	for _, n := range []int{14, 12, 9} {
		snap := driver.CacheSnapshot{Package: "com.twitter.android", Cached: types.NewCachedAppSet(), At: start}
		for i := 0; i < n; i++ {
			snap.Cached.Add(string(rune('a' + i)))
		}
		if err := rec.RecordCacheSnapshot(snap); err != nil {
			t.Fatalf("RecordCacheSnapshot: %v", err)
		}
	}
	if err := store.FinishRun(id, RunStatusCompleted, start.Add(time.Minute)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	rep, err := store.LoadReport(id)
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	if rep.RunID != id || rep.Mode != types.ModeLaunch || rep.DeviceSerial != "0A211FDD4000GQ" {
		t.Errorf("unexpected header: %+v", rep)
	}
	if !rep.StartedAt.Equal(start) || !rep.FinishedAt.Equal(start.Add(time.Minute)) {
		t.Errorf("times = %v .. %v", rep.StartedAt, rep.FinishedAt)
	}

	want := []types.AppReport{
		{Package: "com.twitter.android", Hot: []int{57, 41}, Cold: []int{1320}, Other: []int{}},
		{Package: "com.google.android.youtube", Hot: []int{}, Cold: []int{}, Other: []int{}},
		{Package: "org.telegram.messenger", Hot: []int{}, Cold: []int{980}, Other: []int{310}},
	}
	if !reflect.DeepEqual(rep.Apps, want) {
		t.Errorf("Apps = %+v\nwant %+v", rep.Apps, want)
	}
	if !reflect.DeepEqual(rep.CachedCounts, []int{14, 12, 9}) {
		t.Errorf("CachedCounts = %v", rep.CachedCounts)
	}
}

func TestRunStoreListRuns(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	base := time.UnixMilli(1700000000000)
	var ids []string
	for i, mode := range []string{types.ModeLaunch, types.ModeCycle, types.ModeWorkingSet} {
		id, err := store.CreateRun(mode, "emulator-5554", testRunConfig(), base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if err := store.RecordLaunch(ids[0], launchSample("com.twitter.android", 1, types.LaunchStateHot, 60, base)); err != nil {
		t.Fatal(err)
	}
	if err := store.FinishRun(ids[0], RunStatusCompleted, base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d", len(runs))
	}
	// newest first
	if runs[0].ID != ids[2] || runs[2].ID != ids[0] {
		t.Errorf("order = %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}
	if runs[2].Launches != 1 || runs[2].Status != RunStatusCompleted || runs[2].FinishedAt.IsZero() {
		t.Errorf("first run summary = %+v", runs[2])
	}
	if runs[0].Status != RunStatusRunning || !runs[0].FinishedAt.IsZero() {
		t.Errorf("unfinished run summary = %+v", runs[0])
	}

	limited, err := store.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("ListRuns(2) returned %d runs", len(limited))
	}
}

func TestRunStoreFrames(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	id, err := store.CreateRun(types.ModeFrames, "", driver.Config{Mode: types.ModeFrames}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	batch1 := []types.FrameSample{{DrawMs: 1.5, PrepareMs: 0.2, ProcessMs: 3.1, ExecuteMs: 0.9}}
	batch2 := []types.FrameSample{
		{DrawMs: 2.0, PrepareMs: 0.1, ProcessMs: 4.0, ExecuteMs: 1.0},
		{DrawMs: 0.5, PrepareMs: 0.3, ProcessMs: 2.2, ExecuteMs: 0.7},
	}
	now := time.Now()
	if err := store.RecordFrames(id, "com.twitter.android", batch1, now); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordFrames(id, "com.twitter.android", nil, now); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordFrames(id, "com.twitter.android", batch2, now); err != nil {
		t.Fatal(err)
	}

	frames, err := store.LoadFrames(id)
	if err != nil {
		t.Fatal(err)
	}
	want := append(batch1, batch2...)
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("frames = %+v\nwant %+v", frames, want)
	}
}

func TestRunStoreDeleteCascades(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	id, err := store.CreateRun(types.ModeLaunch, "", testRunConfig(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RecordLaunch(id, launchSample("com.twitter.android", 1, types.LaunchStateHot, 60, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteRun(id); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}

	var n int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM launch_samples WHERE run_id = ?`, id).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d launch samples survived the delete", n)
	}
	if _, err := store.LoadReport(id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LoadReport after delete: %v", err)
	}
	if err := store.DeleteRun(id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("second DeleteRun: %v", err)
	}
	if err := store.FinishRun("missing", RunStatusFailed, time.Now()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun(missing): %v", err)
	}
}
