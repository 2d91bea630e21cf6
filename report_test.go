package main

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"Fleetbench/pkg/types"
)

func sampleReport() types.Report {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return types.Report{
		RunID:        "5f0c6a4e-2d3b-4c1e-9a8f-0b1c2d3e4f50",
		Mode:         types.ModeLaunch,
		DeviceSerial: "0A211FDD4000GQ",
		StartedAt:    start,
		FinishedAt:   start.Add(95 * time.Second),
		Apps: []types.AppReport{
			{Package: "com.twitter.android", Hot: []int{57, 41, 63}, Cold: []int{1320}, Other: []int{}},
			{Package: "org.telegram.messenger", Hot: []int{}, Cold: []int{980, 1010}, Other: []int{310}},
		},
		CachedCounts: []int{14, 12, 9},
	}
}

func TestBucketStats(t *testing.T) {
	tests := []struct {
		in   []int
		want BucketStats
	}{
		{nil, BucketStats{}},
		{[]int{57, 41, 63}, BucketStats{Count: 3, Mean: 161.0 / 3, Median: 57}},
		{[]int{980, 1010}, BucketStats{Count: 2, Mean: 995, Median: 995}},
		{[]int{4, 1, 3, 2}, BucketStats{Count: 4, Mean: 2.5, Median: 2.5}},
	}
	for _, tt := range tests {
		got := bucketStats(tt.in)
		if got.Count != tt.want.Count || math.Abs(got.Mean-tt.want.Mean) > 1e-9 || got.Median != tt.want.Median {
			t.Errorf("bucketStats(%v) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestBucketStatsDoesNotReorderInput(t *testing.T) {
	in := []int{57, 41, 63}
	bucketStats(in)
	if in[0] != 57 || in[1] != 41 {
		t.Errorf("input was sorted in place: %v", in)
	}
}

func TestRenderReportText(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderReport(&buf, sampleReport(), FormatText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"hot_launch_time_com.twitter.android= [57, 41, 63]\n",
		"cold_launch_time_com.twitter.android= [1320]\n",
		"other_launch_time_com.twitter.android= []\n",
		"cold_launch_time_org.telegram.messenger= [980, 1010]\n",
		"other_launch_time_org.telegram.messenger= [310]\n",
		"cached_app_counts= [14, 12, 9]\n",
		"5f0c6a4e-2d3b-4c1e-9a8f-0b1c2d3e4f50",
		"1m35s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// every hot line comes before the first cold line
	if strings.Index(out, "hot_launch_time_org.telegram.messenger") > strings.Index(out, "cold_launch_time_com.twitter.android") {
		t.Error("lines are not grouped by bucket")
	}
}

func TestRenderReportJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderReport(&buf, sampleReport(), FormatJSON); err != nil {
		t.Fatal(err)
	}
	var back types.Report
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if back.Apps[0].Hot[1] != 41 || back.CachedCounts[2] != 9 {
		t.Errorf("decoded = %+v", back)
	}
}

func TestRenderReportUnknownFormat(t *testing.T) {
	if err := RenderReport(&bytes.Buffer{}, sampleReport(), "csv"); err == nil {
		t.Error("expected an error for csv")
	}
}

func TestQueryReport(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{`apps.#(package=="com.twitter.android").hot`, "[57,41,63]", false},
		{`apps.1.cold.0`, "980", false},
		{`cachedCounts.#`, "3", false},
		{`mode`, "launch", false},
		{`apps.#(package=="com.spotify.music").hot`, "", true},
	}
	for _, tt := range tests {
		got, err := QueryReport(sampleReport(), tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("QueryReport(%q) = %q, %v", tt.path, got, err)
		}
	}
}

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	RenderRuns(&buf, nil)
	if !strings.Contains(buf.String(), "No runs stored") {
		t.Errorf("empty listing = %q", buf.String())
	}

	buf.Reset()
	RenderRuns(&buf, []types.RunSummary{{
		ID: "run-1", Mode: types.ModeCycle, DeviceSerial: "emulator-5554", Status: RunStatusCompleted,
		StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), Launches: 36,
	}})
	out := buf.String()
	for _, want := range []string{"run-1", "cycle", "emulator-5554", "completed", "2024-03-01 10:00:00", "36"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q: %s", want, out)
		}
	}
}

func TestFrameStats(t *testing.T) {
	frames := []types.FrameSample{
		{DrawMs: 0.41, PrepareMs: 0.12, ProcessMs: 2.93, ExecuteMs: 1.05}, // 4.51
		{DrawMs: 5, PrepareMs: 1, ProcessMs: 12, ExecuteMs: 2},            // 20
		{DrawMs: 1, PrepareMs: 1, ProcessMs: 1, ExecuteMs: 1},             // 4
	}
	st := frameStats(frames)
	if st.Count != 3 || st.Slow != 1 {
		t.Errorf("stats = %+v", st)
	}
	if math.Abs(st.MedianTotal-4.51) > 1e-9 || st.MaxTotal != 20 {
		t.Errorf("median/max = %v/%v", st.MedianTotal, st.MaxTotal)
	}
	if empty := frameStats(nil); empty.Count != 0 || empty.MeanTotal != 0 {
		t.Errorf("empty stats = %+v", empty)
	}

	var buf bytes.Buffer
	RenderFrameSummary(&buf, "run-2", frames)
	if !strings.Contains(buf.String(), "run-2") || !strings.Contains(buf.String(), "20.00 ms") {
		t.Errorf("summary = %s", buf.String())
	}
}
