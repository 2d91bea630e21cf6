package parser

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"Fleetbench/pkg/types"
)

// ========================================
// Output captured from a Pixel 5 (Android 12)
// ========================================

const realAmStartCold = `Starting: Intent { act=android.intent.action.MAIN cat=[android.intent.category.LAUNCHER] cmp=com.twitter.android/.StartActivity }
Status: ok
LaunchState: COLD
Activity: com.twitter.android/com.twitter.app.main.MainActivity
TotalTime: 1432
WaitTime: 1440
Complete
`

const realAmStartHot = "Starting: Intent { act=android.intent.action.MAIN cmp=org.telegram.messenger/.DefaultIcon }\r\n" +
	"Warning: Activity not started, its current task has been brought to the front\r\n" +
	"Status: ok\r\n" +
	"LaunchState: HOT\r\n" +
	"Activity: org.telegram.messenger/.LaunchActivity\r\n" +
	"TotalTime: 87\r\n" +
	"WaitTime: 92\r\n" +
	"Complete\r\n"

const realAmStartTimeout = `Starting: Intent { act=android.intent.action.MAIN cmp=com.king.candycrushsaga/.CandyCrushSagaActivity }
Status: timeout
LaunchState: UNKNOWN (0)
Activity: com.king.candycrushsaga/.CandyCrushSagaActivity
WaitTime: 10012
Complete
`

func TestParseLaunchResult(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.LaunchResult
		wantErr bool
	}{
		{
			name:  "minimal hot launch",
			input: "Status: ok\nLaunchState: HOT\nWaitTime: 123\n",
			want:  types.LaunchResult{Status: "ok", LaunchState: types.LaunchStateHot, WaitTimeMs: 123},
		},
		{
			name:  "real cold launch",
			input: realAmStartCold,
			want: types.LaunchResult{
				Status:      "ok",
				LaunchState: types.LaunchStateCold,
				WaitTimeMs:  1440,
				TotalTimeMs: 1432,
				Activity:    "com.twitter.android/com.twitter.app.main.MainActivity",
			},
		},
		{
			name:  "crlf hot launch",
			input: realAmStartHot,
			want: types.LaunchResult{
				Status:      "ok",
				LaunchState: types.LaunchStateHot,
				WaitTimeMs:  92,
				TotalTimeMs: 87,
				Activity:    "org.telegram.messenger/.LaunchActivity",
			},
		},
		{
			name:  "timeout keeps raw launch state",
			input: realAmStartTimeout,
			want: types.LaunchResult{
				Status:      "timeout",
				LaunchState: "UNKNOWN (0)",
				WaitTimeMs:  10012,
				Activity:    "com.king.candycrushsaga/.CandyCrushSagaActivity",
			},
		},
		{
			name:  "missing wait time",
			input: "Status: ok\nLaunchState: WARM\n",
			want:  types.LaunchResult{Status: "ok", LaunchState: types.LaunchStateWarm},
		},
		{
			name:  "empty output",
			input: "",
			want:  types.LaunchResult{},
		},
		{
			name:  "indented lines are not fields",
			input: "  Status: ok\n  WaitTime: 5\n",
			want:  types.LaunchResult{},
		},
		{
			name:    "non numeric wait time",
			input:   "Status: ok\nLaunchState: HOT\nWaitTime: abc\n",
			want:    types.LaunchResult{Status: "ok", LaunchState: types.LaunchStateHot},
			wantErr: true,
		},
		{
			name:    "negative wait time",
			input:   "Status: ok\nWaitTime: -3\n",
			want:    types.LaunchResult{Status: "ok"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLaunchResult(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseLaunchResultErrorClass(t *testing.T) {
	_, err := ParseLaunchResult("WaitTime: 12ms\n")
	if !errors.Is(err, ErrMalformedNumeric) {
		t.Fatalf("expected ErrMalformedNumeric, got %v", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Field != "WaitTime" || pe.Value != "12ms" {
		t.Errorf("ParseError = %+v", pe)
	}
}

func TestParseLaunchResultIdempotent(t *testing.T) {
	a, _ := ParseLaunchResult(realAmStartCold)
	b, _ := ParseLaunchResult(realAmStartCold)
	if a != b {
		t.Errorf("parsing twice differs: %+v vs %+v", a, b)
	}
}

// ========================================
// Test: CachedAppParser
// ========================================

const realDumpsysMeminfoSummary = `Applications Memory Usage (in Kilobytes):
Uptime: 1039440 Realtime: 1039440

Total PSS by process:
    312,440K: com.google.android.apps.nexuslauncher (pid 2114 / activities)
    198,210K: system (pid 1433)
    160,034K: com.twitter.android (pid 8812 / activities)
    
Total PSS by OOM adjustment:
    198,210K: System
    312,440K: Foreground
        312,440K: com.google.android.apps.nexuslauncher (pid 2114 / activities)
    254,918K: Cached
        160,034K: com.twitter.android (pid 8812 / activities)
         94,884K: com.spotify.music (pid 9021)
         61,002K: org.telegram.messenger	
     12345 67890 com.android.chrome  1234K
`

var trackedApps = []string{
	"com.twitter.android",
	"com.spotify.music",
	"org.telegram.messenger",
	"com.android.chrome",
	"com.facebook.katana",
}

func TestCachedAppParser(t *testing.T) {
	tests := []struct {
		name  string
		trim  bool
		input string
		want  []string
	}{
		{
			name:  "embedded among other tokens",
			input: "  12345 67890 com.foo.bar  1234K",
			want:  []string{"com.foo.bar"},
		},
		{
			name:  "embedded with trim",
			trim:  true,
			input: "  12345 67890 com.foo.bar  1234K",
			want:  []string{"com.foo.bar"},
		},
		{
			name:  "trailing whitespace glued to token",
			trim:  true,
			input: "\t\tcom.foo.bar\t",
			want:  []string{"com.foo.bar"},
		},
		{
			name:  "trailing whitespace without trim",
			input: "\t\tcom.foo.bar\t",
			want:  []string{},
		},
		{
			name:  "substring never matches",
			input: "com.foo.barista com.foo.ba xcom.foo.bar",
			want:  []string{},
		},
		{
			name:  "deduplicated",
			input: "com.foo.bar\ncom.foo.bar com.foo.bar",
			want:  []string{"com.foo.bar"},
		},
		{
			name:  "empty output",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewCachedAppParser([]string{"com.foo.bar"}, tt.trim)
			got := p.Parse(tt.input).Sorted()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCachedAppParserRealOutput(t *testing.T) {
	plain := NewCachedAppParser(trackedApps, false).Parse(realDumpsysMeminfoSummary)
	want := types.NewCachedAppSet("com.twitter.android", "com.spotify.music", "com.android.chrome")
	if !plain.Equal(want) {
		t.Errorf("untrimmed parse = %v, want %v", plain.Sorted(), want.Sorted())
	}

	trimmed := NewCachedAppParser(trackedApps, true).Parse(realDumpsysMeminfoSummary)
	want.Add("org.telegram.messenger")
	if !trimmed.Equal(want) {
		t.Errorf("trimmed parse = %v, want %v", trimmed.Sorted(), want.Sorted())
	}
	if trimmed.Contains("com.google.android.apps.nexuslauncher") {
		t.Error("package outside the allow-list must be ignored")
	}
}

func TestCachedAppParserFreshSet(t *testing.T) {
	p := NewCachedAppParser(trackedApps, true)
	first := p.Parse("com.twitter.android")
	second := p.Parse("com.spotify.music")
	if first.Contains("com.spotify.music") || second.Contains("com.twitter.android") {
		t.Error("each Parse call must return an independent set")
	}
}

// ========================================
// Test: Frames
// ========================================

const realDumpsysGfxInfo = `Applications Graphics Acceleration Info:
Uptime: 1104321 Realtime: 1104321

** Graphics info for pid 8812 [com.twitter.android] **

Stats since: 1093812231ns
Total frames rendered: 412
Janky frames: 23 (5.58%)

Profile data in ms:

	com.twitter.android/com.twitter.app.main.MainActivity/android.view.ViewRootImpl@4b2c1a0 (visibility=0)
	Draw	Prepare	Process	Execute
	0.41	0.12	2.93	1.05
	0.38	0.10	3.11	0.97
	1.20	0.33	6.02	2.41

	com.twitter.android/android.widget.PopupWindow$PopupDecorView/android.view.ViewRootImpl@91ce3d (visibility=8)
	Draw	Prepare	Process	Execute
	0.50	0.05	1.00	0.75

View hierarchy:

  com.twitter.android/com.twitter.app.main.MainActivity/android.view.ViewRootImpl@4b2c1a0
  151 views, 148.63 kB of display lists
`

func TestParseFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []types.FrameSample
	}{
		{
			name:  "single table closed by short line",
			input: "Draw Prepare Process Execute\n1.0 2.0 3.0 4.0\n5.0 6.0 7.0 8.0\nend\n9.0 9.0 9.0 9.0\n",
			want: []types.FrameSample{
				{DrawMs: 1, PrepareMs: 2, ProcessMs: 3, ExecuteMs: 4},
				{DrawMs: 5, PrepareMs: 6, ProcessMs: 7, ExecuteMs: 8},
			},
		},
		{
			name:  "second header starts a new table",
			input: "Draw\n1.0 2.0 3.0 4.0\n\nnoise 1 2\nDraw\n5.0 6.0 7.0 8.0\n",
			want: []types.FrameSample{
				{DrawMs: 1, PrepareMs: 2, ProcessMs: 3, ExecuteMs: 4},
				{DrawMs: 5, PrepareMs: 6, ProcessMs: 7, ExecuteMs: 8},
			},
		},
		{
			name:  "header directly after table",
			input: "Draw\n1 1 1 1\nDraw Prepare Process Execute\n2 2 2 2\n",
			want: []types.FrameSample{
				{DrawMs: 1, PrepareMs: 1, ProcessMs: 1, ExecuteMs: 1},
				{DrawMs: 2, PrepareMs: 2, ProcessMs: 2, ExecuteMs: 2},
			},
		},
		{
			name:  "non numeric row ends table",
			input: "Draw\n1 1 1 1\na b c d\n2 2 2 2\n",
			want: []types.FrameSample{
				{DrawMs: 1, PrepareMs: 1, ProcessMs: 1, ExecuteMs: 1},
			},
		},
		{
			name:  "nan and inf rows end table",
			input: "Draw\n1 1 1 1\nNaN 1 1 1\nInf 1 1 1\n",
			want: []types.FrameSample{
				{DrawMs: 1, PrepareMs: 1, ProcessMs: 1, ExecuteMs: 1},
			},
		},
		{
			name:  "infinite value in any column",
			input: "Draw\n1 +Inf 1 1\n2 2 2 -inf\n",
			want:  nil,
		},
		{
			name:  "rows before any header are ignored",
			input: "1 2 3 4\n",
			want:  nil,
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFrames(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFramesRealOutput(t *testing.T) {
	frames := ParseFrames(realDumpsysGfxInfo)
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	if frames[2].DrawMs != 1.20 || frames[2].ExecuteMs != 2.41 {
		t.Errorf("frame[2] = %+v", frames[2])
	}
	if got := frames[3].Total(); math.Abs(got-2.30) > 1e-9 {
		t.Errorf("frame[3].Total() = %v, want 2.30", got)
	}
}

func TestFramesRestartable(t *testing.T) {
	seq := Frames(realDumpsysGfxInfo)
	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 4 || b != 4 {
		t.Errorf("ranging twice gave %d and %d frames, want 4 and 4", a, b)
	}
}

func TestFramesEarlyStop(t *testing.T) {
	n := 0
	for range Frames(realDumpsysGfxInfo) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("stopped after %d frames, want 2", n)
	}
}
