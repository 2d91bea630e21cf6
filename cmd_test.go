package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"Fleetbench/pkg/config"
	"Fleetbench/pkg/types"
)

// executeCmd runs the command tree with a fresh temp config and data dir
func executeCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfgFile, serialFlag, logLevel, dataDirFlag = "", "", "", ""
	cfg = nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// testDirs returns a config path that does not exist yet and a data dir
func testDirs(t *testing.T) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "config.toml"), filepath.Join(dir, "data")
}

func TestRootPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "serial", "log-level", "data-dir"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("--%s persistent flag not found on root command", name)
		}
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := newRunCmd()

	tests := []struct {
		flag     string
		defValue string
	}{
		{"repeat", "0"},
		{"skip-warmup", "true"},
		{"sample-cache", "false"},
		{"format", "text"},
		{"apps", "[]"},
		{"use-duration", "0s"},
	}
	for _, tc := range tests {
		f := cmd.Flags().Lookup(tc.flag)
		if f == nil {
			t.Errorf("--%s not found", tc.flag)
			continue
		}
		if f.DefValue != tc.defValue {
			t.Errorf("--%s default = %q, want %q", tc.flag, f.DefValue, tc.defValue)
		}
	}
}

func TestExperimentFlagsOnlyOverrideChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	var flags experimentFlags
	flags.register(cmd)
	if err := cmd.Flags().Parse([]string{"--repeat", "4", "--sample-cache", "--apps", "com.a,com.b"}); err != nil {
		t.Fatal(err)
	}

	opts := flags.options(cmd)
	if opts.Repeat != 4 || len(opts.Apps) != 2 {
		t.Errorf("opts = %+v", opts)
	}
	if opts.SkipWarmup != nil {
		t.Error("skip-warmup was not passed and must keep the configured value")
	}
	if opts.SampleCache == nil || !*opts.SampleCache {
		t.Errorf("SampleCache = %v", opts.SampleCache)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCmd(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "fleetbench version dev\n" {
		t.Errorf("out = %q", out)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path, dataDir := testDirs(t)

	out, err := executeCmd(t, "", "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("init output = %q", out)
	}

	out, err = executeCmd(t, "", "config", "show", "--config", path, "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"[experiment]", "[cache]", "com.twitter.android"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q", want)
		}
	}

	out, _ = executeCmd(t, "", "config", "path", "--config", path)
	if strings.TrimSpace(out) != path {
		t.Errorf("path = %q", out)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	path, dataDir := testDirs(t)
	if err := os.WriteFile(path, []byte("[experiment]\nrepeat = 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := executeCmd(t, "", "runs", "--config", path, "--data-dir", dataDir, "--log-level", "error"); err == nil {
		t.Error("expected validation error for repeat = 0")
	}
}

func TestInvalidSerialFlag(t *testing.T) {
	path, dataDir := testDirs(t)
	_, err := executeCmd(t, "", "cache", "--config", path, "--data-dir", dataDir, "--serial", "bad;serial", "--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "invalid --serial") {
		t.Errorf("err = %v", err)
	}
}

func TestParseLaunchCommand(t *testing.T) {
	path, dataDir := testDirs(t)
	input := "Starting: Intent { cmp=com.twitter.android/.StartActivity }\nStatus: ok\nLaunchState: COLD\nTotalTime: 1432\nWaitTime: 1440\nComplete\n"

	out, err := executeCmd(t, input, "parse", "launch", "--config", path, "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	want := "status= ok\nlaunch_state= COLD\nbucket= cold\nwait_time= 1440\ntotal_time= 1432\n"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestParseCacheCommand(t *testing.T) {
	path, dataDir := testDirs(t)
	toml := "[cache]\nallow_list = [\"com.twitter.android\", \"com.spotify.music\", \"org.telegram.messenger\"]\n\n" +
		"[working_set]\napp = \"com.spotify.music\"\n"
	if err := os.WriteFile(path, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}
	meminfo := filepath.Join(filepath.Dir(path), "meminfo.txt")
	if err := os.WriteFile(meminfo, []byte("Total PSS by OOM adjustment:\n"+
		"    254,918K: Cached\n"+
		"        160,034K: com.twitter.android (pid 8812 / activities)\n"+
		"         94,884K: com.spotify.music (pid 9021)\n"+
		"         40,000K: com.example.other (pid 1)\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := executeCmd(t, "", "parse", "cache", meminfo, "--config", path, "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	want := "cached_app_count= 2\ncom.spotify.music\ncom.twitter.android\n"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestParseFramesCommand(t *testing.T) {
	path, dataDir := testDirs(t)
	input := "Profile data in ms:\n\n\tcom.twitter.android/.Main/android.view.ViewRootImpl@4b2c1a0 (visibility=0)\n" +
		"\tDraw\tPrepare\tProcess\tExecute\n\t0.41\t0.12\t2.93\t1.05\n\t5.00\t1.00\t12.00\t2.00\n\nView hierarchy:\n"

	out, err := executeCmd(t, input, "parse", "frames", "-", "--config", path, "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"idx= 1 total= 4.51 draw= 0.41 prepare= 0.12 execute= 1.05\n",
		"idx= 2 total= 20.00 draw= 5.00 prepare= 1.00 execute= 2.00\n",
		"20.00 ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestParseMissingFile(t *testing.T) {
	path, dataDir := testDirs(t)
	if _, err := executeCmd(t, "", "parse", "launch", filepath.Join(dataDir, "nope.txt"), "--config", path, "--data-dir", dataDir, "--log-level", "error"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestRunsAndReportCommands(t *testing.T) {
	path, dataDir := testDirs(t)

	out, err := executeCmd(t, "", "runs", "--config", path, "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No runs stored") {
		t.Errorf("empty listing = %q", out)
	}

	// seed one run directly
	store, err := NewRunStore(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	runID, err := store.CreateRun(types.ModeLaunch, "emulator-5554", testRunConfig(), start)
	if err != nil {
		t.Fatal(err)
	}
	store.RecordLaunch(runID, launchSample("com.twitter.android", 1, types.LaunchStateHot, 57, start.Add(time.Second)))
	store.RecordLaunch(runID, launchSample("com.twitter.android", 2, types.LaunchStateCold, 1320, start.Add(2*time.Second)))
	store.FinishRun(runID, RunStatusCompleted, start.Add(time.Minute))
	store.Close()

	out, err = executeCmd(t, "", "runs", "--config", path, "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, runID) || !strings.Contains(out, "completed") {
		t.Errorf("listing = %q", out)
	}

	out, err = executeCmd(t, "", "report", "last", "--config", path, "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "hot_launch_time_com.twitter.android= [57]\n") || !strings.Contains(out, "cold_launch_time_com.twitter.android= [1320]\n") {
		t.Errorf("report = %s", out)
	}

	out, err = executeCmd(t, "", "report", runID, "-q", "apps.0.cold.0", "--config", path, "--data-dir", dataDir, "--log-level", "error")
	if err != nil {
		t.Fatal(err)
	}
	if out != "1320\n" {
		t.Errorf("query = %q", out)
	}

	if _, err := executeCmd(t, "", "report", "no-such-run", "--config", path, "--data-dir", dataDir, "--log-level", "error"); err == nil {
		t.Error("expected an error for an unknown run")
	}
}

func TestLogConfigFrom(t *testing.T) {
	c := config.Default()
	c.DataDir = "/var/lib/fleetbench"
	c.Log.Level = "warn"
	c.Log.EnableFile = true
	c.Log.MaxSizeMB = 25
	c.Log.PrettyPrint = false

	lc, err := logConfigFrom(c, "")
	if err != nil {
		t.Fatal(err)
	}
	if lc.Level != LogLevelWarn || !lc.File || !lc.JSON || lc.MaxSizeMB != 25 {
		t.Errorf("log config = %+v", lc)
	}
	if lc.FilePath != filepath.Join("/var/lib/fleetbench", "logs", "fleetbench.log") {
		t.Errorf("FilePath = %s", lc.FilePath)
	}

	c.Log.Dir = "/tmp/fb-logs"
	lc, _ = logConfigFrom(c, "debug")
	if lc.Level != LogLevelDebug || lc.FilePath != filepath.Join("/tmp/fb-logs", "fleetbench.log") {
		t.Errorf("override = %+v", lc)
	}

	if _, err := logConfigFrom(c, "loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
