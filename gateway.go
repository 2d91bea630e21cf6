package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"Fleetbench/pkg/config"
	"Fleetbench/pkg/driver"
)

// proxyVars are stripped from every child environment; adb misbehaves behind
// HTTP proxies
var proxyVars = []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "all_proxy", "no_proxy"}

// cleanEnv returns os.Environ() without proxy variables
func cleanEnv() []string {
	env := os.Environ()
	newEnv := make([]string, 0, len(env))
	for _, e := range env {
		isProxy := false
		for _, v := range proxyVars {
			if strings.HasPrefix(e, v+"=") {
				isProxy = true
				break
			}
		}
		if !isProxy {
			newEnv = append(newEnv, e)
		}
	}
	return newEnv
}

// process describes one child process
type process struct {
	Dir  string
	Env  []string // extra variables on top of the cleaned environment
	Name string
	Args []string
}

func (p process) String() string {
	return p.Name + " " + strings.Join(p.Args, " ")
}

// execFunc runs one process and returns its stdout and stderr
type execFunc func(ctx context.Context, p process) (stdout, stderr []byte, err error)

// waitDelay bounds how long Wait keeps reading pipes after the process was
// killed
const waitDelay = 2 * time.Second

func runProcess(ctx context.Context, p process) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, p.Name, p.Args...)
	cmd.Env = append(cleanEnv(), p.Env...)
	cmd.Dir = p.Dir
	// scripts fork adb; on cancel the whole group has to go, not just bash
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DeviceGateway runs adb and helper scripts against one device. It implements
// driver.Gateway: every call returns stdout as-is and never fails, problems
// are only logged.
type DeviceGateway struct {
	adbPath   string
	serial    string
	timeout   time.Duration
	scriptDir string
	input     config.InputConfig
	exec      execFunc

	// package -> launcher component
	components   map[string]string
	componentsMu sync.Mutex
}

// GatewayOptions configures a DeviceGateway
type GatewayOptions struct {
	AdbPath   string
	Serial    string
	Timeout   time.Duration // 0 disables
	ScriptDir string
	Input     config.InputConfig
}

// NewDeviceGateway creates a gateway for one device
func NewDeviceGateway(opts GatewayOptions) *DeviceGateway {
	adb := opts.AdbPath
	if adb == "" {
		adb = "adb"
	}
	return &DeviceGateway{
		adbPath:    adb,
		serial:     opts.Serial,
		timeout:    opts.Timeout,
		scriptDir:  opts.ScriptDir,
		input:      opts.Input,
		exec:       runProcess,
		components: make(map[string]string),
	}
}

// Serial returns the device serial, empty when adb picks the only device
func (g *DeviceGateway) Serial() string {
	return g.serial
}

// Run executes name with args and returns stdout. Non-zero exits and
// timeouts are logged; whatever was printed is still returned.
func (g *DeviceGateway) Run(ctx context.Context, name string, args ...string) string {
	return g.run(ctx, process{Name: name, Args: args})
}

func (g *DeviceGateway) run(ctx context.Context, p process) string {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	stdout, stderr, err := g.exec(ctx, p)
	if err != nil {
		ev := LogWarn("gateway").
			Err(err).
			Str("cmd", p.String()).
			Dur("elapsed", time.Since(start)).
			Int("stdout_bytes", len(stdout))
		if len(stderr) > 0 {
			ev = ev.Str("stderr", strings.TrimSpace(string(stderr)))
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			ev.Msg("Command timed out")
		} else {
			ev.Msg("Command failed")
		}
	} else {
		LogDebug("gateway").Str("cmd", p.String()).Dur("elapsed", time.Since(start)).Msg("Command done")
	}
	return string(stdout)
}

// Adb runs an adb command against the selected device
func (g *DeviceGateway) Adb(ctx context.Context, args ...string) string {
	if g.serial != "" {
		args = append([]string{"-s", g.serial}, args...)
	}
	return g.Run(ctx, g.adbPath, args...)
}

// Shell runs `adb shell` with args
func (g *DeviceGateway) Shell(ctx context.Context, args ...string) string {
	return g.Adb(ctx, append([]string{"shell"}, args...)...)
}

// Script runs a helper script with bash. Relative paths resolve against the
// script directory.
func (g *DeviceGateway) Script(ctx context.Context, path string) string {
	if g.scriptDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(g.scriptDir, path)
	}
	p := process{Dir: g.scriptDir, Name: "bash", Args: []string{path}}
	if g.serial != "" {
		// scripts call plain adb, so point them at our device
		p.Env = []string{"ANDROID_SERIAL=" + g.serial}
	}
	return g.run(ctx, p)
}

// ========================================
// driver.Gateway
// ========================================

// Launch starts app and returns the `am start -W` report
func (g *DeviceGateway) Launch(ctx context.Context, app driver.App) string {
	if app.LaunchScript != "" {
		return g.Script(ctx, app.LaunchScript)
	}
	component := app.Component
	if component == "" {
		component = g.launcherComponent(ctx, app.Package)
	}
	if component == "" {
		LogWarn("gateway").Str("package", app.Package).Msg("No launcher activity found")
		return ""
	}
	return g.Shell(ctx, "am", "start", "-W", "-n", component)
}

// ForceStop kills pkg
func (g *DeviceGateway) ForceStop(ctx context.Context, pkg string) string {
	return g.Shell(ctx, "am", "force-stop", pkg)
}

// Home presses the home key
func (g *DeviceGateway) Home(ctx context.Context) string {
	if g.input.HomeScript != "" {
		return g.Script(ctx, g.input.HomeScript)
	}
	return g.Shell(ctx, "input", "keyevent", "3")
}

// Gesture plays one configured swipe
func (g *DeviceGateway) Gesture(ctx context.Context, gesture driver.Gesture) string {
	var gs config.Gesture
	switch gesture {
	case driver.GestureSwipeUpFast:
		gs = g.input.SwipeUpFast
	case driver.GestureSwipeDownFast:
		gs = g.input.SwipeDownFast
	case driver.GestureSwipeUp:
		gs = g.input.SwipeUp
	default:
		LogWarn("gateway").Str("gesture", string(gesture)).Msg("Unknown gesture")
		return ""
	}
	if gs.Script != "" {
		return g.Script(ctx, gs.Script)
	}
	return g.Shell(ctx, "input", "swipe",
		strconv.Itoa(gs.X1), strconv.Itoa(gs.Y1),
		strconv.Itoa(gs.X2), strconv.Itoa(gs.Y2),
		strconv.Itoa(gs.DurationMs))
}

// Meminfo returns `dumpsys meminfo`
func (g *DeviceGateway) Meminfo(ctx context.Context) string {
	return g.Shell(ctx, "dumpsys", "meminfo")
}

// GfxInfo returns `dumpsys gfxinfo <pkg>`, optionally resetting the counters
func (g *DeviceGateway) GfxInfo(ctx context.Context, pkg string, reset bool) string {
	if reset {
		return g.Shell(ctx, "dumpsys", "gfxinfo", pkg, "reset")
	}
	return g.Shell(ctx, "dumpsys", "gfxinfo", pkg)
}

// launcherComponent resolves the launcher activity of pkg once per gateway
func (g *DeviceGateway) launcherComponent(ctx context.Context, pkg string) string {
	g.componentsMu.Lock()
	defer g.componentsMu.Unlock()

	if c, ok := g.components[pkg]; ok {
		return c
	}
	out := g.Shell(ctx, "cmd", "package", "resolve-activity", "--brief",
		"-a", "android.intent.action.MAIN", "-c", "android.intent.category.LAUNCHER", pkg)
	c := parseResolvedComponent(out, pkg)
	if c != "" {
		g.components[pkg] = c
	}
	return c
}

// parseResolvedComponent picks the component line out of
// `cmd package resolve-activity --brief` output:
//
//	priority=0 preferredOrder=0 match=0x108000 specificIndex=-1 isDefault=true
//	com.twitter.android/.StartActivity
func parseResolvedComponent(output, pkg string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, pkg+"/") {
			return line
		}
	}
	return ""
}

// String is used in logs
func (g *DeviceGateway) String() string {
	if g.serial == "" {
		return fmt.Sprintf("adb(%s)", g.adbPath)
	}
	return fmt.Sprintf("adb(%s -s %s)", g.adbPath, g.serial)
}
