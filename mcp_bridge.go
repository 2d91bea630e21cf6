package main

import (
	"context"
	"slices"

	"Fleetbench/mcp"
)

// MCPBridge bridges the main App to the MCP server
type MCPBridge struct {
	app *App
}

// NewMCPBridge creates a new MCP bridge
func NewMCPBridge(app *App) *MCPBridge {
	return &MCPBridge{app: app}
}

// Implement mcp.BenchApp interface

func (b *MCPBridge) GetAppVersion() string {
	return b.app.GetAppVersion()
}

func (b *MCPBridge) GetDevices(ctx context.Context) ([]mcp.Device, error) {
	return b.app.GetDevices(ctx)
}

func (b *MCPBridge) CachedAppsSnapshot(ctx context.Context, serial string) ([]string, error) {
	set, err := b.app.CachedAppsSnapshot(ctx, serial)
	if err != nil {
		return nil, err
	}
	return set.Sorted(), nil
}

func (b *MCPBridge) AllowList() []string {
	return slices.Clone(b.app.Config().Cache.AllowList)
}

func (b *MCPBridge) RunExperiment(ctx context.Context, req mcp.ExperimentRequest) (mcp.Report, error) {
	return b.app.RunExperiment(ctx, req.Mode, RunOptions{
		Serial:        req.Serial,
		Apps:          req.Apps,
		Repeat:        req.Repeat,
		SkipWarmup:    req.SkipWarmup,
		SampleCache:   req.SampleCache,
		WorkingSetApp: req.WorkingSetApp,
	})
}

func (b *MCPBridge) ListRuns(limit int) ([]mcp.RunSummary, error) {
	return b.app.ListRuns(limit)
}

func (b *MCPBridge) GetReport(runID string) (mcp.Report, error) {
	return b.app.GetReport(runID)
}

func (b *MCPBridge) DeleteRun(runID string) error {
	return b.app.DeleteRun(runID)
}

// StartMCPServer starts the MCP server with the given app. Config edits are
// picked up while the server runs.
func StartMCPServer(app *App) error {
	watcher := NewConfigWatcher(app)
	if err := watcher.Start(); err != nil {
		LogWarn("mcp").Err(err).Msg("Config hot reload disabled")
	} else {
		defer watcher.Stop()
	}

	if path := GetLogFilePath(); path != "" {
		LogInfo("mcp").Str("logFile", path).Msg("Logging to file")
	}

	bridge := NewMCPBridge(app)
	mcpServer := mcp.NewMCPServer(bridge)
	if err := mcpServer.Start(); err != nil {
		LogError("mcp").Err(err).Msg("Failed to start MCP server")
		return err
	}
	return nil
}
