// Package mcp provides the MCP (Model Context Protocol) server of fleetbench.
// It lets external AI clients parse device output, trigger experiments and
// read stored reports over stdio.
package mcp

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"Fleetbench/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Type aliases from shared types package
type (
	Device       = types.Device
	Report       = types.Report
	AppReport    = types.AppReport
	RunSummary   = types.RunSummary
	LaunchResult = types.LaunchResult
	FrameSample  = types.FrameSample
)

// ExperimentRequest selects and overrides one experiment run
type ExperimentRequest struct {
	Mode          string   `json:"mode"`
	Serial        string   `json:"serial,omitempty"`
	Apps          []string `json:"apps,omitempty"`
	Repeat        int      `json:"repeat,omitempty"`
	SkipWarmup    *bool    `json:"skipWarmup,omitempty"`
	SampleCache   *bool    `json:"sampleCache,omitempty"`
	WorkingSetApp string   `json:"workingSetApp,omitempty"`
}

// BenchApp interface defines the methods that MCP server needs from the main App
type BenchApp interface {
	GetAppVersion() string

	// Device
	GetDevices(ctx context.Context) ([]Device, error)
	CachedAppsSnapshot(ctx context.Context, serial string) ([]string, error)
	AllowList() []string

	// Runs
	RunExperiment(ctx context.Context, req ExperimentRequest) (Report, error)
	ListRuns(limit int) ([]RunSummary, error)
	GetReport(runID string) (Report, error)
	DeleteRun(runID string) error
}

// MCPServer wraps the MCP server implementation
type MCPServer struct {
	app       BenchApp
	server    *server.MCPServer
	stdio     *server.StdioServer
	mu        sync.Mutex
	isRunning bool
}

// NewMCPServer creates a new MCP server
func NewMCPServer(app BenchApp) *MCPServer {
	mcpServer := server.NewMCPServer(
		"fleetbench",
		app.GetAppVersion(),
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithElicitation(), // delete_run asks before removing data
		server.WithLogging(),
	)

	s := &MCPServer{
		app:    app,
		server: mcpServer,
	}

	s.registerTools()
	s.registerResources()

	return s
}

// registerTools registers all MCP tools
func (s *MCPServer) registerTools() {
	// Offline parsers
	s.registerParseTools()

	// Device Tools
	s.registerDeviceTools()

	// Experiment and report tools
	s.registerRunTools()
}

// registerResources registers all MCP resources
func (s *MCPServer) registerResources() {
	s.server.AddResource(
		mcp.NewResource(
			"fleetbench://runs",
			"Recent experiment runs",
			mcp.WithMIMEType("application/json"),
		),
		s.handleRunsResource,
	)

	s.server.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"fleetbench://runs/{runId}",
			"Report of one experiment run",
		),
		s.handleReportResource,
	)
}

// Start starts the MCP server (blocking - for CLI mode)
func (s *MCPServer) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	return s.run()
}

// run runs the MCP server (blocking)
func (s *MCPServer) run() error {
	s.stdio = server.NewStdioServer(s.server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(os.Stderr, "[MCP] fleetbench MCP server started")
	err := s.stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "[MCP] Server error: %v\n", err)
	} else {
		err = nil
	}

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()

	return err
}

// Stop stops the MCP server
func (s *MCPServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The server will stop when stdin is closed or context is cancelled
	s.isRunning = false
}

// IsRunning returns whether the MCP server is running
func (s *MCPServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// requestConfirmation requests user confirmation for dangerous operations
func (s *MCPServer) requestConfirmation(ctx context.Context, operation, details string) (bool, error) {
	elicitationRequest := mcp.ElicitationRequest{
		Params: mcp.ElicitationParams{
			Message: fmt.Sprintf("Dangerous Operation: %s\n\nDetails: %s\n\nDo you want to proceed?", operation, details),
			RequestedSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"confirm": map[string]any{
						"type":        "boolean",
						"description": "Confirm to proceed with this operation",
					},
				},
				"required": []string{"confirm"},
			},
		},
	}

	result, err := s.server.RequestElicitation(ctx, elicitationRequest)
	if err != nil {
		return false, fmt.Errorf("failed to request confirmation: %w", err)
	}

	if result.Action != mcp.ElicitationResponseActionAccept {
		return false, nil
	}

	data, ok := result.Content.(map[string]any)
	if !ok {
		return false, fmt.Errorf("unexpected response format")
	}

	confirm, ok := data["confirm"].(bool)
	if !ok {
		return false, fmt.Errorf("invalid confirmation response")
	}

	return confirm, nil
}

// errorResult wraps a message as a tool error
func errorResult(format string, args ...interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("Error: " + fmt.Sprintf(format, args...))},
		IsError: true,
	}
}
