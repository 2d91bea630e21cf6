package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// handleRunsResource handles the fleetbench://runs resource
func (s *MCPServer) handleRunsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.app.ListRuns(50)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []RunSummary{}
	}

	jsonData, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize runs: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

// handleReportResource handles the fleetbench://runs/{runId} resource template
func (s *MCPServer) handleReportResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	// Extract run ID from URI: fleetbench://runs/{runId}
	uri := request.Params.URI
	parts := strings.Split(uri, "/")
	if len(parts) < 4 || parts[3] == "" {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	runID := parts[3]

	rep, err := s.app.GetReport(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	jsonData, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
