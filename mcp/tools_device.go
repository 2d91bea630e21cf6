package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerDeviceTools registers device tools
func (s *MCPServer) registerDeviceTools() {
	// device_list - List connected devices
	s.server.AddTool(
		mcp.NewTool("device_list",
			mcp.WithDescription("List all Android devices known to adb"),
		),
		s.handleDeviceList,
	)

	// cached_apps_snapshot - Which tracked apps are cached right now
	s.server.AddTool(
		mcp.NewTool("cached_apps_snapshot",
			mcp.WithDescription(`Run 'dumpsys meminfo' on a device and report which tracked apps are cached.

Only packages on the configured allow-list are reported.`),
			mcp.WithString("device_id",
				mcp.Description("Device serial (optional, defaults to the configured or only device)"),
			),
		),
		s.handleCachedAppsSnapshot,
	)
}

func (s *MCPServer) handleDeviceList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.app.GetDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	if len(devices) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent("No devices connected"),
			},
		}, nil
	}

	// Format device list
	result := fmt.Sprintf("Found %d device(s):\n\n", len(devices))
	for i, d := range devices {
		connType := ""
		if d.Type == "wireless" {
			connType = " [wireless]"
		}
		pinned := ""
		if d.IsPinned {
			pinned = " [pinned]"
		}
		result += fmt.Sprintf("%d. %s%s%s\n   Model: %s, State: %s\n",
			i+1, d.ID, connType, pinned, d.Model, d.State)
	}

	// Also include JSON for structured access
	jsonData, err := marshalJSON(devices)
	if err != nil {
		return nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
			mcp.NewTextContent(fmt.Sprintf("\nJSON data:\n```json\n%s\n```", jsonData)),
		},
	}, nil
}

func (s *MCPServer) handleCachedAppsSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	deviceID, _ := args["device_id"].(string)

	apps, err := s.app.CachedAppsSnapshot(ctx, deviceID)
	if err != nil {
		return errorResult("%v", err), nil
	}

	text := fmt.Sprintf("%d tracked app(s) cached", len(apps))
	if len(apps) > 0 {
		text += ":\n" + strings.Join(apps, "\n")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}, nil
}
