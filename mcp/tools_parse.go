package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"Fleetbench/pkg/parser"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerParseTools registers the offline parser tools. They take raw
// device output and never touch a device.
func (s *MCPServer) registerParseTools() {
	// parse_launch_result - parse `am start -W` output
	s.server.AddTool(
		mcp.NewTool("parse_launch_result",
			mcp.WithDescription(`Parse the output of 'adb shell am start -W -n <component>'.

Returns status, launch state (HOT/COLD/WARM), wait time and total time in ms.
Missing lines leave their field empty. A non-numeric WaitTime is reported as a
warning and the wait time stays 0.`),
			mcp.WithString("output",
				mcp.Required(),
				mcp.Description("Raw command output"),
			),
		),
		s.handleParseLaunchResult,
	)

	// parse_cached_apps - find tracked apps in `dumpsys meminfo`
	s.server.AddTool(
		mcp.NewTool("parse_cached_apps",
			mcp.WithDescription(`Find tracked packages in 'adb shell dumpsys meminfo' output.

Matching is exact token equality against the allow-list (the configured list
when allow_list is omitted).`),
			mcp.WithString("output",
				mcp.Required(),
				mcp.Description("Raw dumpsys meminfo output"),
			),
			mcp.WithString("allow_list",
				mcp.Description("Comma-separated package names (optional)"),
			),
			mcp.WithBoolean("trim_lines",
				mcp.Description("Strip each line before splitting (needed on some devices)"),
			),
		),
		s.handleParseCachedApps,
	)

	// parse_frames - parse the gfxinfo profile table
	s.server.AddTool(
		mcp.NewTool("parse_frames",
			mcp.WithDescription(`Parse the profile table of 'adb shell dumpsys gfxinfo <package>'.

Returns one entry per frame with draw/prepare/process/execute times in ms.`),
			mcp.WithString("output",
				mcp.Required(),
				mcp.Description("Raw dumpsys gfxinfo output"),
			),
		),
		s.handleParseFrames,
	)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(data)},
	}, nil
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize result: %w", err)
	}
	return string(data), nil
}

func (s *MCPServer) handleParseLaunchResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	output, ok := args["output"].(string)
	if !ok {
		return errorResult("output is required"), nil
	}

	res, err := parser.ParseLaunchResult(output)
	payload := struct {
		LaunchResult
		OK      bool   `json:"ok"`
		Bucket  string `json:"bucket"`
		Warning string `json:"warning,omitempty"`
	}{LaunchResult: res, OK: res.OK(), Bucket: res.LaunchState.Bucket()}
	if err != nil {
		payload.Warning = err.Error()
	}
	return jsonResult(payload)
}

func (s *MCPServer) handleParseCachedApps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	output, ok := args["output"].(string)
	if !ok {
		return errorResult("output is required"), nil
	}

	allow := stringList(args["allow_list"])
	if len(allow) == 0 {
		allow = s.app.AllowList()
	}
	trim, _ := args["trim_lines"].(bool)

	set := parser.NewCachedAppParser(allow, trim).Parse(output)
	return jsonResult(map[string]interface{}{
		"count": set.Len(),
		"apps":  set.Sorted(),
	})
}

func (s *MCPServer) handleParseFrames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	output, ok := args["output"].(string)
	if !ok {
		return errorResult("output is required"), nil
	}

	frames := parser.ParseFrames(output)
	if frames == nil {
		frames = []FrameSample{}
	}
	return jsonResult(map[string]interface{}{
		"count":  len(frames),
		"frames": frames,
	})
}

// stringList accepts either a comma-separated string or a JSON array
func stringList(v interface{}) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, p := range strings.Split(t, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	case []interface{}:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
