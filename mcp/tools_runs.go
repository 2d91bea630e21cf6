package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"Fleetbench/pkg/types"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
)

// registerRunTools registers experiment and report tools
func (s *MCPServer) registerRunTools() {
	// run_experiment - Run one experiment and return its report
	s.server.AddTool(
		mcp.NewTool("run_experiment",
			mcp.WithDescription(`Run a launch experiment on a device and return the report.

Modes:
- launch: repeat full launch cycles over all apps
- working-set: measure one app while the others cycle
- cycle: launch all apps round-robin and sample the cache

Blocks until the run finishes. The run is stored and can be read again with get_report.`),
			mcp.WithString("mode",
				mcp.Required(),
				mcp.Description("launch, working-set or cycle"),
			),
			mcp.WithString("device_id",
				mcp.Description("Device serial (optional)"),
			),
			mcp.WithString("apps",
				mcp.Description("Comma-separated subset of configured packages (optional)"),
			),
			mcp.WithNumber("repeat",
				mcp.Description("Iterations (optional, defaults to config)"),
			),
			mcp.WithBoolean("skip_warmup",
				mcp.Description("Do not record the first (warm-up) iteration"),
			),
			mcp.WithBoolean("sample_cache",
				mcp.Description("Record cached app counts after each launch"),
			),
			mcp.WithString("working_set_app",
				mcp.Description("Measured app for working-set mode"),
			),
		),
		s.handleRunExperiment,
	)

	// list_runs - List stored runs
	s.server.AddTool(
		mcp.NewTool("list_runs",
			mcp.WithDescription("List stored experiment runs, newest first"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of runs (default 20)"),
			),
		),
		s.handleListRuns,
	)

	// get_report - Read a stored report
	s.server.AddTool(
		mcp.NewTool("get_report",
			mcp.WithDescription(`Get the report of a stored run as JSON.

Use run_id "last" for the newest run. The optional query is a gjson path
evaluated against the report, e.g. apps.#(package=="com.twitter.android").hot`),
			mcp.WithString("run_id",
				mcp.Required(),
				mcp.Description("Run ID or \"last\""),
			),
			mcp.WithString("query",
				mcp.Description("gjson path (optional)"),
			),
		),
		s.handleGetReport,
	)

	// delete_run - Delete a stored run
	s.server.AddTool(
		mcp.NewTool("delete_run",
			mcp.WithDescription("Delete a stored run and all its samples"),
			mcp.WithString("run_id",
				mcp.Required(),
				mcp.Description("Run ID to delete"),
			),
			mcp.WithBoolean("confirm",
				mcp.Description("Skip the confirmation prompt"),
			),
		),
		s.handleDeleteRun,
	)
}

func (s *MCPServer) handleRunExperiment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	mode, _ := args["mode"].(string)
	switch mode {
	case types.ModeLaunch, types.ModeWorkingSet, types.ModeCycle:
	default:
		return errorResult("unknown mode %q (want launch, working-set or cycle)", mode), nil
	}

	req := ExperimentRequest{Mode: mode, Apps: stringList(args["apps"])}
	req.Serial, _ = args["device_id"].(string)
	req.WorkingSetApp, _ = args["working_set_app"].(string)
	if v, ok := args["repeat"].(float64); ok {
		req.Repeat = int(v)
	}
	if v, ok := args["skip_warmup"].(bool); ok {
		req.SkipWarmup = &v
	}
	if v, ok := args["sample_cache"].(bool); ok {
		req.SampleCache = &v
	}
	if mode == types.ModeWorkingSet && req.WorkingSetApp == "" {
		return errorResult("working_set_app is required for working-set mode"), nil
	}

	rep, err := s.app.RunExperiment(ctx, req)
	if err != nil {
		return errorResult("experiment failed: %v", err), nil
	}
	return jsonResult(rep)
}

func (s *MCPServer) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	limit := 20
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	runs, err := s.app.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent("No runs stored")},
		}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d run(s):\n\n", len(runs))
	for i, r := range runs {
		fmt.Fprintf(&sb, "%d. %s [%s] %s on %s, %d launches, started %s\n",
			i+1, r.ID, r.Status, r.Mode, r.DeviceSerial, r.Launches, r.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(sb.String())},
	}, nil
}

func (s *MCPServer) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return errorResult("run_id is required"), nil
	}

	rep, err := s.app.GetReport(runID)
	if err != nil {
		return errorResult("%v", err), nil
	}

	query, _ := args["query"].(string)
	if query == "" {
		return jsonResult(rep)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}
	res := gjson.GetBytes(data, query)
	if !res.Exists() {
		return errorResult("query %q matched nothing", query), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(res.String())},
	}, nil
}

func (s *MCPServer) handleDeleteRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	runID, ok := args["run_id"].(string)
	if !ok || runID == "" {
		return errorResult("run_id is required"), nil
	}

	if confirmed, _ := args["confirm"].(bool); !confirmed {
		ok, err := s.requestConfirmation(ctx, "Delete run", fmt.Sprintf("Run %s and all of its samples will be removed.", runID))
		if err != nil {
			return errorResult("%v (pass confirm=true to skip the prompt)", err), nil
		}
		if !ok {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent("Deletion cancelled")},
			}, nil
		}
	}

	if err := s.app.DeleteRun(runID); err != nil {
		return errorResult("%v", err), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("Run %s deleted", runID))},
	}, nil
}
