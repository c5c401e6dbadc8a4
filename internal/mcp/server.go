// Package mcp exposes the analysis daemon over the Model Context Protocol.
// The transport is stdio, so nothing in this package may write to stdout
// except the protocol itself; diagnostics go through the debug logger.
package mcp

import (
	"context"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.lsp.dev/uri"

	"github.com/standardbeagle/lad/internal/config"
	"github.com/standardbeagle/lad/internal/daemon"
	"github.com/standardbeagle/lad/internal/debug"
	"github.com/standardbeagle/lad/internal/export"
	"github.com/standardbeagle/lad/internal/types"
	"github.com/standardbeagle/lad/internal/version"
)

// analyzeTimeout bounds how long analyze_file waits for the scheduled run.
const analyzeTimeout = 30 * time.Second

// Server serves daemon state and operations as MCP tools.
type Server struct {
	cfg    *config.Config
	d      *daemon.Daemon
	server *mcp.Server
}

// NewServer wires the tool set over a running daemon.
func NewServer(cfg *config.Config, d *daemon.Daemon) *Server {
	s := &Server{
		cfg: cfg,
		d:   d,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "lad-mcp-server",
			Version: version.Info(),
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves the stdio transport until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	debug.SetMCPMode(true)
	debug.LogMCP("serving %s over stdio\n", version.FullInfo())
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "daemon_status",
		Description: "Get the analysis daemon's current state: active run, dirty documents, pass kinds, and scheduling counters.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleDaemonStatus)

	s.server.AddTool(&mcp.Tool{
		Name:        "analyze_file",
		Description: "Analyze one file now: opens (or refreshes) the document, runs all passes, and returns its highlights.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "Absolute path of the file to analyze",
				},
			},
			Required: []string{"path"},
		},
	}, s.handleAnalyzeFile)

	s.server.AddTool(&mcp.Tool{
		Name:        "get_highlights",
		Description: "Get the currently applied highlights for a tracked file, optionally filtered by pass kind. Returns LSP-style diagnostics for lint findings.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "Absolute path of a tracked file",
				},
				"kind": {
					Type:        "string",
					Description: "Pass kind to filter by (syntax, semantic, inspections, todo)",
				},
			},
			Required: []string{"path"},
		},
	}, s.handleGetHighlights)

	s.server.AddTool(&mcp.Tool{
		Name:        "restart_daemon",
		Description: "Cancel the current run and restart analysis immediately, bypassing the debounce delay.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"reason": {
					Type:        "string",
					Description: "Human-readable reason recorded in the daemon log",
				},
			},
		},
	}, s.handleRestartDaemon)

	s.server.AddTool(&mcp.Tool{
		Name:        "set_update_enabled",
		Description: "Enable or disable automatic debounced analysis restarts. Explicit restarts keep working while disabled.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"enabled": {
					Type:        "boolean",
					Description: "true to resume automatic restarts, false to pause them",
				},
			},
			Required: []string{"enabled"},
		},
	}, s.handleSetUpdateEnabled)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_passes",
		Description: "List the registered pass kinds in execution order with their dependencies and enabled state.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleListPasses)
}

func (s *Server) handleDaemonStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createJSONResponse(map[string]interface{}{
		"success": true,
		"status":  s.d.Status(),
		"version": version.FullInfo(),
	})
}

type analyzeFileParams struct {
	Path string `json:"path"`
}

func (s *Server) handleAnalyzeFile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params analyzeFileParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("analyze_file", fmt.Errorf("invalid parameters: %w", err))
	}
	data, err := os.ReadFile(params.Path)
	if err != nil {
		return createErrorResponse("analyze_file", err)
	}

	doc, err := s.d.OpenDocument(uri.File(params.Path), string(data))
	if err != nil {
		return createErrorResponse("analyze_file", err)
	}
	if err := s.d.WaitForIdle(analyzeTimeout); err != nil {
		return createErrorResponse("analyze_file", err)
	}

	records := s.d.Model().Snapshot(doc.ID())
	snap := doc.Snapshot()
	return createJSONResponse(map[string]interface{}{
		"success":     true,
		"path":        params.Path,
		"records":     records,
		"diagnostics": export.Diagnostics(snap, records),
		"clean":       s.d.DirtyMap().AllClean(doc.ID()),
	})
}

type getHighlightsParams struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

func (s *Server) handleGetHighlights(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params getHighlightsParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("get_highlights", fmt.Errorf("invalid parameters: %w", err))
	}
	doc := s.d.Documents().Lookup(uri.File(params.Path))
	if doc == nil {
		return createErrorResponse("get_highlights",
			fmt.Errorf("%s is not tracked; use analyze_file first", params.Path))
	}

	records := s.d.Model().Snapshot(doc.ID())
	if params.Kind != "" {
		filtered := records[:0]
		for _, rec := range records {
			if rec.Kind == types.PassKind(params.Kind) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	return createJSONResponse(map[string]interface{}{
		"success":     true,
		"path":        params.Path,
		"records":     records,
		"diagnostics": export.Diagnostics(doc.Snapshot(), records),
	})
}

type restartParams struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRestartDaemon(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params restartParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("restart_daemon", fmt.Errorf("invalid parameters: %w", err))
	}
	reason := params.Reason
	if reason == "" {
		reason = "restart requested over MCP"
	}
	s.d.RestartNow(reason)
	return createJSONResponse(map[string]interface{}{
		"success": true,
		"reason":  reason,
	})
}

type setUpdateEnabledParams struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetUpdateEnabled(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params setUpdateEnabledParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("set_update_enabled", fmt.Errorf("invalid parameters: %w", err))
	}
	s.d.SetUpdateByTimer(params.Enabled)
	return createJSONResponse(map[string]interface{}{
		"success": true,
		"enabled": s.d.UpdateByTimerEnabled(),
	})
}

type passInfo struct {
	Kind      types.PassKind   `json:"kind"`
	RunsAfter []types.PassKind `json:"runs_after,omitempty"`
	Priority  int              `json:"priority"`
	Disabled  bool             `json:"disabled"`
}

func (s *Server) handleListPasses(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	order, err := s.d.Registry().BuildOrder()
	if err != nil {
		return createErrorResponse("list_passes", err)
	}
	passes := make([]passInfo, 0, len(order))
	for _, desc := range order {
		passes = append(passes, passInfo{
			Kind:      desc.Kind,
			RunsAfter: desc.RunsAfter,
			Priority:  desc.Priority,
		})
	}
	// Disabled kinds don't appear in the execution order; list them after.
	for _, kind := range s.d.Registry().Kinds() {
		desc := s.d.Registry().Lookup(kind)
		if desc != nil && desc.Disabled {
			passes = append(passes, passInfo{
				Kind:      desc.Kind,
				RunsAfter: desc.RunsAfter,
				Priority:  desc.Priority,
				Disabled:  true,
			})
		}
	}
	return createJSONResponse(map[string]interface{}{
		"success": true,
		"passes":  passes,
	})
}
