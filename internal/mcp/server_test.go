package mcp

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/lad/internal/apply"
	"github.com/standardbeagle/lad/internal/daemon"
	"github.com/standardbeagle/lad/internal/passes"
	"github.com/standardbeagle/lad/internal/types"
	"github.com/standardbeagle/lad/testhelpers"
)

type stubPass struct {
	kind types.PassKind
	runs *atomic.Int64
}

func (p *stubPass) Kind() types.PassKind { return p.kind }
func (p *stubPass) Collect(ctx *passes.Context) ([]types.HighlightRecord, error) {
	p.runs.Add(1)
	return []types.HighlightRecord{{
		Kind:     p.kind,
		Range:    ctx.Window,
		Severity: types.SeverityWarning,
		Rule:     "stub-finding",
		Message:  "stub finding",
	}}, nil
}

func newTestServer(t *testing.T) (*Server, *daemon.Daemon) {
	t.Helper()
	cfg := testhelpers.NewTestConfigBuilder(t.TempDir()).Build()

	var runs atomic.Int64
	reg := passes.NewRegistry()
	require.NoError(t, reg.Register(passes.Descriptor{
		Kind: types.KindSyntax,
		New:  func() passes.Pass { return &stubPass{kind: types.KindSyntax, runs: &runs} },
	}))
	require.NoError(t, reg.Register(passes.Descriptor{
		Kind:      types.KindInspections,
		RunsAfter: []types.PassKind{types.KindSyntax},
		New:       func() passes.Pass { return &stubPass{kind: types.KindInspections, runs: &runs} },
	}))

	d := daemon.New(cfg, reg, apply.SyncDispatcher{})
	t.Cleanup(d.Dispose)
	return NewServer(cfg, d), d
}

type toolHandler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

func callTool(t *testing.T, handler toolHandler, args interface{}) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)

	result, err := handler(context.Background(), &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Arguments: raw},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	if result.IsError {
		payload["_is_error"] = true
	}
	return payload
}

func TestHandleDaemonStatus(t *testing.T) {
	s, _ := newTestServer(t)
	payload := callTool(t, s.handleDaemonStatus, map[string]interface{}{})
	assert.Equal(t, true, payload["success"])
	require.Contains(t, payload, "status")
}

func TestHandleAnalyzeFile(t *testing.T) {
	s, d := newTestServer(t)
	path := filepath.Join(t.TempDir(), "sample.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello mcp\n"), 0o644))

	payload := callTool(t, s.handleAnalyzeFile, map[string]string{"path": path})
	require.Equal(t, true, payload["success"])
	assert.Equal(t, true, payload["clean"])
	assert.NotEmpty(t, payload["records"])

	doc := d.Documents().All()
	require.Len(t, doc, 1)
}

func TestHandleAnalyzeFile_MissingFile(t *testing.T) {
	s, _ := newTestServer(t)
	payload := callTool(t, s.handleAnalyzeFile, map[string]string{"path": "/does/not/exist"})
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, true, payload["_is_error"])
}

func TestHandleGetHighlights_FiltersByKind(t *testing.T) {
	s, _ := newTestServer(t)
	path := filepath.Join(t.TempDir(), "filter.txt")
	require.NoError(t, os.WriteFile(path, []byte("content\n"), 0o644))
	callTool(t, s.handleAnalyzeFile, map[string]string{"path": path})

	payload := callTool(t, s.handleGetHighlights, map[string]string{
		"path": path,
		"kind": string(types.KindInspections),
	})
	require.Equal(t, true, payload["success"])
	records, ok := payload["records"].([]interface{})
	require.True(t, ok)
	require.Len(t, records, 1)
	rec := records[0].(map[string]interface{})
	assert.Equal(t, string(types.KindInspections), rec["kind"])
}

func TestHandleGetHighlights_UntrackedPath(t *testing.T) {
	s, _ := newTestServer(t)
	payload := callTool(t, s.handleGetHighlights, map[string]string{"path": "/nowhere.txt"})
	assert.Equal(t, true, payload["_is_error"])
}

func TestHandleSetUpdateEnabled(t *testing.T) {
	s, d := newTestServer(t)

	payload := callTool(t, s.handleSetUpdateEnabled, map[string]bool{"enabled": false})
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, false, payload["enabled"])
	assert.False(t, d.UpdateByTimerEnabled())

	payload = callTool(t, s.handleSetUpdateEnabled, map[string]bool{"enabled": true})
	assert.Equal(t, true, payload["enabled"])
}

func TestHandleRestartDaemon(t *testing.T) {
	s, _ := newTestServer(t)
	payload := callTool(t, s.handleRestartDaemon, map[string]string{"reason": "test"})
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "test", payload["reason"])
}

func TestHandleListPasses_ExecutionOrder(t *testing.T) {
	s, _ := newTestServer(t)
	payload := callTool(t, s.handleListPasses, map[string]interface{}{})
	require.Equal(t, true, payload["success"])

	list, ok := payload["passes"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(map[string]interface{})
	assert.Equal(t, string(types.KindSyntax), first["kind"])
}
