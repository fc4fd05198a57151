package mcpserver

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/game"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCoordinator struct {
	sessions []game.Snapshot
	capacity arena.Capacity
}

func (s stubCoordinator) Sessions() []game.Snapshot { return s.sessions }

func (s stubCoordinator) Snapshot(uuid string) (game.Snapshot, bool) {
	for _, snap := range s.sessions {
		if snap.UUID == uuid {
			return snap, true
		}
	}
	return game.Snapshot{}, false
}

func (s stubCoordinator) Capacity() arena.Capacity { return s.capacity }

func newStub() stubCoordinator {
	now := time.Unix(1700000000, 0).UTC()
	return stubCoordinator{
		sessions: []game.Snapshot{
			{SlotID: 0, UUID: "s-lobby", Status: game.StatusInactive, EpisodeBudget: 1, Humans: map[game.Role]string{"left": "p1"}, CreatedAt: now},
			{SlotID: 1, UUID: "s-live", Status: game.StatusActive, EpisodeNum: 1, EpisodeBudget: 2, TickNum: 40,
				Humans: map[game.Role]string{"left": "p2", "right": "p3"}, TotalRewards: map[game.Role]float64{"left": 2}, CreatedAt: now},
		},
		capacity: arena.Capacity{Max: 4, InUse: 2, Free: 2, Waiting: 1, Active: 1, Participants: 3},
	}
}

// toolClient is an initialized MCP client talking to srv over streamable HTTP.
type toolClient struct {
	t *testing.T
	c *client.Client
}

func connect(t *testing.T, srv *Server) *toolClient {
	t.Helper()
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	trans, err := transport.NewStreamableHTTP(httpSrv.URL + "/mcp")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, trans.Start(ctx))
	t.Cleanup(func() { _ = trans.Close() })

	c := client.NewClient(trans)
	_, err = c.Initialize(ctx, mcp.InitializeRequest{Params: mcp.InitializeParams{ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION}})
	require.NoError(t, err)
	return &toolClient{t: t, c: c}
}

func (tc *toolClient) toolNames() []string {
	tc.t.Helper()
	res, err := tc.c.ListTools(context.Background(), mcp.ListToolsRequest{})
	require.NoError(tc.t, err)
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	return names
}

// call invokes a tool and decodes its structured content.
func (tc *toolClient) call(name string, args map[string]any) (map[string]any, bool) {
	tc.t.Helper()
	res, err := tc.c.CallTool(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}})
	require.NoError(tc.t, err, "call %s", name)
	b, err := json.Marshal(res.StructuredContent)
	require.NoError(tc.t, err)
	var out map[string]any
	require.NoError(tc.t, json.Unmarshal(b, &out))
	return out, res.IsError
}

func (tc *toolClient) errorCode(name string, args map[string]any) string {
	tc.t.Helper()
	out, isErr := tc.call(name, args)
	require.True(tc.t, isErr, "%s succeeded: %v", name, out)
	errObj, _ := out["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestMCPServerSessionTools(t *testing.T) {
	tc := connect(t, New(newStub(), "test"))

	assert.ElementsMatch(t, []string{"list_sessions", "get_session", "server_capacity"}, tc.toolNames())

	all, isErr := tc.call("list_sessions", map[string]any{})
	require.False(t, isErr, "%v", all)
	assert.Equal(t, float64(2), all["total"])

	active, _ := tc.call("list_sessions", map[string]any{"status": "active"})
	items, _ := active["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "s-live", items[0].(map[string]any)["session_uuid"])

	snap, isErr := tc.call("get_session", map[string]any{"session_uuid": "s-live"})
	require.False(t, isErr, "%v", snap)
	assert.Equal(t, "active", snap["status"])
	assert.Equal(t, float64(40), snap["tick_num"])

	capacity, _ := tc.call("server_capacity", map[string]any{})
	assert.Equal(t, float64(2), capacity["free"])
	assert.Equal(t, float64(1), capacity["waiting"])
}

func TestMCPServerToolErrors(t *testing.T) {
	tc := connect(t, New(newStub(), ""))

	assert.Equal(t, "session_not_found", tc.errorCode("get_session", map[string]any{"session_uuid": "nope"}))
	assert.Equal(t, "invalid_request", tc.errorCode("list_sessions", map[string]any{"status": "paused"}))
}

func TestClampPagination(t *testing.T) {
	tests := []struct {
		limit, offset     int
		wantLim, wantOffs int
	}{
		{0, 0, defaultPageLimit, 0},
		{10, -3, 10, 0},
		{9000, 5, maxPageLimit, 5},
	}
	for _, tt := range tests {
		lim, off := clampPagination(tt.limit, tt.offset, maxPageLimit)
		assert.Equal(t, tt.wantLim, lim, "limit for %d", tt.limit)
		assert.Equal(t, tt.wantOffs, off, "offset for %d", tt.offset)
	}
}
