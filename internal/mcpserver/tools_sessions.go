package mcpserver

import (
	"context"

	"interactive-gym/internal/game"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSessionTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_sessions",
			mcp.WithDescription("List live game sessions ordered by slot"),
			mcp.WithString("status", mcp.Description("Optional filter: inactive|active|reset_pending|done")),
			mcp.WithNumber("limit", mcp.Description("Page size, default 50, max 500")),
			mcp.WithNumber("offset", mcp.Description("Page offset, default 0")),
		),
		s.handleListSessions,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_session",
			mcp.WithDescription("Get one session snapshot: roster, episode counters and rewards"),
			mcp.WithString("session_uuid", mcp.Required(), mcp.Description("Session uuid")),
		),
		s.handleGetSession,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"server_capacity",
			mcp.WithDescription("Slot usage, lobby and active game counts"),
		),
		s.handleServerCapacity,
	)
}

func (s *Server) handleListSessions(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := request.GetString("status", "")
	if !isAllowedStatus(status) {
		return toolError("invalid_request", "status must be inactive|active|reset_pending|done"), nil
	}
	limit := request.GetInt("limit", defaultPageLimit)
	offset := request.GetInt("offset", 0)
	limit, offset = clampPagination(limit, offset, maxPageLimit)

	all := s.coord.Sessions()
	items := make([]game.Snapshot, 0, len(all))
	for _, snap := range all {
		if status != "" && snap.Status.String() != status {
			continue
		}
		items = append(items, snap)
	}
	total := len(items)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return toolResult(map[string]any{
		"items":  items[offset:end],
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}), nil
}

func (s *Server) handleGetSession(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uuid, err := request.RequireString("session_uuid")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	snap, ok := s.coord.Snapshot(uuid)
	if !ok {
		return toolError("session_not_found", errSessionNotFound.Error()), nil
	}
	return toolResult(snap), nil
}

func (s *Server) handleServerCapacity(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.coord.Capacity()), nil
}
