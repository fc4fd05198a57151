package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"interactive-gym/internal/arena"
	"interactive-gym/internal/game"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Coordinator is the read side of the session core.
type Coordinator interface {
	Sessions() []game.Snapshot
	Snapshot(sessionUUID string) (game.Snapshot, bool)
	Capacity() arena.Capacity
}

type Server struct {
	coord Coordinator

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(coord Coordinator, version string) *Server {
	if version == "" {
		version = "dev"
	}
	mcpSrv := server.NewMCPServer(
		"interactive-gym",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		coord:      coord,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerSessionTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"session://{session_uuid}/snapshot",
			"session_snapshot",
			mcp.WithTemplateDescription("Live snapshot of one game session"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			raw := request.Params.URI
			if !strings.HasPrefix(raw, "session://") || !strings.HasSuffix(raw, "/snapshot") {
				return nil, nil
			}
			uuid := strings.TrimSuffix(strings.TrimPrefix(raw, "session://"), "/snapshot")
			if uuid == "" {
				return nil, nil
			}
			snap, ok := s.coord.Snapshot(uuid)
			if !ok {
				return nil, errSessionNotFound
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      raw,
					MIMEType: "application/json",
					Text:     string(payload),
				},
			}, nil
		},
	)
}
