// Package mcp exposes corpus search and grounded answers as MCP tools over
// stdio, for assistants that run next to an operator.
package mcp

import (
	"context"
	"errors"
	"io"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/corpus-rag/internal/core/domain"
	"github.com/kirillkom/corpus-rag/internal/core/ports"
)

const Version = "0.1.0"

var ErrMissingQueryService = errors.New("mcp: query service is required")

// Server answers tool calls as a single fixed principal; the process that
// starts it is responsible for choosing that identity.
type Server struct {
	query     ports.QueryService
	principal domain.Principal
	client    domain.ClientInfo
	server    *server.MCPServer
}

func NewServer(query ports.QueryService, principal domain.Principal) (*Server, error) {
	if query == nil {
		return nil, ErrMissingQueryService
	}
	s := &Server{
		query:     query,
		principal: principal,
		client:    domain.ClientInfo{IPAddress: "stdio", UserAgent: "mcp/" + Version},
		server:    server.NewMCPServer("corpus-rag", Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

// Serve blocks until ctx is cancelled or the input stream closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.server).Listen(ctx, in, out)
}
