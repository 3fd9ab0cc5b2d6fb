// Package server exposes the context kernel over MCP stdio. Eleven tools
// map one-to-one onto kernel operations; the server layer only parses
// arguments, resolves the caller's session and shapes JSON payloads.
package server

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/lachlan-jones5/oh-my-opencode/internal/kernel"
	"github.com/lachlan-jones5/oh-my-opencode/internal/logging"
)

// Server wires the kernel to an MCP server instance.
type Server struct {
	kernel *kernel.Kernel
	mcp    *mcpserver.MCPServer
}

// New builds the MCP server and registers every tool.
func New(k *kernel.Kernel, version string) *Server {
	s := &Server{
		kernel: k,
		mcp: mcpserver.NewMCPServer(
			"context-kernel",
			version,
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// ServeStdio serves MCP over stdin/stdout until ctx is done. Nothing else
// in the process may write to stdout while this runs.
func (s *Server) ServeStdio(ctx context.Context) error {
	logging.Server("serving MCP over stdio")
	return mcpserver.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// toolFunc is a session-resolved tool handler. Handlers always return a
// JSON payload result; operation failures are payloads, not protocol
// errors.
type toolFunc func(ctx context.Context, session string, args map[string]any) *mcp.CallToolResult

// tool adapts a toolFunc to the MCP handler signature, adding a request
// id and dispatch logging around every call.
func (s *Server) tool(name string, fn toolFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rid := uuid.NewString()[:8]
		args := req.GetArguments()
		session := resolveSession(args)

		logging.ServerDebug("[%s] %s session=%s", rid, name, session)
		start := time.Now()
		res := fn(ctx, session, args)
		logging.ServerDebug("[%s] %s completed in %s", rid, name, time.Since(start))
		return res, nil
	}
}
