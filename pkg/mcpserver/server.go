// Package mcpserver exposes the registry's tools-category symbols as
// MCP tools. Agent frontends speaking the Model Context Protocol get
// the same capabilities an embedding program reaches through the
// registry, schemas included.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"

	"github.com/ld-agent/ld-agent-go/pkg/linker"
	"github.com/ld-agent/ld-agent-go/pkg/logger"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
	"github.com/ld-agent/ld-agent-go/pkg/version"
)

// Server bridges a Linker to MCP clients over stdio or SSE.
type Server struct {
	lk  *linker.Linker
	mcp *server.MCPServer

	mu sync.Mutex
	// names maps MCP tool names back to qualified symbol names. MCP
	// tool names cannot contain dots, so "tide.ping" is served as
	// "tide__ping".
	names map[string]string
}

// NewServer builds an MCP server advertising the linker's current
// tools-category symbols.
func NewServer(lk *linker.Linker) *Server {
	s := &Server{
		lk:    lk,
		names: make(map[string]string),
	}
	s.mcp = server.NewMCPServer("ldagent", version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Each tool is a capability symbol linked from executable plugin units; calls run the unit's entrypoint as a subprocess."),
	)
	s.Refresh(context.Background())
	return s
}

func toolName(qualifiedName string) string {
	return strings.ReplaceAll(qualifiedName, ".", "__")
}

// Refresh reconciles the advertised tool list with the registry. Call
// it after a relink so connected clients see added and removed symbols;
// the tool capability announces list changes for us.
func (s *Server) Refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.G(ctx)

	if len(s.names) > 0 {
		stale := make([]string, 0, len(s.names))
		for name := range s.names {
			stale = append(stale, name)
		}
		s.mcp.DeleteTools(stale...)
		s.names = make(map[string]string)
	}

	count := 0
	for desc := range s.lk.Registry().Symbols(captypes.CategoryTools) {
		name := toolName(desc.QualifiedName)
		if prior, ok := s.names[name]; ok {
			log.WithField("tool", name).
				WithField("symbol", desc.QualifiedName).
				WithField("conflicts_with", prior).
				Warn("MCP tool name collision, skipping symbol")
			continue
		}

		tool := mcp.NewToolWithRawSchema(name, desc.Description, rawSchema(desc))
		s.mcp.AddTool(tool, s.invokeHandler(desc.QualifiedName))
		s.names[name] = desc.QualifiedName
		count++
	}

	log.WithField("tools", count).Debug("MCP tool list refreshed")
}

// Tools returns the current MCP tool name to qualified name mapping.
func (s *Server) Tools() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out
}

func rawSchema(desc *captypes.SymbolDescriptor) json.RawMessage {
	if desc.InputSchema != nil {
		if b, err := json.Marshal(desc.InputSchema); err == nil {
			return b
		}
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (s *Server) invokeHandler(qualifiedName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode arguments: %v", err)), nil
		}

		out, err := s.lk.Invoke(ctx, qualifiedName, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

// ServeStdio speaks MCP over stdin/stdout until the context is done or
// the client closes the stream.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "MCP stdio server failed")
	}
	return nil
}

// ServeSSE serves MCP over HTTP server-sent events on addr.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sse := server.NewSSEServer(s.mcp)

	errCh := make(chan error, 1)
	go func() {
		if err := sse.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "MCP SSE server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return sse.Shutdown(shutdownCtx)
}
