package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/linker"
	"github.com/ld-agent/ld-agent-go/pkg/logger"
	"github.com/ld-agent/ld-agent-go/pkg/mcpserver"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

// MCPConfig holds configuration for the mcp command
type MCPConfig struct {
	SSE   string
	Watch bool
}

// NewMCPConfig creates a new MCPConfig with default values
func NewMCPConfig() *MCPConfig {
	return &MCPConfig{}
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose tools-category symbols over the Model Context Protocol",
	Long: `Link the plugin root and serve its tools-category symbols as MCP
tools, input schemas included. Agent frontends connect over stdio by
default; pass --sse to listen on an address instead.

Dots in qualified names become double underscores on the MCP surface,
so tide.ping is offered as tide__ping.

Examples:
  ldagent mcp
  ldagent mcp --sse :8811
  ldagent mcp --watch`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getMCPConfigFromFlags(cmd)
		runMCPCommand(ctx, cmd, config)
	},
}

func init() {
	defaults := NewMCPConfig()
	mcpCmd.Flags().String("sse", defaults.SSE, "Serve over SSE on this address instead of stdio")
	mcpCmd.Flags().Bool("watch", defaults.Watch, "Relink and refresh the tool list when the plugin root changes")
}

// getMCPConfigFromFlags extracts mcp configuration from command flags
func getMCPConfigFromFlags(cmd *cobra.Command) *MCPConfig {
	config := NewMCPConfig()

	if sse, err := cmd.Flags().GetString("sse"); err == nil {
		config.SSE = sse
	}
	if watch, err := cmd.Flags().GetBool("watch"); err == nil {
		config.Watch = watch
	}

	return config
}

func runMCPCommand(ctx context.Context, cmd *cobra.Command, config *MCPConfig) {
	stdio := config.SSE == ""
	if stdio {
		// Stdout carries the protocol; everything else goes to stderr.
		logger.SetLogOutput(os.Stderr)
	}

	lk, err := openLinker(ctx, cmd, false)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	server := mcpserver.NewServer(lk)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if config.Watch {
		go func() {
			watchOpts := linker.WatchOptions{
				OnReload: func(snap *linker.Snapshot) {
					server.Refresh(ctx)
					logger.G(ctx).WithField("tools", len(server.Tools())).Info("MCP tool list refreshed after relink")
				},
			}
			if err := lk.Watch(ctx, watchOpts); err != nil && ctx.Err() == nil {
				logger.G(ctx).WithError(err).Error("plugin watcher stopped")
			}
		}()
	}

	if stdio {
		logger.G(ctx).WithField("tools", len(server.Tools())).Info("MCP server listening on stdio")
		if err := server.ServeStdio(ctx); err != nil {
			presenter.Error(err, "MCP server failed")
			os.Exit(1)
		}
		return
	}

	presenter.Success(fmt.Sprintf("MCP server starting on %s (%d tools)", config.SSE, len(server.Tools())))
	presenter.Info("Press Ctrl+C to stop the server")
	if err := server.ServeSSE(ctx, config.SSE); err != nil {
		presenter.Error(err, "MCP server failed")
		os.Exit(1)
	}
	presenter.Info("MCP server stopped")
}
