package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ld-agent/ld-agent-go/pkg/httpapi"
	"github.com/ld-agent/ld-agent-go/pkg/linker"
	"github.com/ld-agent/ld-agent-go/pkg/logger"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
	"github.com/ld-agent/ld-agent-go/pkg/version"
)

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	Host  string `mapstructure:"host"`
	Port  int    `mapstructure:"port"`
	Watch bool   `mapstructure:"watch"`
}

// NewServeConfig creates a new ServeConfig with default values
func NewServeConfig() *ServeConfig {
	return &ServeConfig{
		Host: "localhost",
		Port: 8080,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registry over HTTP",
	Long: `Link the plugin root and expose it over a JSON HTTP API: units,
symbols, invocation, the environment table, the dependency audit, and
a reload endpoint.

With --watch the plugin root is watched for changes and relinked
automatically; clients always query the latest snapshot.

The server will be available at http://localhost:8080 by default.

Examples:
  ldagent serve
  ldagent serve --host 0.0.0.0 --port 9000
  ldagent serve --watch`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getServeConfigFromFlags(cmd)
		runServeCommand(ctx, cmd, config)
	},
}

func init() {
	defaults := NewServeConfig()
	serveCmd.Flags().String("host", defaults.Host, "Host to bind the API server to")
	serveCmd.Flags().Int("port", defaults.Port, "Port to bind the API server to")
	serveCmd.Flags().Bool("watch", defaults.Watch, "Relink automatically when the plugin root changes")
}

// getServeConfigFromFlags extracts serve configuration from the config
// file's serve block and command flags, flags winning.
func getServeConfigFromFlags(cmd *cobra.Command) *ServeConfig {
	config := NewServeConfig()

	if viper.IsSet("serve") {
		if err := viper.UnmarshalKey("serve", config); err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to parse serve config, using defaults")
		}
	}

	if cmd.Flags().Changed("host") {
		if host, err := cmd.Flags().GetString("host"); err == nil {
			config.Host = host
		}
	}
	if cmd.Flags().Changed("port") {
		if port, err := cmd.Flags().GetInt("port"); err == nil {
			config.Port = port
		}
	}
	if cmd.Flags().Changed("watch") {
		if watch, err := cmd.Flags().GetBool("watch"); err == nil {
			config.Watch = watch
		}
	}

	return config
}

// runServeCommand links the plugin root and starts the API server
func runServeCommand(ctx context.Context, cmd *cobra.Command, config *ServeConfig) {
	serverConfig := &httpapi.Config{
		Host: config.Host,
		Port: config.Port,
	}
	if err := serverConfig.Validate(); err != nil {
		presenter.Error(err, "invalid server configuration")
		os.Exit(1)
	}

	lk, err := openLinker(ctx, cmd, false)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	printLinkStats(lk)

	server, err := httpapi.NewServer(lk, serverConfig)
	if err != nil {
		presenter.Error(err, "failed to create API server")
		os.Exit(1)
	}

	// Record the running instance so `ldagent status` can find it.
	store, err := httpapi.NewRunInfoStore()
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to open run info store")
	} else {
		info := &httpapi.RunInfo{
			PID:        os.Getpid(),
			Address:    serverConfig.Address(),
			PluginsDir: lk.Root(),
			StartedAt:  time.Now().UTC(),
			Version:    version.Get().Version,
		}
		if err := store.Write(info); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to record run info")
		}
		defer func() {
			if err := store.Clear(); err != nil {
				logger.G(ctx).WithError(err).Warn("failed to clear run info")
			}
		}()
	}

	// Create a context that cancels on interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if config.Watch {
		go func() {
			watchOpts := linker.WatchOptions{
				OnReload: func(snap *linker.Snapshot) {
					loaded, warned, failed := snap.Session.Counts()
					logger.G(ctx).WithFields(map[string]interface{}{
						"session_id": snap.Session.ID,
						"loaded":     loaded,
						"warned":     warned,
						"failed":     failed,
						"symbols":    snap.Registry.Len(),
					}).Info("relinked after plugin change")
				},
			}
			if err := lk.Watch(ctx, watchOpts); err != nil && ctx.Err() == nil {
				logger.G(ctx).WithError(err).Error("plugin watcher stopped")
			}
		}()
		presenter.Info(fmt.Sprintf("Watching %s for changes", lk.Root()))
	}

	presenter.Success(fmt.Sprintf("API server starting on http://%s", serverConfig.Address()))
	presenter.Info("Press Ctrl+C to stop the server")

	if err := server.Start(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("API server error")
		presenter.Error(err, "API server failed")
		os.Exit(1)
	}

	presenter.Info("API server stopped")
}
