package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ld-agent/ld-agent-go/pkg/logger"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("LDAGENT")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.ldagent")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "ldagent",
	Short: "Link executable capability units into a queryable registry",
	Long: `ldagent discovers executable plugin units under a plugin root, runs
their describe step, validates the self-descriptions, and links the
surviving symbols into a registry you can list, call, serve over HTTP
or MCP, browse, and document.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if level := viper.GetString("log_level"); level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				fmt.Fprintf(os.Stderr, "invalid log level %q: %v\n", level, err)
			}
		}
		logger.SetLogFormat(viper.GetString("log_format"))
	},
	// Default behavior is to show help if no arguments are provided
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	// Add global flags
	rootCmd.PersistentFlags().String("plugins-dir", "", "Plugin root to link (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Bypass the describe cache for this run")

	// Bind flags to viper
	viper.BindPFlag("plugins_dir", rootCmd.PersistentFlags().Lookup("plugins-dir"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	ctx := context.Background()
	shutdown, err := initTracing(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize tracing: %v\n", err)
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	// Add subcommands
	rootCmd.AddCommand(withTracing(listCmd))
	rootCmd.AddCommand(withTracing(callCmd))
	rootCmd.AddCommand(withTracing(generateCmd))
	rootCmd.AddCommand(withTracing(validateCmd))
	rootCmd.AddCommand(withTracing(checkCmd))
	rootCmd.AddCommand(withTracing(summaryCmd))
	rootCmd.AddCommand(withTracing(docsCmd))
	rootCmd.AddCommand(withTracing(serveCmd))
	rootCmd.AddCommand(withTracing(mcpCmd))
	rootCmd.AddCommand(withTracing(browseCmd))
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)

	// Execute
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
