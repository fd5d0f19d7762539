package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/envtable"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

// ValidateConfig holds configuration for the validate command
type ValidateConfig struct {
	EnvFile string
	JSON    bool
}

// NewValidateConfig creates a new ValidateConfig with default values
func NewValidateConfig() *ValidateConfig {
	return &ValidateConfig{}
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check required environment variables are set",
	Long: `Link the plugin root and verify that every required environment
variable the units declare is present and non-empty.

By default the process environment is checked. Pass --env-file to
validate a dotenv file instead, without touching the environment.

Exits nonzero when anything required is missing.

Examples:
  ldagent validate
  ldagent validate --env-file deploy/.env
  ldagent validate --json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getValidateConfigFromFlags(cmd)
		runValidateCommand(ctx, cmd, config)
	},
}

func init() {
	validateCmd.Flags().String("env-file", "", "Validate a dotenv file instead of the process environment")
	validateCmd.Flags().Bool("json", false, "Output as JSON")
}

// getValidateConfigFromFlags extracts validate configuration from command flags
func getValidateConfigFromFlags(cmd *cobra.Command) *ValidateConfig {
	config := NewValidateConfig()

	if envFile, err := cmd.Flags().GetString("env-file"); err == nil {
		config.EnvFile = envFile
	}
	if jsonOutput, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = jsonOutput
	}

	return config
}

func runValidateCommand(ctx context.Context, cmd *cobra.Command, config *ValidateConfig) {
	env := envtable.OSEnviron()
	source := "process environment"
	if config.EnvFile != "" {
		fileEnv, err := envtable.ReadEnvFile(config.EnvFile)
		if err != nil {
			presenter.Error(err, "failed to read env file")
			os.Exit(1)
		}
		env = fileEnv
		source = config.EnvFile
	}

	lk, err := openLinker(ctx, cmd, true)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	table := lk.EnvTable()
	missing := table.MissingRequired(env)
	stats := table.Stats()

	if config.JSON {
		if missing == nil {
			missing = []*envtable.Var{}
		}
		output, err := json.MarshalIndent(map[string]any{
			"ok":      len(missing) == 0,
			"source":  source,
			"stats":   stats,
			"missing": missing,
		}, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to marshal JSON output")
			os.Exit(1)
		}
		fmt.Println(string(output))
		if len(missing) > 0 {
			os.Exit(1)
		}
		return
	}

	if len(missing) == 0 {
		presenter.Success(fmt.Sprintf("All %d required variables are set (%s, %d declared in total)",
			stats.Required, source, stats.Total))
		return
	}

	presenter.Section(fmt.Sprintf("Missing required variables (%d)", len(missing)))
	for _, v := range missing {
		fmt.Printf("  %s  declared by %s\n", v.Name, strings.Join(v.Owners, ", "))
		if v.Description != "" {
			fmt.Printf("      %s\n", v.Description)
		}
	}
	presenter.Error(table.RequireAll(env), "environment validation failed")
	os.Exit(1)
}
