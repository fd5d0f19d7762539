package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aymanbagabas/go-udiff"
	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

// GenerateConfig holds configuration for the generate command
type GenerateConfig struct {
	Output string
	Check  bool
}

// NewGenerateConfig creates a new GenerateConfig with default values
func NewGenerateConfig() *GenerateConfig {
	return &GenerateConfig{
		Output: ".env.example",
	}
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a .env template from linked units",
	Long: `Aggregate the environment variables every linked unit declares and
write them out as a .env template, grouped by the unit that declares
them first.

With --check nothing is written: the template is diffed against the
existing file and the command exits nonzero when they drift apart.

Examples:
  ldagent generate
  ldagent generate --output deploy/.env.example
  ldagent generate --check`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getGenerateConfigFromFlags(cmd)
		runGenerateCommand(ctx, cmd, config)
	},
}

func init() {
	defaults := NewGenerateConfig()
	generateCmd.Flags().StringP("output", "o", defaults.Output, "Path of the template to write")
	generateCmd.Flags().Bool("check", defaults.Check, "Diff against the existing template instead of writing")
}

// getGenerateConfigFromFlags extracts generate configuration from command flags
func getGenerateConfigFromFlags(cmd *cobra.Command) *GenerateConfig {
	config := NewGenerateConfig()

	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}
	if check, err := cmd.Flags().GetBool("check"); err == nil {
		config.Check = check
	}

	return config
}

func runGenerateCommand(ctx context.Context, cmd *cobra.Command, config *GenerateConfig) {
	lk, err := openLinker(ctx, cmd, true)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	table := lk.EnvTable()
	template := table.Template()
	stats := table.Stats()

	if config.Check {
		existing, err := os.ReadFile(config.Output)
		if err != nil {
			if os.IsNotExist(err) {
				presenter.Error(fmt.Errorf("%s does not exist", config.Output), "nothing to check against")
			} else {
				presenter.Error(err, "failed to read existing template")
			}
			os.Exit(1)
		}

		if string(existing) == template {
			presenter.Success(fmt.Sprintf("%s is up to date (%d variables, %d required)",
				config.Output, stats.Total, stats.Required))
			return
		}

		diff := udiff.Unified(config.Output, config.Output+" (generated)", string(existing), template)
		fmt.Print(diff)
		presenter.Error(fmt.Errorf("%s is out of date", config.Output), "template drift")
		os.Exit(1)
	}

	if err := os.WriteFile(config.Output, []byte(template), 0o644); err != nil {
		presenter.Error(err, "failed to write template")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Wrote %s (%d variables, %d required)",
		config.Output, stats.Total, stats.Required))
	if stats.Conflicts > 0 {
		presenter.Warning(fmt.Sprintf("%d variables are declared with conflicting requirements", stats.Conflicts))
	}
}
