package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/docs"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

// DocsConfig holds configuration for the docs command
type DocsConfig struct {
	Output string
}

// NewDocsConfig creates a new DocsConfig with default values
func NewDocsConfig() *DocsConfig {
	return &DocsConfig{
		Output: "docs/units",
	}
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Generate markdown documentation for linked units",
	Long: `Write one markdown page per discovered unit plus an index page.

Each page carries frontmatter with the unit's metadata, its symbol
tables grouped by category, and the environment variables it declares.
A README shipped next to a unit's entrypoint is merged in.

Examples:
  ldagent docs
  ldagent docs --output site/content/plugins`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getDocsConfigFromFlags(cmd)
		runDocsCommand(ctx, cmd, config)
	},
}

func init() {
	defaults := NewDocsConfig()
	docsCmd.Flags().StringP("output", "o", defaults.Output, "Directory to write the pages into")
}

// getDocsConfigFromFlags extracts docs configuration from command flags
func getDocsConfigFromFlags(cmd *cobra.Command) *DocsConfig {
	config := NewDocsConfig()

	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}

	return config
}

func runDocsCommand(ctx context.Context, cmd *cobra.Command, config *DocsConfig) {
	lk, err := openLinker(ctx, cmd, true)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	units := lk.Session().Units
	if len(units) == 0 {
		presenter.Warning("no units discovered, nothing to document")
		return
	}

	generator := docs.New(units)
	if err := generator.WriteAll(config.Output); err != nil {
		presenter.Error(err, "failed to write documentation")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("Wrote %d unit pages and an index to %s", len(units), config.Output))
}
