package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ld-agent/ld-agent-go/pkg/depaudit"
	"github.com/ld-agent/ld-agent-go/pkg/envtable"
	"github.com/ld-agent/ld-agent-go/pkg/linker"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

// SummaryConfig holds configuration for the summary command
type SummaryConfig struct {
	Format string
}

// NewSummaryConfig creates a new SummaryConfig with default values
func NewSummaryConfig() *SummaryConfig {
	return &SummaryConfig{
		Format: "text",
	}
}

// summaryUnitCounts breaks the discovered units down by outcome.
type summaryUnitCounts struct {
	Discovered int `json:"discovered" yaml:"discovered"`
	Loaded     int `json:"loaded" yaml:"loaded"`
	Warned     int `json:"warned" yaml:"warned"`
	Failed     int `json:"failed" yaml:"failed"`
}

// summaryReport is the machine-readable shape of one link pass.
type summaryReport struct {
	SessionID string            `json:"session_id" yaml:"session_id"`
	Root      string            `json:"root" yaml:"root"`
	Duration  string            `json:"duration" yaml:"duration"`
	Units     summaryUnitCounts `json:"units" yaml:"units"`
	Symbols   map[string]int    `json:"symbols_by_category" yaml:"symbols_by_category"`
	Total     int               `json:"symbols_total" yaml:"symbols_total"`
	Env       envtable.Stats    `json:"env" yaml:"env"`
	Deps      depaudit.Stats    `json:"deps" yaml:"deps"`
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize units, symbols, env vars, and dependencies",
	Long: `Link the plugin root and print a one-screen overview: how many
units loaded, what symbols they registered, and what the combined
environment and dependency surface looks like.

Examples:
  ldagent summary
  ldagent summary --format yaml
  ldagent summary --format json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getSummaryConfigFromFlags(cmd)
		runSummaryCommand(ctx, cmd, config)
	},
}

func init() {
	defaults := NewSummaryConfig()
	summaryCmd.Flags().String("format", defaults.Format, "Output format (text, json, yaml)")
}

// getSummaryConfigFromFlags extracts summary configuration from command flags
func getSummaryConfigFromFlags(cmd *cobra.Command) *SummaryConfig {
	config := NewSummaryConfig()

	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}

	return config
}

// validateSummaryConfig validates the summary configuration
func validateSummaryConfig(config *SummaryConfig) error {
	switch config.Format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("invalid format: %s (must be 'text', 'json', or 'yaml')", config.Format)
	}
}

func buildSummaryReport(lk *linker.Linker) *summaryReport {
	snap := lk.Snapshot()
	loaded, warned, failed := snap.Session.Counts()

	return &summaryReport{
		SessionID: snap.Session.ID,
		Root:      snap.Session.Root,
		Duration:  snap.Session.Duration.Round(time.Millisecond).String(),
		Units: summaryUnitCounts{
			Discovered: len(snap.Session.Units),
			Loaded:     loaded,
			Warned:     warned,
			Failed:     failed,
		},
		Symbols: snap.Registry.CategoryCounts(),
		Total:   snap.Registry.Len(),
		Env:     snap.Env.Stats(),
		Deps:    snap.Deps.Stats(),
	}
}

func runSummaryCommand(ctx context.Context, cmd *cobra.Command, config *SummaryConfig) {
	if err := validateSummaryConfig(config); err != nil {
		presenter.Error(err, "invalid summary configuration")
		os.Exit(1)
	}

	lk, err := openLinker(ctx, cmd, true)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	report := buildSummaryReport(lk)

	switch config.Format {
	case "json":
		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to marshal JSON output")
			os.Exit(1)
		}
		fmt.Println(string(output))
	case "yaml":
		output, err := yaml.Marshal(report)
		if err != nil {
			presenter.Error(err, "failed to marshal YAML output")
			os.Exit(1)
		}
		presenter.Info(string(output))
	default:
		printSummaryText(lk, report)
	}
}

func printSummaryText(lk *linker.Linker, report *summaryReport) {
	presenter.Section(fmt.Sprintf("Link session %s", report.SessionID))
	fmt.Printf("Root: %s\n", report.Root)
	fmt.Printf("Duration: %s\n", report.Duration)
	fmt.Printf("Units: %d discovered, %d loaded, %d warned, %d failed\n",
		report.Units.Discovered, report.Units.Loaded, report.Units.Warned, report.Units.Failed)

	presenter.Section(fmt.Sprintf("Symbols (%d)", report.Total))
	for _, category := range lk.Registry().Categories() {
		fmt.Printf("  %s: %d\n", category, report.Symbols[category])
	}
	if conflicts := lk.Registry().Conflicts(); len(conflicts) > 0 {
		presenter.Warning(fmt.Sprintf("%d qualified names were claimed more than once", len(conflicts)))
	}

	presenter.Section("Environment")
	fmt.Printf("  %d variables (%d required, %d conflicting)\n",
		report.Env.Total, report.Env.Required, report.Env.Conflicts)

	presenter.Section("Dependencies")
	fmt.Printf("  %d requirements (%d conflicting, %d unparsable)\n",
		report.Deps.Requirements, report.Deps.Conflicts, report.Deps.Invalid)

	for _, unit := range lk.Session().Units {
		if unit.LoadErr != nil {
			presenter.Warning(fmt.Sprintf("%s failed to load: %v", unit.ID, unit.LoadErr))
		}
	}
}
