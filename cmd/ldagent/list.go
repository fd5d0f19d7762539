package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/linker"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// ListConfig holds configuration for the list command
type ListConfig struct {
	Format   string
	Category string
	Units    bool
}

// NewListConfig creates a new ListConfig with default values
func NewListConfig() *ListConfig {
	return &ListConfig{
		Format: "table",
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List linked symbols or units",
	Long: `Link the plugin root and list the registered symbols.

With --units the output switches to one row per discovered unit,
including the ones that failed to load and why.

Examples:
  ldagent list
  ldagent list --category tools
  ldagent list --units
  ldagent list --format json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getListConfigFromFlags(cmd)
		runListCommand(ctx, cmd, config)
	},
}

func init() {
	defaults := NewListConfig()
	listCmd.Flags().String("format", defaults.Format, "Output format (table, json)")
	listCmd.Flags().String("category", defaults.Category, "Only show symbols in this category")
	listCmd.Flags().Bool("units", defaults.Units, "List units instead of symbols")
}

// getListConfigFromFlags extracts list configuration from command flags
func getListConfigFromFlags(cmd *cobra.Command) *ListConfig {
	config := NewListConfig()

	if format, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = format
	}
	if category, err := cmd.Flags().GetString("category"); err == nil {
		config.Category = category
	}
	if units, err := cmd.Flags().GetBool("units"); err == nil {
		config.Units = units
	}

	return config
}

// validateListConfig validates the list configuration
func validateListConfig(config *ListConfig) error {
	if config.Format != "table" && config.Format != "json" {
		return fmt.Errorf("invalid format: %s (must be 'table' or 'json')", config.Format)
	}
	return nil
}

func runListCommand(ctx context.Context, cmd *cobra.Command, config *ListConfig) {
	if err := validateListConfig(config); err != nil {
		presenter.Error(err, "invalid list configuration")
		os.Exit(1)
	}

	lk, err := openLinker(ctx, cmd, true)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	if config.Units {
		listUnits(lk.Session().Units, config)
		return
	}
	listSymbols(lk, config)
}

func listSymbols(lk *linker.Linker, config *ListConfig) {
	var categories []string
	if config.Category != "" {
		categories = []string{config.Category}
	}

	reg := lk.Registry()

	if config.Format == "json" {
		data := []map[string]any{}
		for desc := range reg.Symbols(categories...) {
			data = append(data, map[string]any{
				"qualified_name": desc.QualifiedName,
				"category":       desc.Category,
				"unit_id":        desc.UnitID,
				"description":    desc.Description,
			})
		}
		output, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to marshal JSON output")
			os.Exit(1)
		}
		fmt.Println(string(output))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "QUALIFIED NAME\tCATEGORY\tUNIT\tDESCRIPTION")
	count := 0
	for desc := range reg.Symbols(categories...) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			desc.QualifiedName, desc.Category, desc.UnitID, firstLine(desc.Description))
		count++
	}
	w.Flush()

	if count == 0 {
		presenter.Warning("no symbols registered")
	}
	fmt.Println()
	printLinkStats(lk)
}

func listUnits(units []*captypes.Unit, config *ListConfig) {
	if config.Format == "json" {
		output, err := json.MarshalIndent(units, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to marshal JSON output")
			os.Exit(1)
		}
		fmt.Println(string(output))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tKIND\tSTATE\tSYMBOLS\tDETAIL")
	for _, unit := range units {
		detail := ""
		switch {
		case unit.LoadErr != nil:
			detail = unit.LoadErr.Error()
		case unit.Info != nil:
			detail = firstLine(unit.Info.Description)
		}
		symbols := 0
		for _, decls := range unit.Exports {
			symbols += len(decls)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", unit.ID, unit.Kind, unit.State, symbols, detail)
	}
	w.Flush()

	if len(units) == 0 {
		presenter.Warning("no units discovered")
	}
}

// firstLine trims a description down to a single table cell.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 72 {
		s = s[:69] + "..."
	}
	return s
}
