package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/depaudit"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

// CheckConfig holds configuration for the check command
type CheckConfig struct {
	Inventory     []string
	InventoryFile string
	Generate      bool
	JSON          bool
}

// NewCheckConfig creates a new CheckConfig with default values
func NewCheckConfig() *CheckConfig {
	return &CheckConfig{}
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Audit the external dependencies units declare",
	Long: `Consolidate the dependency specifiers of every unit and audit them.

Without an inventory the command lists the consolidated requirements
and flags conflicting specifiers. Provide what is actually installed
with repeated --inventory name=version pairs or an --inventory-file,
and each requirement is checked against it.

With --generate the consolidated manifest is printed instead, one
specifier per line, ready to feed an installer.

Examples:
  ldagent check
  ldagent check --inventory curl=8.4.0 --inventory jq=1.7
  ldagent check --inventory-file installed.txt
  ldagent check --generate > requirements.txt`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getCheckConfigFromFlags(cmd)
		runCheckCommand(ctx, cmd, config)
	},
}

func init() {
	checkCmd.Flags().StringArray("inventory", nil, "Installed tool as name=version (repeatable)")
	checkCmd.Flags().String("inventory-file", "", "File listing installed tools, one per line")
	checkCmd.Flags().Bool("generate", false, "Print the consolidated manifest and exit")
	checkCmd.Flags().Bool("json", false, "Output as JSON")
}

// getCheckConfigFromFlags extracts check configuration from command flags
func getCheckConfigFromFlags(cmd *cobra.Command) *CheckConfig {
	config := NewCheckConfig()

	if inventory, err := cmd.Flags().GetStringArray("inventory"); err == nil {
		config.Inventory = inventory
	}
	if file, err := cmd.Flags().GetString("inventory-file"); err == nil {
		config.InventoryFile = file
	}
	if generate, err := cmd.Flags().GetBool("generate"); err == nil {
		config.Generate = generate
	}
	if jsonOutput, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = jsonOutput
	}

	return config
}

// parseInventoryPairs turns --inventory values into an installed map.
// Accepts name=version, name==version, and bare names.
func parseInventoryPairs(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	inventory := map[string]string{}
	for _, pair := range pairs {
		name, version := pair, ""
		if i := strings.Index(pair, "=="); i >= 0 {
			name, version = pair[:i], pair[i+2:]
		} else if i := strings.IndexByte(pair, '='); i >= 0 {
			name, version = pair[:i], pair[i+1:]
		}
		inventory[strings.TrimSpace(name)] = strings.TrimSpace(version)
	}
	return inventory
}

func runCheckCommand(ctx context.Context, cmd *cobra.Command, config *CheckConfig) {
	lk, err := openLinker(ctx, cmd, true)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	audit := lk.DepAudit()

	if config.Generate {
		fmt.Print(audit.ConsolidatedManifest())
		return
	}

	inventory := parseInventoryPairs(config.Inventory)
	if config.InventoryFile != "" {
		fromFile, err := depaudit.ReadInventory(config.InventoryFile)
		if err != nil {
			presenter.Error(err, "failed to read inventory file")
			os.Exit(1)
		}
		if inventory == nil {
			inventory = fromFile
		} else {
			for name, version := range fromFile {
				if _, ok := inventory[name]; !ok {
					inventory[name] = version
				}
			}
		}
	}

	if inventory == nil {
		reportRequirements(audit, config)
		return
	}
	reportFindings(audit, inventory, config)
}

// reportRequirements lists what the units declare, without an
// inventory to check it against.
func reportRequirements(audit *depaudit.Audit, config *CheckConfig) {
	stats := audit.Stats()
	conflicts := audit.Conflicts()

	if config.JSON {
		output, err := json.MarshalIndent(map[string]any{
			"requirements": audit.Requirements(),
			"conflicts":    conflicts,
			"stats":        stats,
		}, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to marshal JSON output")
			os.Exit(1)
		}
		fmt.Println(string(output))
		return
	}

	presenter.Section(fmt.Sprintf("Declared dependencies (%d)", stats.Requirements))
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "REQUIREMENT\tDECLARED BY")
	for _, req := range audit.Requirements() {
		fmt.Fprintf(w, "%s\t%s\n", req.Raw, strings.Join(req.Owners, ", "))
	}
	w.Flush()

	for _, conflict := range conflicts {
		presenter.Warning(fmt.Sprintf("conflicting specifiers for %s: %s",
			conflict.Name, strings.Join(conflict.Specifiers, " vs ")))
	}
	if stats.Invalid > 0 {
		presenter.Warning(fmt.Sprintf("%d specifiers could not be parsed", stats.Invalid))
	}
}

// reportFindings checks each requirement against the inventory.
func reportFindings(audit *depaudit.Audit, inventory map[string]string, config *CheckConfig) {
	findings := audit.Check(inventory)
	depaudit.SortFindings(findings)

	ok := true
	for _, f := range findings {
		if f.Status != depaudit.StatusOK {
			ok = false
			break
		}
	}

	if config.JSON {
		output, err := json.MarshalIndent(map[string]any{
			"ok":       ok,
			"findings": findings,
		}, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to marshal JSON output")
			os.Exit(1)
		}
		fmt.Println(string(output))
		if !ok {
			os.Exit(1)
		}
		return
	}

	presenter.Section(fmt.Sprintf("Dependency audit (%d requirements)", len(findings)))
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tREQUIREMENT\tINSTALLED\tDETAIL")
	for _, f := range findings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Status, f.Raw, f.Installed, f.Detail)
	}
	w.Flush()

	if !ok {
		presenter.Error(fmt.Errorf("some dependencies are missing or mismatched"), "dependency check failed")
		os.Exit(1)
	}
	presenter.Success("All declared dependencies are satisfied")
}
