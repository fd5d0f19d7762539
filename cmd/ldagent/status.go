package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/httpapi"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a serve instance is running",
	Long: `Check the recorded run info for an ldagent serve instance and
report whether that process is still alive.

Exits nonzero when no server is running.`,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		runStatusCommand(jsonOutput)
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStatusCommand(jsonOutput bool) {
	store, err := httpapi.NewRunInfoStore()
	if err != nil {
		presenter.Error(err, "failed to open run info store")
		os.Exit(1)
	}

	info, err := store.Read()
	if err != nil {
		presenter.Error(err, "failed to read run info")
		os.Exit(1)
	}

	running := httpapi.Alive(info)

	if jsonOutput {
		payload := map[string]any{"running": running}
		if info != nil {
			payload["info"] = info
		}
		output, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to marshal JSON output")
			os.Exit(1)
		}
		fmt.Println(string(output))
		if !running {
			os.Exit(1)
		}
		return
	}

	if !running {
		if info != nil {
			presenter.Warning(fmt.Sprintf("no server running (stale run info from pid %d)", info.PID))
		} else {
			presenter.Warning("no server running")
		}
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("server running at http://%s", info.Address))
	fmt.Printf("  PID: %d\n", info.PID)
	fmt.Printf("  Plugins: %s\n", info.PluginsDir)
	fmt.Printf("  Version: %s\n", info.Version)
	fmt.Printf("  Uptime: %s\n", time.Since(info.StartedAt).Round(time.Second))
}
