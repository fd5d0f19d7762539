package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/presenter"
	"github.com/ld-agent/ld-agent-go/pkg/tui"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse linked units and symbols interactively",
	Long: `Link the plugin root and open a terminal browser over the result.

Type to filter, Tab to switch between symbols and units, Ctrl+R to
relink without leaving the browser. Requires an interactive terminal.

Examples:
  ldagent browse
  ldagent browse --plugins-dir ./plugins`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		runBrowseCommand(ctx, cmd)
	},
}

func runBrowseCommand(ctx context.Context, cmd *cobra.Command) {
	lk, err := openLinker(ctx, cmd, true)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	if err := tui.StartBrowser(ctx, lk); err != nil {
		presenter.Error(err, "browser failed")
		os.Exit(1)
	}
}
