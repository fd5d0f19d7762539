package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/linker"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

// linkerOptions assembles link options from the active configuration
// and the global flags. Inspection commands pass skipInit so linking
// for a read never fires unit init hooks.
func linkerOptions(cmd *cobra.Command, skipInit bool) linker.Options {
	opts := linker.FromViper(cmd.Context())
	if noCache, err := cmd.Flags().GetBool("no-cache"); err == nil && noCache {
		opts.CacheEnabled = false
	}
	if skipInit {
		opts.SkipInit = true
	}
	return opts
}

// openLinker runs a link pass with options derived from flags.
func openLinker(ctx context.Context, cmd *cobra.Command, skipInit bool) (*linker.Linker, error) {
	return linker.Link(ctx, linkerOptions(cmd, skipInit))
}

// printLinkStats reports the outcome of a link pass.
func printLinkStats(lk *linker.Linker) {
	snap := lk.Snapshot()
	loaded, warned, failed := snap.Session.Counts()
	presenter.Stats(&presenter.LoadStats{
		Discovered: len(snap.Session.Units),
		Loaded:     loaded,
		Warned:     warned,
		Failed:     failed,
		Symbols:    snap.Registry.Len(),
		Conflicts:  len(snap.Registry.Conflicts()),
		Duration:   snap.Session.Duration,
	})
}
