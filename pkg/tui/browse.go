package tui

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/ld-agent/ld-agent-go/pkg/linker"
)

// StartBrowser starts the TUI registry browser
func StartBrowser(ctx context.Context, lk *linker.Linker) error {
	if !isTTY() {
		return errors.New("the browser needs an interactive terminal")
	}

	// Always use the full terminal screen
	var teaOptions []tea.ProgramOption
	teaOptions = append(teaOptions, tea.WithAltScreen())

	model := NewModel(ctx, lk)

	p := tea.NewProgram(model, teaOptions...)
	result, err := p.Run()
	if err != nil {
		return errors.Wrap(err, "error running program")
	}

	// Print a final summary after leaving the alt screen.
	if model, ok := result.(Model); ok {
		snap := model.lk.Snapshot()
		loaded, warned, failed := snap.Session.Counts()
		fmt.Printf("\n\033[1;36m[%s] %d units: %d loaded, %d warned, %d failed | %d symbols\033[0m\n",
			snap.Session.Root, len(snap.Session.Units), loaded, warned, failed, snap.Registry.Len())
	}

	return nil
}

// isTTY checks if the terminal supports advanced features
func isTTY() bool {
	// Simple heuristic - if STDIN is a TTY, we assume we have good terminal support
	fileInfo, _ := os.Stdin.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
