package tui

import (
	"strings"
)

// Command represents a browser command
type Command string

const (
	CommandHelp     Command = "help"
	CommandSymbols  Command = "symbols"
	CommandUnits    Command = "units"
	CommandCategory Command = "category"
	CommandReload   Command = "reload"
	CommandQuit     Command = "quit"
)

// GetAvailableCommands returns the list of available slash commands
func GetAvailableCommands() []string {
	return []string{
		"/symbols",
		"/units",
		"/category",
		"/reload",
		"/help",
		"/quit",
	}
}

// ParseCommand parses a user input and returns the command, arguments,
// and whether it's a valid command
func ParseCommand(input string) (command Command, args string, isCommand bool) {
	input = strings.TrimSpace(input)

	if !strings.HasPrefix(input, "/") {
		return "", "", false
	}

	parts := strings.SplitN(input, " ", 2)
	commandName := strings.TrimPrefix(parts[0], "/")

	var arguments string
	if len(parts) > 1 {
		arguments = parts[1]
	}

	validCommands := map[string]bool{
		string(CommandHelp):     true,
		string(CommandSymbols):  true,
		string(CommandUnits):    true,
		string(CommandCategory): true,
		string(CommandReload):   true,
		string(CommandQuit):     true,
	}

	if !validCommands[commandName] {
		return "", "", false
	}

	return Command(commandName), arguments, true
}

// GetHelpText returns the help text for keyboard shortcuts and commands
func GetHelpText() string {
	return `╔══════════════════════════════════════════════════════════╗
║                   LDAGENT BROWSER HELP                   ║
╚══════════════════════════════════════════════════════════╝

KEYBOARD SHORTCUTS
   Ctrl+C (twice)    → Quit the browser
   Tab               → Toggle symbols/units view
   Up/Down           → Move the selection
   PageUp/PageDown   → Scroll the detail pane
   Ctrl+R            → Relink the plugin root
   Ctrl+H            → Toggle this help
   Esc               → Clear the filter

AVAILABLE COMMANDS
   /symbols                   → Show registered symbols
   /units                     → Show discovered units
   /category [name]           → Filter symbols by export category
   /reload                    → Relink the plugin root
   /help                      → Show this help message
   /quit                      → Quit the browser

TIP: Anything you type that does not start with "/" filters the list!`
}

// IsCommandComplete checks if the current input is a complete command
// (i.e., starts with a known command prefix)
func IsCommandComplete(input string, commands []string) bool {
	for _, cmd := range commands {
		if strings.HasPrefix(input, cmd) {
			return true
		}
	}
	return false
}
