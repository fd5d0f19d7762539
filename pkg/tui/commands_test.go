package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantCommand Command
		wantArgs    string
		wantIsCmd   bool
	}{
		{
			name:        "category with argument",
			input:       "/category tools",
			wantCommand: CommandCategory,
			wantArgs:    "tools",
			wantIsCmd:   true,
		},
		{
			name:        "reload without argument",
			input:       "/reload",
			wantCommand: CommandReload,
			wantArgs:    "",
			wantIsCmd:   true,
		},
		{
			name:        "leading whitespace",
			input:       "  /units  ",
			wantCommand: CommandUnits,
			wantArgs:    "",
			wantIsCmd:   true,
		},
		{
			name:      "unknown command",
			input:     "/frobnicate",
			wantIsCmd: false,
		},
		{
			name:      "plain filter text",
			input:     "tide ping",
			wantIsCmd: false,
		},
		{
			name:      "empty input",
			input:     "",
			wantIsCmd: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			command, args, isCommand := ParseCommand(tt.input)
			assert.Equal(t, tt.wantIsCmd, isCommand)
			if tt.wantIsCmd {
				assert.Equal(t, tt.wantCommand, command)
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestGetAvailableCommands(t *testing.T) {
	commands := GetAvailableCommands()
	assert.Contains(t, commands, "/symbols")
	assert.Contains(t, commands, "/units")
	assert.Contains(t, commands, "/reload")

	// Every advertised command parses.
	for _, cmd := range commands {
		_, _, ok := ParseCommand(cmd)
		assert.True(t, ok, "command %s should parse", cmd)
	}
}

func TestGetHelpText(t *testing.T) {
	help := GetHelpText()
	assert.Contains(t, help, "Ctrl+C (twice)")
	assert.Contains(t, help, "/category")
	assert.Contains(t, help, "Ctrl+R")
}

func TestIsCommandComplete(t *testing.T) {
	commands := GetAvailableCommands()
	assert.True(t, IsCommandComplete("/reload", commands))
	assert.True(t, IsCommandComplete("/category tools", commands))
	assert.False(t, IsCommandComplete("/cat", commands))
	assert.False(t, IsCommandComplete("tide", commands))
}
