package acceptance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pluginRoot builds a throwaway plugin root with one working unit and
// one that fails its describe step.
func pluginRoot(t *testing.T) (dir, root string) {
	t.Helper()
	dir = t.TempDir()
	root = filepath.Join(dir, "plugins")
	require.NoError(t, os.MkdirAll(root, 0o755))
	writeUnit(t, root, "tide.sh", tideScript)
	writeUnit(t, root, "broken", "#!/bin/bash\nexit 3\n")
	return dir, root
}

func TestListSymbols(t *testing.T) {
	dir, root := pluginRoot(t)

	output, err := runLdagentStdout(t, dir, "list", "--plugins-dir", root, "--no-cache", "--format", "json")
	require.NoError(t, err, "list failed: %s", output)

	// Under --format json stdout is nothing but the array.
	var symbols []map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &symbols), "output: %s", output)
	require.Len(t, symbols, 1)
	assert.Equal(t, "tide.ping", symbols[0]["qualified_name"])
	assert.Equal(t, "tools", symbols[0]["category"])
}

func TestListUnits(t *testing.T) {
	dir, root := pluginRoot(t)

	output, err := runLdagent(t, dir, "list", "--units", "--plugins-dir", root, "--no-cache")
	require.NoError(t, err, "list --units failed: %s", output)

	assert.Contains(t, output, "tide")
	assert.Contains(t, output, "loaded")
	assert.Contains(t, output, "broken")
	assert.Contains(t, output, "failed")
}

func TestCallSymbol(t *testing.T) {
	dir, root := pluginRoot(t)

	output, err := runLdagentStdout(t, dir, "call", "tide.ping",
		"--plugins-dir", root, "--no-cache", "--json",
		"--args", `{"host": "reef"}`)
	require.NoError(t, err, "call failed: %s", output)

	// The unit echoes the symbol name and arguments back.
	assert.Contains(t, output, `"symbol": "ping"`)
	assert.Contains(t, output, `"host": "reef"`)
}

func TestCallRejectsBadArguments(t *testing.T) {
	dir, root := pluginRoot(t)

	// host is required, so an empty object must fail schema validation
	// before any subprocess is spawned.
	output, err := runLdagent(t, dir, "call", "tide.ping",
		"--plugins-dir", root, "--no-cache", "--args", `{}`)
	require.Error(t, err)
	assert.Contains(t, output, "schema")
}

func TestSummaryCommand(t *testing.T) {
	dir, root := pluginRoot(t)

	output, err := runLdagentStdout(t, dir, "summary", "--plugins-dir", root, "--no-cache", "--format", "yaml")
	require.NoError(t, err, "summary failed: %s", output)

	assert.Contains(t, output, "loaded: 1")
	assert.Contains(t, output, "failed: 1")
	assert.Contains(t, output, "symbols_total: 1")
}

func TestDocsCommand(t *testing.T) {
	dir, root := pluginRoot(t)
	outDir := filepath.Join(dir, "docs")

	output, err := runLdagent(t, dir, "docs", "--plugins-dir", root, "--no-cache", "--output", outDir)
	require.NoError(t, err, "docs failed: %s", output)

	page, err := os.ReadFile(filepath.Join(outDir, "tide.md"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "tide-tools")
	assert.Contains(t, string(page), "ping")

	index, err := os.ReadFile(filepath.Join(outDir, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "tide")
}
