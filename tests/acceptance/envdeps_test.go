package acceptance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	dir, root := pluginRoot(t)
	envPath := filepath.Join(dir, ".env.example")

	// Generate the template from the units' declarations.
	output, err := runLdagent(t, dir, "generate", "--plugins-dir", root, "--no-cache", "--output", envPath)
	require.NoError(t, err, "generate failed: %s", output)

	template, err := os.ReadFile(envPath)
	require.NoError(t, err)
	assert.Contains(t, string(template), "# REQUIRED")
	assert.Contains(t, string(template), "TIDE_TOKEN=")

	// The untouched template leaves the required variable empty, so
	// validation against it must fail.
	output, err = runLdagent(t, dir, "validate", "--plugins-dir", root, "--no-cache", "--env-file", envPath)
	require.Error(t, err)
	assert.Contains(t, output, "TIDE_TOKEN")

	// Filling it in turns validation green.
	filled := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(filled, []byte("TIDE_TOKEN=abc123\n"), 0o644))
	output, err = runLdagent(t, dir, "validate", "--plugins-dir", root, "--no-cache", "--env-file", filled)
	require.NoError(t, err, "validate failed: %s", output)

	// An unchanged template passes --check; editing it causes drift.
	output, err = runLdagent(t, dir, "generate", "--plugins-dir", root, "--no-cache", "--output", envPath, "--check")
	require.NoError(t, err, "generate --check failed: %s", output)

	require.NoError(t, os.WriteFile(envPath, append(template, []byte("EXTRA=1\n")...), 0o644))
	output, err = runLdagent(t, dir, "generate", "--plugins-dir", root, "--no-cache", "--output", envPath, "--check")
	require.Error(t, err)
	assert.Contains(t, output, "EXTRA=1")
}

func TestCheckCommand(t *testing.T) {
	dir, root := pluginRoot(t)

	// A matching inventory satisfies the declared curl>=7.0.
	output, err := runLdagent(t, dir, "check", "--plugins-dir", root, "--no-cache",
		"--inventory", "curl=8.4.0")
	require.NoError(t, err, "check failed: %s", output)
	assert.Contains(t, output, "ok")

	// An older curl violates the specifier.
	output, err = runLdagent(t, dir, "check", "--plugins-dir", root, "--no-cache",
		"--inventory", "curl=6.9.0")
	require.Error(t, err)
	assert.Contains(t, output, "mismatch")

	// Without curl at all the requirement is missing.
	output, err = runLdagent(t, dir, "check", "--plugins-dir", root, "--no-cache",
		"--inventory", "jq=1.7")
	require.Error(t, err)
	assert.Contains(t, output, "missing")
}

func TestCheckGenerateManifest(t *testing.T) {
	dir, root := pluginRoot(t)

	output, err := runLdagentStdout(t, dir, "check", "--plugins-dir", root, "--no-cache", "--generate")
	require.NoError(t, err, "check --generate failed: %s", output)
	assert.Contains(t, output, "curl>=7.0")
}
