package acceptance

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// TestMain runs setup and teardown for acceptance tests
func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}

// ldagentBin returns the path of the prebuilt binary, skipping the
// test when it has not been built yet.
func ldagentBin(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "bin", "ldagent"))
	if err != nil {
		t.Fatalf("failed to resolve binary path: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Skip("bin/ldagent not built, run `go build -o bin/ldagent ./cmd/ldagent` first")
	}
	return path
}

// runLdagent executes the binary with an isolated base path so tests
// never touch the developer's ~/.ldagent. Returns combined output.
func runLdagent(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(ldagentBin(t), args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LDAGENT_BASE_PATH="+filepath.Join(dir, ".ldagent"))
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// runLdagentStdout is like runLdagent but captures stdout alone, so
// machine-readable output can be parsed without log lines mixed in.
func runLdagentStdout(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(ldagentBin(t), args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "LDAGENT_BASE_PATH="+filepath.Join(dir, ".ldagent"))
	out, err := cmd.Output()
	return string(out), err
}

// writeUnit drops an executable single-file unit into dir.
func writeUnit(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write unit %s: %v", name, err)
	}
	return path
}

// tideScript is a complete single-file unit: it answers describe with
// a static payload and echoes its input back on call.
const tideScript = `#!/bin/bash
case "$1" in
  describe)
    cat <<'PAYLOAD'
{
  "module_info": {
    "name": "tide-tools",
    "description": "Tide lookup helpers for the acceptance suite",
    "author": "Acceptance Suite",
    "version": "1.2.0",
    "platform": "any",
    "runtime_requires": ">=0.0.1",
    "dependencies": ["curl>=7.0"],
    "environment_variables": {
      "TIDE_TOKEN": {"description": "API token for the tide service", "default": "", "required": true}
    }
  },
  "module_exports": {
    "tools": [
      {
        "name": "ping",
        "description": "Answer with a pong.",
        "parameters": [
          {"name": "host", "type": "string", "description": "Target host", "required": true}
        ],
        "returns": "object"
      }
    ]
  },
  "doc": "Tide tools exercise the whole describe/call protocol."
}
PAYLOAD
    ;;
  call)
    input=$(cat)
    echo "{\"symbol\": \"$2\", \"args\": $input}"
    ;;
  *)
    exit 64
    ;;
esac
`
