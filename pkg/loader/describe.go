package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	captypes "github.com/ld-agent/ld-agent-go/pkg/types/capability"
)

// describeUnit spawns `<entrypoint> describe` and decodes the unit's
// declaration payload. Every way this can go wrong — unstartable binary,
// hang, oversized or undecodable output — is returned as a LoadError so
// the caller records it on the unit instead of aborting the session.
func describeUnit(ctx context.Context, execPath string, timeout time.Duration, maxOutput int) (*captypes.RawDeclarations, *captypes.LoadError) {
	describeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(describeCtx, execPath, "describe")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setSysProcAttr(cmd)
	setCancelFunc(cmd)

	err := cmd.Run()
	if describeCtx.Err() == context.DeadlineExceeded {
		return nil, captypes.NewLoadError(captypes.LoadErrTimeout, "describe did not finish within %s", timeout)
	}
	if err != nil {
		return nil, captypes.NewLoadError(captypes.LoadErrSpawn, "describe failed: %v%s", err, stderrTail(&stderr))
	}

	if stdout.Len() > maxOutput {
		return nil, captypes.NewLoadError(captypes.LoadErrOutput, "describe output is %d bytes, cap is %d", stdout.Len(), maxOutput)
	}

	var raw captypes.RawDeclarations
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, captypes.NewLoadError(captypes.LoadErrDecode, "describe output is not a JSON object: %v", err)
	}
	return &raw, nil
}

// Call executes one exported symbol of a unit: `<entrypoint> call <name>`
// with the argument object on stdin. It is the invocation primitive the
// registry and the init hook are built on.
//
// Output beyond maxOutput is truncated with a marker rather than failed:
// a chatty symbol is an inconvenience, not a fault.
func Call(ctx context.Context, execPath, symbol string, args []byte, timeout time.Duration, maxOutput int) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(args) == 0 {
		args = []byte("{}")
	}

	cmd := exec.CommandContext(callCtx, execPath, "call", symbol)
	cmd.Stdin = bytes.NewReader(args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setSysProcAttr(cmd)
	setCancelFunc(cmd)

	err := cmd.Run()
	if callCtx.Err() == context.DeadlineExceeded {
		return nil, errors.Errorf("call %s timed out after %s", symbol, timeout)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "call %s failed%s", symbol, stderrTail(&stderr))
	}

	out := stdout.Bytes()
	if len(out) > maxOutput {
		truncated := make([]byte, 0, maxOutput+64)
		truncated = append(truncated, out[:maxOutput]...)
		truncated = append(truncated, fmt.Sprintf("\n... (output truncated at %d bytes)", maxOutput)...)
		return truncated, nil
	}
	return out, nil
}

// stderrTail renders the last chunk of a unit's stderr for error
// messages, keeping them single-line and bounded.
func stderrTail(stderr *bytes.Buffer) string {
	s := strings.TrimSpace(stderr.String())
	if s == "" {
		return ""
	}
	const limit = 512
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return ": " + strings.ReplaceAll(s, "\n", " | ")
}
