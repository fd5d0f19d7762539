package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ld-agent/ld-agent-go/pkg/linker"
	"github.com/ld-agent/ld-agent-go/pkg/presenter"
)

// CallConfig holds configuration for the call command
type CallConfig struct {
	Args    string
	JSON    bool
	Output  string
	Timeout time.Duration
}

// NewCallConfig creates a new CallConfig with default values
func NewCallConfig() *CallConfig {
	return &CallConfig{}
}

var callCmd = &cobra.Command{
	Use:   "call QUALIFIED_NAME",
	Short: "Invoke a linked symbol",
	Long: `Link the plugin root and invoke one symbol by qualified name.

Arguments are a JSON object matching the symbol's input schema. Pass
them with --args, or pipe them on stdin. The call is validated against
the declared schema before the unit's entrypoint is spawned.

Examples:
  ldagent call tide.ping --args '{"host": "reef"}'
  echo '{"host": "reef"}' | ldagent call tide.ping
  ldagent call tide.ping --args '{}' --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getCallConfigFromFlags(cmd)
		runCallCommand(ctx, cmd, config, args[0])
	},
}

func init() {
	callCmd.Flags().String("args", "", "JSON arguments for the symbol")
	callCmd.Flags().Bool("json", false, "Print the raw result only")
	callCmd.Flags().String("output", "", "Write the result to a file")
	callCmd.Flags().Duration("timeout", 0, "Override the call timeout")
}

// getCallConfigFromFlags extracts call configuration from command flags
func getCallConfigFromFlags(cmd *cobra.Command) *CallConfig {
	config := NewCallConfig()

	if argsJSON, err := cmd.Flags().GetString("args"); err == nil {
		config.Args = argsJSON
	}
	if jsonOutput, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = jsonOutput
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}
	if timeout, err := cmd.Flags().GetDuration("timeout"); err == nil {
		config.Timeout = timeout
	}

	return config
}

// readCallArgs resolves the argument payload: --args wins, then piped
// stdin, then an empty object.
func readCallArgs(config *CallConfig) ([]byte, error) {
	payload := []byte(config.Args)
	if len(payload) == 0 {
		if stat, err := os.Stdin.Stat(); err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, errors.Wrap(err, "failed to read arguments from stdin")
			}
			payload = data
		}
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}

	var argsMap map[string]interface{}
	if err := json.Unmarshal(payload, &argsMap); err != nil {
		return nil, errors.Wrap(err, "invalid JSON arguments")
	}
	return payload, nil
}

func runCallCommand(ctx context.Context, cmd *cobra.Command, config *CallConfig, qualifiedName string) {
	payload, err := readCallArgs(config)
	if err != nil {
		presenter.Error(err, "invalid arguments")
		os.Exit(1)
	}

	opts := linkerOptions(cmd, false)
	if config.Timeout > 0 {
		opts.CallTimeout = config.Timeout
	}

	lk, err := linker.Link(ctx, opts)
	if err != nil {
		presenter.Error(err, "link failed")
		os.Exit(1)
	}
	defer lk.Close()

	if !config.JSON {
		presenter.Info(fmt.Sprintf("Calling %s...", qualifiedName))
	}

	result, err := lk.Invoke(ctx, qualifiedName, payload)
	if err != nil {
		presenter.Error(err, "invocation failed")
		os.Exit(1)
	}

	switch {
	case config.Output != "":
		if err := os.WriteFile(config.Output, result, 0o644); err != nil {
			presenter.Error(err, "failed to write output file")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Output written to %s", config.Output))
	case config.JSON:
		fmt.Println(string(bytes.TrimSpace(result)))
	default:
		presenter.Section("Result")
		fmt.Println(prettyResult(result))
	}
}

// prettyResult re-indents JSON results for the terminal and passes
// anything else through untouched.
func prettyResult(result []byte) string {
	trimmed := bytes.TrimSpace(result)
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
