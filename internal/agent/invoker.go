// Package agent runs delegated tasks through the claude CLI and records
// their lifecycle as agent runs. The engine never talks to the CLI directly;
// it delegates work here and polls run status.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// Invoker manages execution of claude CLI commands.
type Invoker struct {
	ClaudePath string
}

// InvocationResult captures the result of invoking the claude CLI.
type InvocationResult struct {
	Output   string
	ExitCode int
	Duration time.Duration
	Error    error
}

// ClaudeOutput represents the JSON output structure from the claude CLI.
type ClaudeOutput struct {
	Content string `json:"content"`
	Error   string `json:"error"`
}

// NewInvoker creates a new Invoker with default settings.
func NewInvoker() *Invoker {
	return &Invoker{
		ClaudePath: "claude",
	}
}

// BuildCommandArgs constructs the command-line arguments for one delegation.
func (inv *Invoker) BuildCommandArgs(prompt string) []string {
	args := []string{}

	// -p runs in non-interactive print mode, essential for automation.
	args = append(args, "-p", prompt)

	// Skip permissions so the agent can create and modify files unattended.
	args = append(args, "--dangerously-skip-permissions")

	// Disable hooks for automation.
	args = append(args, "--settings", `{"disableAllHooks": true}`)

	// JSON output for easier parsing.
	args = append(args, "--output-format", "json")

	return args
}

// Invoke executes the claude CLI in the given working directory.
// A non-zero exit code is reported in the result, not as an error; only
// failures to launch the process return an error in the result.
func (inv *Invoker) Invoke(ctx context.Context, dir, prompt string) (*InvocationResult, error) {
	startTime := time.Now()

	args := inv.BuildCommandArgs(prompt)

	cmd := exec.CommandContext(ctx, inv.ClaudePath, args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()

	result := &InvocationResult{
		Output:   string(output),
		Duration: time.Since(startTime),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.Error = fmt.Errorf("failed to run %s: %w", inv.ClaudePath, err)
		}
	}

	return result, nil
}

// ParseClaudeOutput parses the JSON output from the claude CLI.
// If the output is not valid JSON, it returns the raw output as content.
func ParseClaudeOutput(output string) (*ClaudeOutput, error) {
	var co ClaudeOutput
	if err := json.Unmarshal([]byte(output), &co); err != nil {
		return &ClaudeOutput{Content: output}, nil
	}
	return &co, nil
}
