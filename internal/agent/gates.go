package agent

import (
	"context"
	"os/exec"
	"time"
)

// GateResult is the outcome of one quality gate.
type GateResult struct {
	Name     string
	Passed   bool
	Output   string
	Duration time.Duration
}

// GateRunner runs quality gates against a repository after an agent run.
// A run whose gates fail is recorded as qa_gate_failed rather than completed.
type GateRunner interface {
	Run(ctx context.Context, dir string) ([]GateResult, error)
}

// GateCommand is one configured quality gate: a named shell command that must
// exit zero for the gate to pass.
type GateCommand struct {
	Name    string
	Command string
	Args    []string
}

// CommandGates runs a fixed list of gate commands in order. It stops at the
// first failing gate; later gates are not reached.
type CommandGates struct {
	Commands []GateCommand
}

// NewCommandGates creates a gate runner for the given commands. An empty
// list means every run passes.
func NewCommandGates(commands []GateCommand) *CommandGates {
	return &CommandGates{Commands: commands}
}

// Run executes the configured gates in the given directory.
func (g *CommandGates) Run(ctx context.Context, dir string) ([]GateResult, error) {
	var results []GateResult

	for _, gate := range g.Commands {
		start := time.Now()
		cmd := exec.CommandContext(ctx, gate.Command, gate.Args...)
		cmd.Dir = dir

		output, err := cmd.CombinedOutput()
		result := GateResult{
			Name:     gate.Name,
			Passed:   err == nil,
			Output:   string(output),
			Duration: time.Since(start),
		}
		results = append(results, result)

		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if !result.Passed {
			break
		}
	}

	return results, nil
}

// AllPassed reports whether every gate in the results passed.
func AllPassed(results []GateResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
