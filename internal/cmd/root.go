// Package cmd wires the foreman CLI: plan parsing, persistence, and the
// execution commands built on the engine.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for foreman
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foreman",
		Short: "Plan execution engine for coding agents",
		Long: `Foreman executes multi-phase implementation plans by delegating tasks
to coding agents and tracking their progress.

It parses plan files (Markdown or YAML), resolves task dependencies,
and drives each phase sequentially, in parallel, or one task at a time
under manual approval. Execution state is persisted, so interrupted
plans resume where they left off.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file (default: .foreman/config.yaml)")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewResumeCommand())
	cmd.AddCommand(NewCancelCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewReviewCommand())

	return cmd
}
