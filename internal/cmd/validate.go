package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/parser"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a plan file without executing it",
		Long: `Parse a plan file and check it for structural problems: missing
titles, unknown execution modes, duplicate or unknown task keys, and
dependency cycles.

Examples:
  foreman validate plan.yaml
  foreman validate docs/plans/widgets.md`,
		Args: cobra.ExactArgs(1),
		RunE: validateCommand,
	}
}

func validateCommand(cmd *cobra.Command, args []string) error {
	doc, err := parser.ParseFile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Plan %q is valid\n", doc.Title)
	fmt.Fprintf(out, "  Repository: %s\n", doc.Repository)
	for i, phase := range doc.Phases {
		fmt.Fprintf(out, "  Phase %d: %s [%s] %d task(s)\n", i+1, phase.Title, phase.Mode, len(phase.Tasks))
	}
	return nil
}
