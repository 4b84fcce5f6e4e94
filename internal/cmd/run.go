package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/parser"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute an implementation plan",
		Long: `Execute an implementation plan by delegating its tasks to coding agents.

The run command parses the plan file (Markdown or YAML format), persists it,
and drives its phases in order. Within a phase, tasks execute according to
the phase's mode: sequentially, in dependency-ordered parallel rounds, or
one task at a time under manual approval.

Configuration is loaded from .foreman/config.yaml if present.

Examples:
  foreman run plan.yaml
  foreman run docs/plans/widgets.md
  foreman run --dry-run plan.yaml       # Parse and validate only
  foreman run --repo ../checkout plan.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().Bool("dry-run", false, "Parse and validate the plan without executing")
	cmd.Flags().String("repo", "", "Repository checkout the agent works in (default: the plan's repository field)")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	doc, err := parser.ParseFile(args[0])
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Plan %q is valid: %d phase(s), %d task(s)\n",
			doc.Title, len(doc.Phases), countTasks(doc))
		return nil
	}

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	plan, phases, tasks := doc.Materialize()
	ctx := cmd.Context()
	if err := persistPlan(ctx, app, plan, phases, tasks); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created plan %s (%q)\n", plan.ID, plan.Title)

	repoDir, _ := cmd.Flags().GetString("repo")
	if repoDir == "" {
		repoDir = plan.RepositoryID
	}

	return app.executePlan(ctx, plan.ID, repoDir, false)
}

func persistPlan(ctx context.Context, app *app, plan *models.Plan, phases []models.Phase, tasks []models.PlanTask) error {
	if err := app.store.CreatePlan(ctx, plan); err != nil {
		return fmt.Errorf("failed to persist plan: %w", err)
	}
	for i := range phases {
		if err := app.store.CreatePhase(ctx, &phases[i]); err != nil {
			return fmt.Errorf("failed to persist phase %q: %w", phases[i].Title, err)
		}
	}
	for i := range tasks {
		if err := app.store.CreateTask(ctx, &tasks[i]); err != nil {
			return fmt.Errorf("failed to persist task %q: %w", tasks[i].Title, err)
		}
	}
	return nil
}

func countTasks(doc *parser.PlanDocument) int {
	n := 0
	for _, phase := range doc.Phases {
		n += len(phase.Tasks)
	}
	return n
}
