package cmd

import (
	"github.com/spf13/cobra"
)

// NewResumeCommand creates the resume command
func NewResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <plan-id>",
		Short: "Resume a paused plan",
		Long: `Resume a paused plan from where it stopped.

Completed phases are skipped. Previously failed tasks are retried with
their earlier error included in the agent prompt as corrective context.

Examples:
  foreman resume 1b4e28ba-2fa1-11d2-883f-0016d3cca427
  foreman resume --repo ../checkout 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		Args: cobra.ExactArgs(1),
		RunE: resumeCommand,
	}

	cmd.Flags().String("repo", "", "Repository checkout the agent works in (default: the plan's repository field)")

	return cmd
}

func resumeCommand(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	plan, err := app.store.GetPlan(ctx, args[0])
	if err != nil {
		return err
	}

	// No paused check here: a plan left running by a crashed process is
	// paused by the startup sweep inside executePlan, and the engine
	// enforces the paused requirement after that.
	repoDir, _ := cmd.Flags().GetString("repo")
	if repoDir == "" {
		repoDir = plan.RepositoryID
	}

	return app.executePlan(ctx, plan.ID, repoDir, true)
}
