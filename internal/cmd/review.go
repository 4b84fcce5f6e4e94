package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewReviewCommand creates the review command
func NewReviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <run-id>",
		Short: "Approve or reject a run held for approval",
		Long: `Resolve an agent run that is waiting for human approval.

Approving marks the run completed; the plan picks the task up as done on
the next resume. Rejecting marks the run rejected and the task is skipped
rather than treated as a failure.

Examples:
  foreman review --approve 1b4e28ba-2fa1-11d2-883f-0016d3cca427
  foreman review --reject 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		Args: cobra.ExactArgs(1),
		RunE: reviewCommand,
	}

	cmd.Flags().Bool("approve", false, "Approve the run")
	cmd.Flags().Bool("reject", false, "Reject the run")

	return cmd
}

func reviewCommand(cmd *cobra.Command, args []string) error {
	approve, _ := cmd.Flags().GetBool("approve")
	reject, _ := cmd.Flags().GetBool("reject")
	if approve == reject {
		return fmt.Errorf("exactly one of --approve or --reject is required")
	}

	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	run, err := app.store.GetRun(ctx, args[0])
	if err != nil {
		return err
	}

	// The work directory is irrelevant for resolving a held run.
	svc := app.agentService(".")
	if approve {
		if err := svc.Approve(ctx, run.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Approved run %s\n", run.ID)
		return nil
	}
	if err := svc.Reject(ctx, run.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rejected run %s\n", run.ID)
	return nil
}
