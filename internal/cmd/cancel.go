package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCancelCommand creates the cancel command
func NewCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <plan-id>",
		Short: "Cancel a plan",
		Long: `Mark a plan failed so no further tasks are dispatched.

A foreman process currently executing the plan notices the cancellation at
its next poll and stops. Cancellation takes effect even while another
process holds the plan's execution lease.`,
		Args: cobra.ExactArgs(1),
		RunE: cancelCommand,
	}
}

func cancelCommand(cmd *cobra.Command, args []string) error {
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

	svc := app.agentService(plan.RepositoryID)
	eng := app.engineFor(svc)
	if err := eng.Cancel(ctx, plan.ID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled plan %s (%q)\n", plan.ID, plan.Title)
	return nil
}
