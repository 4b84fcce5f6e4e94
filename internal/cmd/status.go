package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/foreman/internal/filelock"
	"github.com/harrison/foreman/internal/models"
	"github.com/harrison/foreman/internal/store"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [plan-id]",
		Short: "Show plan status",
		Long: `Show the status of plans.

Without arguments, lists every known plan. With a plan id, shows the plan's
phases and tasks including attempts and last errors.

Examples:
  foreman status
  foreman status 1b4e28ba-2fa1-11d2-883f-0016d3cca427
  foreman status --json
  foreman status --out status.json 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		Args: cobra.MaximumNArgs(1),
		RunE: statusCommand,
	}

	cmd.Flags().Bool("json", false, "Emit JSON instead of a table")
	cmd.Flags().String("out", "", "Write output atomically to a file instead of stdout")

	return cmd
}

// planDetail is the JSON shape of one plan with its phases and tasks.
type planDetail struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	Repository      string        `json:"repository"`
	Status          string        `json:"status"`
	CurrentPhaseID  string        `json:"current_phase_id,omitempty"`
	CurrentTaskID   string        `json:"current_task_id,omitempty"`
	CompletedPhases int           `json:"completed_phases"`
	TotalPhases     int           `json:"total_phases"`
	CompletedTasks  int           `json:"completed_tasks"`
	TotalTasks      int           `json:"total_tasks"`
	Phases          []phaseDetail `json:"phases,omitempty"`
}

type phaseDetail struct {
	ID     string       `json:"id"`
	Order  int          `json:"order"`
	Title  string       `json:"title"`
	Mode   string       `json:"mode"`
	Status string       `json:"status"`
	Tasks  []taskDetail `json:"tasks"`
}

type taskDetail struct {
	ID        string `json:"id"`
	Order     int    `json:"order"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
}

func statusCommand(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	asJSON, _ := cmd.Flags().GetBool("json")
	outPath, _ := cmd.Flags().GetString("out")

	out := cmd.OutOrStdout()
	render := func(w io.Writer) error {
		if len(args) == 1 {
			return renderPlanDetail(cmd.Context(), app.store, w, args[0], asJSON || outPath != "")
		}
		return renderPlanList(cmd.Context(), app.store, w, asJSON || outPath != "")
	}

	if outPath == "" {
		return render(out)
	}

	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if err := filelock.AtomicWrite(outPath, buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote status to %s\n", outPath)
	return nil
}

func renderPlanList(ctx context.Context, st *store.Store, w io.Writer, asJSON bool) error {
	plans, err := st.ListPlans(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		views := make([]planDetail, 0, len(plans))
		for _, p := range plans {
			views = append(views, planView(p, nil))
		}
		return writeJSON(w, views)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPHASES\tTASKS\tUPDATED")
	for _, p := range plans {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d/%d\t%s\n",
			p.ID, p.Title, p.Status,
			p.CompletedPhases, p.TotalPhases,
			p.CompletedTasks, p.TotalTasks,
			p.UpdatedAt.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}

func renderPlanDetail(ctx context.Context, st *store.Store, w io.Writer, planID string, asJSON bool) error {
	plan, err := st.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	phases, err := st.ListPhases(ctx, plan.ID)
	if err != nil {
		return err
	}

	var details []phaseDetail
	for _, phase := range phases {
		tasks, err := st.ListTasksByPhase(ctx, phase.ID)
		if err != nil {
			return err
		}
		pd := phaseDetail{
			ID:     phase.ID,
			Order:  phase.Order,
			Title:  phase.Title,
			Mode:   string(phase.ExecutionMode),
			Status: string(phase.Status),
		}
		for _, task := range tasks {
			pd.Tasks = append(pd.Tasks, taskDetail{
				ID:        task.ID,
				Order:     task.Order,
				Title:     task.Title,
				Status:    string(task.Status),
				Attempts:  task.Attempts,
				LastError: task.LastError,
				CommitSHA: task.CommitSHA,
			})
		}
		details = append(details, pd)
	}

	if asJSON {
		return writeJSON(w, planView(plan, details))
	}

	fmt.Fprintf(w, "Plan %s (%q)\n", plan.ID, plan.Title)
	fmt.Fprintf(w, "  Repository: %s\n", plan.RepositoryID)
	fmt.Fprintf(w, "  Status: %s\n", plan.Status)
	fmt.Fprintf(w, "  Phases: %d/%d  Tasks: %d/%d\n",
		plan.CompletedPhases, plan.TotalPhases, plan.CompletedTasks, plan.TotalTasks)
	if plan.CurrentTaskID != "" {
		fmt.Fprintf(w, "  Blocked on task: %s\n", plan.CurrentTaskID)
	}
	for _, pd := range details {
		fmt.Fprintf(w, "\n  Phase %d: %s [%s] %s\n", pd.Order, pd.Title, pd.Mode, pd.Status)
		for _, td := range pd.Tasks {
			fmt.Fprintf(w, "    %d. %s  %s", td.Order, td.Title, td.Status)
			if td.Attempts > 1 {
				fmt.Fprintf(w, " (attempt %d)", td.Attempts)
			}
			fmt.Fprintln(w)
			if td.LastError != "" {
				fmt.Fprintf(w, "       last error: %s\n", td.LastError)
			}
		}
	}
	return nil
}

func planView(p *models.Plan, phases []phaseDetail) planDetail {
	return planDetail{
		ID:              p.ID,
		Title:           p.Title,
		Repository:      p.RepositoryID,
		Status:          string(p.Status),
		CurrentPhaseID:  p.CurrentPhaseID,
		CurrentTaskID:   p.CurrentTaskID,
		CompletedPhases: p.CompletedPhases,
		TotalPhases:     p.TotalPhases,
		CompletedTasks:  p.CompletedTasks,
		TotalTasks:      p.TotalTasks,
		Phases:          phases,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
