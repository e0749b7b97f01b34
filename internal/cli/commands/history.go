package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/assetpipe/internal/cli/output"
	"github.com/leapstack-labs/assetpipe/internal/state"
)

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent pipeline runs",
		Long: `Show the most recent pipeline runs recorded in the state database.

With a run ID, show the outcome of every task of that run.`,
		Example: `  # Last 20 runs
  assetpipe history

  # Tasks of one run
  assetpipe history 0b6f3c1e-8d52-4a8e-9f0e-6c1d2a3b4c5d`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, cleanup, err := cc.OpenStore()
			if err != nil {
				return err
			}
			defer cleanup()

			if len(args) == 1 {
				return showRun(cmd, cc.Renderer, store, args[0])
			}
			return listRuns(cmd, cc.Renderer, store, opts.Limit)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Number of runs to show")

	return cmd
}

type runInfo struct {
	ID          string     `json:"id"`
	Pipeline    string     `json:"pipeline"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func toRunInfo(run *state.Run) runInfo {
	return runInfo{
		ID:          run.ID,
		Pipeline:    run.Pipeline,
		Mode:        run.Mode,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Error:       run.Error,
	}
}

func runDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return output.FormatDuration(run.CompletedAt.Sub(run.StartedAt))
}

func listRuns(cmd *cobra.Command, r *output.Renderer, store state.Store, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]runInfo, 0, len(runs))
		for _, run := range runs {
			infos = append(infos, toRunInfo(run))
		}
		return r.JSON(infos)
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.Pipeline,
			run.Mode,
			string(run.Status),
			run.StartedAt.Local().Format(time.DateTime),
			runDuration(run),
		})
	}
	r.Table([]string{"Run", "Pipeline", "Mode", "Status", "Started", "Duration"}, rows)
	return nil
}

func showRun(cmd *cobra.Command, r *output.Renderer, store state.Store, id string) error {
	ctx := cmd.Context()
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	taskRuns, err := store.GetTaskRuns(ctx, id)
	if err != nil {
		return err
	}

	if r.EffectiveMode() == output.ModeJSON {
		type runDetail struct {
			runInfo
			Tasks []taskSummary `json:"tasks"`
		}
		detail := runDetail{runInfo: toRunInfo(run)}
		for _, tr := range taskRuns {
			detail.Tasks = append(detail.Tasks, taskSummary{
				Name:     tr.Task,
				Status:   string(tr.Status),
				Duration: output.FormatDuration(time.Duration(tr.DurationMS) * time.Millisecond),
				Error:    tr.Error,
			})
		}
		return r.JSON(detail)
	}

	r.Header(1, fmt.Sprintf("Run %s", run.ID))
	r.Println(output.KeyValue("Pipeline", run.Pipeline))
	r.Println(output.KeyValue("Mode", run.Mode))
	r.Println(output.KeyValue("Status", string(run.Status)))
	r.Println(output.KeyValue("Started", run.StartedAt.Local().Format(time.DateTime)))
	r.Println(output.KeyValue("Duration", runDuration(run)))
	r.Println("")

	rows := make([][]string, 0, len(taskRuns))
	for _, tr := range taskRuns {
		rows = append(rows, []string{
			tr.Task,
			string(tr.Status),
			output.FormatDuration(time.Duration(tr.DurationMS) * time.Millisecond),
			tr.Error,
		})
	}
	r.Table([]string{"Task", "Status", "Duration", "Error"}, rows)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
