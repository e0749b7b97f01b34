package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/assetpipe/internal/cli/output"
	"github.com/leapstack-labs/assetpipe/internal/pipeline"
	"github.com/leapstack-labs/assetpipe/internal/tasks"
)

type taskInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type pipelineInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Steps       [][]string `json:"steps"`
}

type tasksListing struct {
	Tasks     []taskInfo     `json:"tasks"`
	Pipelines []pipelineInfo `json:"pipelines"`
}

// NewTasksCommand creates the tasks command.
func NewTasksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List tasks and pipelines",
		Long: `List every registered task and show the execution plan of each
pipeline. Tasks on the same step run in parallel.`,
		Example: `  assetpipe tasks
  assetpipe tasks -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			t, err := tasks.New(tasks.Options{Config: cc.Cfg, Logger: cc.Logger})
			if err != nil {
				return err
			}
			listing, err := buildTasksListing(t.Registry())
			if err != nil {
				return err
			}
			return renderTasksListing(cc.Renderer, listing)
		},
	}
}

func buildTasksListing(reg *pipeline.Registry) (*tasksListing, error) {
	listing := &tasksListing{}
	for _, task := range reg.Tasks() {
		listing.Tasks = append(listing.Tasks, taskInfo{Name: task.Name, Description: task.Description})
	}
	for _, p := range tasks.Pipelines() {
		levels, err := pipeline.Levels(p.Root, reg)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", p.Name, err)
		}
		listing.Pipelines = append(listing.Pipelines, pipelineInfo{
			Name:        p.Name,
			Description: p.Description,
			Steps:       levels,
		})
	}
	return listing, nil
}

func renderTasksListing(r *output.Renderer, listing *tasksListing) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(listing)
	}

	r.Header(1, "Tasks")
	rows := make([][]string, 0, len(listing.Tasks))
	for _, t := range listing.Tasks {
		rows = append(rows, []string{t.Name, t.Description})
	}
	r.Table([]string{"Task", "Description"}, rows)

	for _, p := range listing.Pipelines {
		r.Println("")
		r.Header(2, p.Name)
		r.Muted(p.Description)
		for i, step := range p.Steps {
			r.Println(fmt.Sprintf("  %d. %s", i+1, strings.Join(step, ", ")))
		}
	}
	return nil
}
