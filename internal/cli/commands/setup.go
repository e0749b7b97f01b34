package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/assetpipe/internal/cli/config"
	"github.com/leapstack-labs/assetpipe/internal/cli/output"
	"github.com/leapstack-labs/assetpipe/internal/pipeline"
	"github.com/leapstack-labs/assetpipe/internal/state"
	"github.com/leapstack-labs/assetpipe/internal/tasks"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext collects the config, logger and renderer of cmd. The
// config is loaded from the command's flags when the root did not store one.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	cfg := config.GetConfig(cmd.Context())
	if cfg == nil {
		var err error
		cfg, err = config.Load("", cmd.Flags())
		if err != nil {
			return nil, err
		}
	}

	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output)),
	}, nil
}

// OpenStore opens the state database of the project.
// Returns the store and a cleanup function that must be called (typically via defer).
func (cc *CommandContext) OpenStore() (*state.SQLiteStore, func(), error) {
	store := state.NewSQLiteStore(cc.Logger)
	if err := store.Open(cc.Cfg.StatePath); err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// runSummary is the JSON form of a finished run.
type runSummary struct {
	RunID    string        `json:"run_id,omitempty"`
	Pipeline string        `json:"pipeline"`
	Mode     string        `json:"mode"`
	Status   string        `json:"status"`
	Duration string        `json:"duration"`
	Tasks    []taskSummary `json:"tasks"`
}

type taskSummary struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

// runPipeline executes p in mode with progress output and run history.
// The state database is optional: when it cannot be opened the run goes
// ahead without history or image cache.
func runPipeline(cmd *cobra.Command, p pipeline.Pipeline, mode tasks.Mode) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	r := cc.Renderer
	jsonOut := r.EffectiveMode() == output.ModeJSON

	opts := tasks.Options{
		Config: cc.Cfg,
		Mode:   mode,
		Logger: cc.Logger,
	}
	if !jsonOut {
		opts.RunnerOptions = append(opts.RunnerOptions, pipeline.WithReporter(output.NewTaskReporter(r)))
	}

	var store *state.SQLiteStore
	rec := &tasks.StateRecorder{}
	if opened, closeStore, err := cc.OpenStore(); err != nil {
		r.Warning(fmt.Sprintf("run history disabled: %v", err))
	} else {
		defer closeStore()
		store = opened
		opts.Store = store
		rec.Store = store
		opts.RunnerOptions = append(opts.RunnerOptions, pipeline.WithRecorder(rec))
	}

	t, err := tasks.New(opts)
	if err != nil {
		return err
	}

	// Unknown tasks fail here, before a run is recorded.
	if _, err := pipeline.Plan(p.Root, t.Registry()); err != nil {
		return err
	}

	var run *state.Run
	if store != nil {
		run, err = store.CreateRun(ctx, p.Name, string(mode))
		if err != nil {
			r.Warning(fmt.Sprintf("run history disabled: %v", err))
		} else {
			rec.RunID = run.ID
		}
	}

	if !jsonOut {
		r.Header(1, fmt.Sprintf("%s (%s)", p.Name, mode))
		r.Muted(output.KeyValue("Project", cc.Cfg.ProjectRoot))
		r.Println("")
	}

	result, runErr := t.Runner().Run(ctx, p)
	status := tasks.RunStatus(runErr)

	if run != nil {
		msg := ""
		if runErr != nil {
			msg = runErr.Error()
		}
		// ctx may already be cancelled; the run still has to be closed out.
		if err := store.CompleteRun(context.WithoutCancel(ctx), run.ID, status, msg); err != nil {
			cc.Logger.Warn("failed to complete run", slog.String("error", err.Error()))
		}
	}

	if jsonOut {
		summary := runSummary{Pipeline: p.Name, Mode: string(mode), Status: string(status)}
		if run != nil {
			summary.RunID = run.ID
		}
		if result != nil {
			summary.Duration = output.FormatDuration(result.Duration)
			for _, tr := range result.Tasks {
				ts := taskSummary{Name: tr.Name, Status: string(tr.Status), Duration: output.FormatDuration(tr.Duration)}
				if tr.Err != nil {
					ts.Error = tr.Err.Error()
				}
				summary.Tasks = append(summary.Tasks, ts)
			}
		}
		if err := r.JSON(summary); err != nil {
			return err
		}
	} else if result != nil {
		r.Println("")
		switch status {
		case state.RunStatusCompleted:
			r.Success(fmt.Sprintf("Finished '%s' after %s", p.Name, output.FormatDuration(result.Duration)))
		case state.RunStatusCancelled:
			r.Muted(fmt.Sprintf("Stopped '%s' after %s", p.Name, output.FormatDuration(result.Duration)))
		default:
			r.Error(fmt.Sprintf("'%s' finished with %d failed task(s)", p.Name, len(result.Failed())))
		}
	}

	// An interrupted development session is the normal way to leave watch.
	if mode == tasks.Development && ctx.Err() != nil {
		return nil
	}
	if runErr != nil {
		return fmt.Errorf("pipeline %s failed: %w", p.Name, runErr)
	}
	return nil
}
