package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/assetpipe/internal/cli/config"
	clitest "github.com/leapstack-labs/assetpipe/internal/cli/testutil"
	"github.com/leapstack-labs/assetpipe/internal/state"
	"github.com/leapstack-labs/assetpipe/internal/testutil"
)

func TestNewDevCommand(t *testing.T) {
	cmd := NewDevCommand()

	assert.Equal(t, "dev", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
	assert.Error(t, cmd.Args(cmd, []string{"extra"}))
}

func TestNewBuildCommand(t *testing.T) {
	cmd := NewBuildCommand()

	assert.Equal(t, "build", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
}

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run <task>...", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("production"), "--production flag should exist")
	assert.Error(t, cmd.Args(cmd, nil), "at least one task is required")
}

func TestNewTasksCommand(t *testing.T) {
	cmd := NewTasksCommand()

	assert.Equal(t, "tasks", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
}

func TestNewHistoryCommand(t *testing.T) {
	cmd := NewHistoryCommand()

	assert.Equal(t, "history [run-id]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	require.NotNil(t, cmd.Flags().Lookup("limit"), "--limit flag should exist")
	assert.Equal(t, "20", cmd.Flags().Lookup("limit").DefValue)
}

// newProject writes a minimal site and loads its config.
func newProject(t *testing.T, output string) *config.Config {
	t.Helper()
	root := clitest.SetupTestProject(t, "output: "+output+"\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("project-dir", "", "")
	require.NoError(t, flags.Parse([]string{"--project-dir", root}))
	cfg, err := config.Load("", flags)
	require.NoError(t, err)
	return cfg
}

func execute(t *testing.T, cmd *cobra.Command, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	ctx := config.WithConfig(context.Background(), cfg)
	ctx = config.WithLogger(ctx, testutil.NewTestLogger(t))
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestRunCommand_RunsTasksAndRecordsHistory(t *testing.T) {
	cfg := newProject(t, "text")

	stdout, _, err := execute(t, NewRunCommand(), cfg, "html")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Starting 'html'")
	assert.Contains(t, stdout, "Finished 'html'")
	clitest.AssertNoANSI(t, stdout)
	assert.Equal(t, "<html><body><h1>Home</h1></body></html>", testutil.ReadFile(t, cfg.Build.HTML, "index.html"))

	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(cfg.StatePath))
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "html", runs[0].Pipeline)
	assert.Equal(t, "development", runs[0].Mode)
	assert.Equal(t, state.RunStatusCompleted, runs[0].Status)

	taskRuns, err := store.GetTaskRuns(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, taskRuns, 1)
	assert.Equal(t, state.TaskStatusSuccess, taskRuns[0].Status)
}

func TestRunCommand_UnknownTask(t *testing.T) {
	cfg := newProject(t, "text")

	stdout, _, err := execute(t, NewRunCommand(), cfg, "html", "minify")
	assert.ErrorContains(t, err, "unknown task: minify")
	assert.NotContains(t, stdout, "html,minify")
	assert.NoFileExists(t, filepath.Join(cfg.Build.HTML, "index.html"))

	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(cfg.StatePath))
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "a run that never started is not recorded")
}

func TestRunCommand_ProductionFailure(t *testing.T) {
	cfg := newProject(t, "text")
	testutil.WriteFiles(t, cfg.ProjectRoot, map[string]string{"src/broken.html": "{{#if}}"})

	_, stderr, err := execute(t, NewRunCommand(), cfg, "html", "--production")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline html failed")
	assert.Contains(t, stderr, "Error running task html")
}

func TestRunCommand_JSON(t *testing.T) {
	cfg := newProject(t, "json")

	stdout, _, err := execute(t, NewRunCommand(), cfg, "clean", "html")
	require.NoError(t, err)

	var summary runSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, "clean,html", summary.Pipeline)
	assert.Equal(t, "development", summary.Mode)
	assert.Equal(t, "completed", summary.Status)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Tasks, 2)
	assert.Equal(t, "clean", summary.Tasks[0].Name)
	assert.Equal(t, "html", summary.Tasks[1].Name)
}

func TestTasksCommand(t *testing.T) {
	cfg := newProject(t, "json")

	stdout, _, err := execute(t, NewTasksCommand(), cfg)
	require.NoError(t, err)

	var listing tasksListing
	require.NoError(t, json.Unmarshal([]byte(stdout), &listing))
	require.Len(t, listing.Tasks, 11)
	assert.Equal(t, "clean", listing.Tasks[0].Name)

	require.Len(t, listing.Pipelines, 2)
	dev := listing.Pipelines[0]
	assert.Equal(t, "default", dev.Name)
	require.Len(t, dev.Steps, 5)
	assert.Equal(t, []string{"clean"}, dev.Steps[0])
	assert.ElementsMatch(t, []string{"html", "scripts", "fonts", "resources", "images", "sprites"}, dev.Steps[1])
	assert.Equal(t, []string{"fonts-style"}, dev.Steps[2])
	assert.Equal(t, []string{"styles"}, dev.Steps[3])
	assert.Equal(t, []string{"watch"}, dev.Steps[4])

	build := listing.Pipelines[1]
	assert.Equal(t, "build", build.Name)
	assert.Equal(t, []string{"compress-images"}, build.Steps[len(build.Steps)-1])
}

func TestTasksCommand_Text(t *testing.T) {
	cfg := newProject(t, "text")

	stdout, _, err := execute(t, NewTasksCommand(), cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "fonts-style")
	assert.Contains(t, stdout, "Regenerate the font-face stylesheet")
	assert.Contains(t, stdout, "  1. clean")
	assert.Contains(t, stdout, "  4. styles")
}

func TestHistoryCommand(t *testing.T) {
	cfg := newProject(t, "text")

	stdout, _, err := execute(t, NewHistoryCommand(), cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No runs recorded yet.")

	_, _, err = execute(t, NewRunCommand(), cfg, "html")
	require.NoError(t, err)

	stdout, _, err = execute(t, NewHistoryCommand(), cfg)
	require.NoError(t, err)
	assert.Contains(t, stdout, "html")
	assert.Contains(t, stdout, "completed")

	cfg.Output = "json"
	stdout, _, err = execute(t, NewHistoryCommand(), cfg)
	require.NoError(t, err)
	var runs []runInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)

	stdout, _, err = execute(t, NewHistoryCommand(), cfg, runs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"name": "html"`)
	assert.Contains(t, stdout, `"status": "success"`)

	_, _, err = execute(t, NewHistoryCommand(), cfg, "missing")
	assert.ErrorContains(t, err, "run not found")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0b6f3c1e", shortID("0b6f3c1e-8d52-4a8e-9f0e-6c1d2a3b4c5d"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestNewCommandContext_LoadsFromFlags(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"assetpipe.yaml": "server:\n  port: 4321\n"})

	cmd := &cobra.Command{Use: "probe", RunE: func(cmd *cobra.Command, _ []string) error {
		cc, err := NewCommandContext(cmd)
		require.NoError(t, err)
		assert.Equal(t, 4321, cc.Cfg.Server.Port)
		assert.Equal(t, filepath.Clean(root), cc.Cfg.ProjectRoot)
		return nil
	}}
	cmd.Flags().String("project-dir", "", "")
	cmd.SetArgs([]string{"--project-dir", root})
	require.NoError(t, cmd.Execute())
}
