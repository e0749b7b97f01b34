package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitest "github.com/leapstack-labs/assetpipe/internal/cli/testutil"
	"github.com/leapstack-labs/assetpipe/internal/testutil"
)

func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	assert.Equal(t, "assetpipe", cmd.Use)
	assert.NotNil(t, cmd.RunE, "root runs the development pipeline")
	assert.True(t, cmd.SilenceUsage)

	for _, name := range []string{"config", "project-dir", "verbose", "port", "output"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %q should exist", name)
	}

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"dev", "build", "run", "tasks", "history", "init", "version", "completion"} {
		assert.Contains(t, names, want)
	}
}

func TestRoot_RunThroughFlags(t *testing.T) {
	dir := clitest.SetupTestProject(t, "")

	stdout, _, err := executeRoot(t, "run", "html", "--project-dir", dir, "-o", "json")
	require.NoError(t, err)

	var summary struct {
		Pipeline string `json:"pipeline"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, "html", summary.Pipeline)
	assert.Equal(t, "completed", summary.Status)
	assert.FileExists(t, filepath.Join(dir, "dist", "about.html"))
}

func TestRoot_VerboseLogsToStderr(t *testing.T) {
	dir := clitest.SetupTestProject(t, "")

	_, stderr, err := executeRoot(t, "run", "clean", "--project-dir", dir, "-v")
	require.NoError(t, err)
	assert.Contains(t, stderr, "using config file")
	assert.Contains(t, stderr, "task started")
}

func TestRoot_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{"assetpipe.yaml": "images:\n  parallel: 0\n"})

	_, _, err := executeRoot(t, "tasks", "--project-dir", dir)
	assert.ErrorContains(t, err, "images.parallel")

	// commands that do not need a project still work
	stdout, _, err := executeRoot(t, "version", "--project-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "assetpipe v"+Version)
}

func TestRoot_PortFlagOverridesConfig(t *testing.T) {
	dir := clitest.SetupTestProject(t, "output: json\n")

	_, _, err := executeRoot(t, "tasks", "--project-dir", dir, "--port", "0")
	assert.ErrorContains(t, err, "server.port")
}

func TestRoot_UnknownCommand(t *testing.T) {
	_, _, err := executeRoot(t, "deploy")
	assert.Error(t, err)
}

func TestCompletionCommand(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{shell: "bash", want: "assetpipe"},
		{shell: "zsh", want: "#compdef assetpipe"},
		{shell: "fish", want: "complete -c assetpipe"},
		{shell: "powershell", want: "assetpipe"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			stdout, _, err := executeRoot(t, "completion", tt.shell)
			require.NoError(t, err)
			assert.Contains(t, stdout, tt.want)
		})
	}

	_, _, err := executeRoot(t, "completion", "tcsh")
	assert.Error(t, err)
}
