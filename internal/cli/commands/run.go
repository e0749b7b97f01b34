package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/assetpipe/internal/pipeline"
	"github.com/leapstack-labs/assetpipe/internal/tasks"
)

// NewDevCommand creates the dev command.
func NewDevCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dev",
		Short: "Build for development, then serve and watch",
		Long: `Run the default pipeline: clean the output, build every asset with
source maps, then serve the build with live reload and rebuild whatever
changes. Failing tasks are reported and the session keeps running.

Stop with Ctrl+C.`,
		Example: `  # Start the development server on the configured port
  assetpipe dev

  # Use another port
  assetpipe dev --port 8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, tasks.DefaultPipeline(), tasks.Development)
		},
	}
}

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build for production",
		Long: `Run the production pipeline: clean the output, build every asset
without source maps and compress images. The build stops at the first
failing task and exits with a non-zero status.`,
		Example: `  # Production build
  assetpipe build

  # Machine-readable summary for CI
  assetpipe build -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, tasks.BuildPipeline(), tasks.Production)
		},
	}
}

// RunOptions holds options for the run command.
type RunOptions struct {
	Production bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <task>...",
		Short: "Run individual tasks",
		Long: `Run the named tasks one after another.

Tasks run in development mode unless --production is set. Use
'assetpipe tasks' to list the available task names.`,
		Example: `  # Rebuild stylesheets
  assetpipe run styles

  # Regenerate fonts and their stylesheet
  assetpipe run fonts fonts-style

  # Compress images with the production settings
  assetpipe run compress-images --production`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := tasks.Development
			if opts.Production {
				mode = tasks.Production
			}
			p := pipeline.Pipeline{
				Name: strings.Join(args, ","),
				Root: pipeline.Refs(args...),
			}
			return runPipeline(cmd, p, mode)
		},
	}

	cmd.Flags().BoolVar(&opts.Production, "production", false, "Run in production mode")

	return cmd
}
