package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/assetpipe/internal/cli/output"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new assetpipe project",
		Long: `Initialize a new assetpipe project with the default source layout.

This creates:
  - assetpipe.yaml configuration file
  - src/ with a page, a layout and a header partial
  - src/assets/ with a script entry, a stylesheet and an SVG icon

Existing files are kept. --force replaces an existing assetpipe.yaml;
source files are never overwritten.`,
		Example: `  # Initialize in current directory
  assetpipe init

  # Initialize in a new directory
  assetpipe init my-site

  # Replace an existing assetpipe.yaml
  assetpipe init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto)
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing assetpipe.yaml")

	return cmd
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, configFile)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("assetpipe.yaml already exists. Use --force to overwrite")
	}

	files, err := scaffold("default", dir, force)
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}
	for _, f := range files {
		if f.Kept {
			r.Muted("kept " + f.Path)
			continue
		}
		r.Success(f.Path)
	}

	r.Println("")
	r.Success("assetpipe project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  assetpipe dev       Build, serve and rebuild on change")
	r.Println("  assetpipe build     Production build into dist/")
	r.Println("  assetpipe tasks     List the available tasks")

	return nil
}
