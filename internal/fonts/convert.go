package fonts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/assetpipe/internal/assets"
	"github.com/leapstack-labs/assetpipe/internal/shell"
)

// DefaultConvertCommand compresses $IN into a .woff2 next to it.
const DefaultConvertCommand = `woff2_compress "$IN"`

// Converter turns TrueType fonts into WOFF2 with an external tool.
type Converter struct {
	shell   *shell.Runner
	command string
	logger  *slog.Logger
}

// NewConverter creates a converter running command for every font.
// The command sees IN (the .ttf path), OUT (the expected .woff2 path) and
// OUT_DIR, and runs inside a scratch directory holding a copy of the font.
func NewConverter(runner *shell.Runner, command string, logger *slog.Logger) *Converter {
	if command == "" {
		command = DefaultConvertCommand
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Converter{shell: runner, command: command, logger: logger}
}

// Convert writes one .woff2 per match into destDir, keeping relative paths.
// Every font is attempted; failures are joined into the returned error.
func (c *Converter) Convert(ctx context.Context, matches []assets.Match, destDir string) (int, error) {
	var errs []error
	converted := 0
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return converted, err
		}
		if err := c.convertOne(ctx, m, destDir); err != nil {
			errs = append(errs, err)
			continue
		}
		converted++
	}
	return converted, errors.Join(errs...)
}

func (c *Converter) convertOne(ctx context.Context, m assets.Match, destDir string) error {
	scratch, err := os.MkdirTemp("", "assetpipe-font-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	name := filepath.Base(m.Path)
	in := filepath.Join(scratch, name)
	if err := assets.CopyFile(m.Path, in); err != nil {
		return err
	}
	out := strings.TrimSuffix(in, filepath.Ext(in)) + ".woff2"

	if _, err := c.shell.Run(ctx, shell.Command{
		Name:   "fonts:" + m.Rel,
		Script: c.command,
		Dir:    scratch,
		Env:    map[string]string{"IN": in, "OUT": out, "OUT_DIR": scratch},
	}); err != nil {
		return err
	}

	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("fonts:%s: converter produced no %s", m.Rel, filepath.Base(out))
	}

	relOut := strings.TrimSuffix(filepath.FromSlash(m.Rel), filepath.Ext(m.Rel)) + ".woff2"
	dest := filepath.Join(destDir, relOut)
	if err := assets.CopyFile(out, dest); err != nil {
		return err
	}
	c.logger.Debug("converted font", "source", m.Rel, "output", dest)
	return nil
}
