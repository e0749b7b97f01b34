// Package shell runs the external tool commands configured for asset tasks
// (sass, woff2_compress, ...) through an embedded POSIX shell interpreter,
// so the same command strings work on every platform.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Command describes one shell invocation.
type Command struct {
	// Name identifies the command in errors and logs (e.g. "styles:main.scss").
	Name string
	// Script is the shell source, e.g. `sass --style=expanded "$IN"`.
	Script string
	// Dir is the working directory.
	Dir string
	// Env holds extra variables on top of the process environment.
	Env map[string]string
	// Stdin is optional input.
	Stdin io.Reader
}

// Runner executes commands.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a runner. A nil logger discards output.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{logger: logger}
}

// Run executes cmd and returns its standard output.
// A non-zero exit is returned as an error carrying the command's stderr.
func (r *Runner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(cmd.Script), cmd.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", cmd.Script, err)
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(cmd.Dir),
		interp.Env(expand.ListEnviron(environ(cmd.Env)...)),
		interp.StdIO(cmd.Stdin, &stdout, &stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize shell: %w", err)
	}

	r.logger.Debug("running command", "name", cmd.Name, "script", cmd.Script, "dir", cmd.Dir)

	if err := runner.Run(ctx, file); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", cmd.Name, err)
		}
		return nil, fmt.Errorf("%s: %w\n%s", cmd.Name, err, msg)
	}

	if stderr.Len() > 0 {
		r.logger.Debug("command stderr", "name", cmd.Name, "output", strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// environ merges extra variables into the process environment.
// Overridden entries are dropped from the inherited list.
func environ(extra map[string]string) []string {
	base := os.Environ()
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, overridden := extra[name]; !overridden {
			out = append(out, kv)
		}
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
