// Package scripts bundles the JavaScript entry point with esbuild.
package scripts

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/leapstack-labs/assetpipe/internal/assets"
)

// Options configures a bundle.
type Options struct {
	// Entry is the absolute path of the entry module.
	Entry string
	// OutDir receives the bundle.
	OutDir string
	// Output is the bundle file name, "main.js" by default.
	Output string
	// Target is an ECMAScript version such as "es2015".
	Target string
	// SourceMap writes a linked .map next to the bundle.
	SourceMap bool
}

// Result lists the files written by a bundle.
type Result struct {
	Files    []string
	Warnings int
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"esnext": api.ESNext,
}

// ParseTarget maps an ECMAScript version name to an esbuild target.
func ParseTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES2015, nil
	}
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown script target %q", name)
	}
	return t, nil
}

// Bundle bundles opts.Entry into a single minified IIFE.
func Bundle(opts Options, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	target, err := ParseTarget(opts.Target)
	if err != nil {
		return nil, err
	}
	if opts.Output == "" {
		opts.Output = "main.js"
	}

	sourcemap := api.SourceMapNone
	if opts.SourceMap {
		sourcemap = api.SourceMapLinked
	}

	result := api.Build(api.BuildOptions{
		EntryPoints: []string{opts.Entry},
		Outfile:     filepath.Join(opts.OutDir, opts.Output),
		Bundle:      true,
		Write:       false,

		Platform: api.PlatformBrowser,
		Format:   api.FormatIIFE,
		Target:   target,

		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		TreeShaking:       api.TreeShakingTrue,

		Sourcemap: sourcemap,
		LogLevel:  api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, FormatMessages(result.Errors)
	}
	for _, w := range result.Warnings {
		logger.Warn("bundler warning", slog.String("message", formatMessage(w)))
	}

	out := &Result{Warnings: len(result.Warnings)}
	for _, f := range result.OutputFiles {
		if err := assets.WriteFileAtomic(f.Path, f.Contents, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write bundle: %w", err)
		}
		out.Files = append(out.Files, f.Path)
	}
	if len(out.Files) == 0 {
		return nil, fmt.Errorf("no JavaScript output generated")
	}
	return out, nil
}

// FormatMessages joins esbuild messages as file:line:col: text errors.
func FormatMessages(msgs []api.Message) error {
	errs := make([]error, len(msgs))
	for i, m := range msgs {
		errs[i] = errors.New(formatMessage(m))
	}
	return errors.Join(errs...)
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}
