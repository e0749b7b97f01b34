// Package styles compiles Sass entry points and post-processes the CSS
// with esbuild: vendor lowering for the configured browsers and
// minification.
package styles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/leapstack-labs/assetpipe/internal/assets"
	"github.com/leapstack-labs/assetpipe/internal/shell"
)

// Options configures a Compiler.
type Options struct {
	// Command compiles $IN and prints CSS on stdout. $LOAD_PATH is set too.
	Command string
	// LoadPath is the Sass include directory.
	LoadPath string
	// Suffix is inserted before the extension of every output file.
	Suffix string
	// Engines are browser targets such as "chrome58" or "safari11".
	Engines []string
}

// Compiler turns stylesheet entry points into minified CSS.
type Compiler struct {
	opts    Options
	engines []api.Engine
	shell   *shell.Runner
	logger  *slog.Logger
}

// NewCompiler validates opts and creates a compiler.
func NewCompiler(opts Options, runner *shell.Runner, logger *slog.Logger) (*Compiler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	engines, err := ParseEngines(opts.Engines)
	if err != nil {
		return nil, err
	}
	return &Compiler{opts: opts, engines: engines, shell: runner, logger: logger}, nil
}

// IsEntry reports whether a stylesheet is compiled on its own. Partials
// (names starting with "_") are only reachable through imports.
func IsEntry(path string) bool {
	return !strings.HasPrefix(filepath.Base(path), "_")
}

// OutputName returns the output file name for a source path relative to the
// glob base: "main.scss" becomes "main.min.css".
func OutputName(rel, suffix string) string {
	rel = filepath.FromSlash(rel)
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + suffix + ".css"
}

// Compile compiles every entry among matches into destDir. Every entry is
// attempted; failures are joined into the returned error.
func (c *Compiler) Compile(ctx context.Context, matches []assets.Match, destDir string, sourceMap bool) (int, error) {
	var errs []error
	compiled := 0
	for _, m := range matches {
		if !IsEntry(m.Path) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return compiled, err
		}
		if err := c.compileOne(ctx, m, destDir, sourceMap); err != nil {
			errs = append(errs, err)
			continue
		}
		compiled++
	}
	return compiled, errors.Join(errs...)
}

func (c *Compiler) compileOne(ctx context.Context, m assets.Match, destDir string, sourceMap bool) error {
	css, err := c.source(ctx, m)
	if err != nil {
		return err
	}

	outName := OutputName(m.Rel, c.opts.Suffix)
	outPath := filepath.Join(destDir, outName)

	code, srcMap, err := c.transform(css, m.Rel, sourceMap)
	if err != nil {
		return err
	}
	if sourceMap {
		mapName := filepath.Base(outPath) + ".map"
		code = append(code, []byte("/*# sourceMappingURL="+mapName+" */\n")...)
		if err := assets.WriteFileAtomic(outPath+".map", srcMap, 0o644); err != nil {
			return fmt.Errorf("failed to write source map: %w", err)
		}
	}
	if err := assets.WriteFileAtomic(outPath, code, 0o644); err != nil {
		return fmt.Errorf("failed to write stylesheet: %w", err)
	}
	c.logger.Debug("compiled stylesheet", slog.String("source", m.Rel), slog.String("output", outPath))
	return nil
}

// source returns the CSS for a match, running the Sass command unless the
// file already is plain CSS.
func (c *Compiler) source(ctx context.Context, m assets.Match) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(m.Path), ".css") {
		data, err := os.ReadFile(m.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", m.Rel, err)
		}
		return data, nil
	}

	return c.shell.Run(ctx, shell.Command{
		Name:   "sass:" + m.Rel,
		Script: c.opts.Command,
		Dir:    filepath.Dir(m.Path),
		Env: map[string]string{
			"IN":        m.Path,
			"LOAD_PATH": c.opts.LoadPath,
		},
	})
}

func (c *Compiler) transform(css []byte, sourcefile string, sourceMap bool) ([]byte, []byte, error) {
	opts := api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcefile:       sourcefile,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		Engines:          c.engines,
		LogLevel:         api.LogLevelSilent,
	}
	if sourceMap {
		opts.Sourcemap = api.SourceMapExternal
		opts.SourcesContent = api.SourcesContentInclude
	}

	result := api.Transform(string(css), opts)
	if len(result.Errors) > 0 {
		errs := make([]error, len(result.Errors))
		for i, m := range result.Errors {
			errs[i] = errors.New(formatMessage(m))
		}
		return nil, nil, errors.Join(errs...)
	}
	for _, w := range result.Warnings {
		c.logger.Debug("css warning", slog.String("message", formatMessage(w)))
	}
	return result.Code, result.Map, nil
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseEngines parses browser targets written as name followed by version,
// for example "chrome58" or "safari11.1".
func ParseEngines(specs []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(specs))
	for _, spec := range specs {
		spec = strings.ToLower(strings.TrimSpace(spec))
		i := strings.IndexFunc(spec, unicode.IsDigit)
		if i <= 0 {
			return nil, fmt.Errorf("invalid browser target %q", spec)
		}
		name, ok := engineNames[spec[:i]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", spec[:i], spec)
		}
		engines = append(engines, api.Engine{Name: name, Version: spec[i:]})
	}
	return engines, nil
}
