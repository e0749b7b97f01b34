// Package tasks defines the asset tasks and the pipelines that combine
// them.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/leapstack-labs/assetpipe/internal/assets"
	"github.com/leapstack-labs/assetpipe/internal/cli/config"
	"github.com/leapstack-labs/assetpipe/internal/fonts"
	"github.com/leapstack-labs/assetpipe/internal/imagemin"
	"github.com/leapstack-labs/assetpipe/internal/notifier"
	"github.com/leapstack-labs/assetpipe/internal/pages"
	"github.com/leapstack-labs/assetpipe/internal/pipeline"
	"github.com/leapstack-labs/assetpipe/internal/scripts"
	"github.com/leapstack-labs/assetpipe/internal/shell"
	"github.com/leapstack-labs/assetpipe/internal/sprites"
	"github.com/leapstack-labs/assetpipe/internal/state"
	"github.com/leapstack-labs/assetpipe/internal/styles"
)

// Task names.
const (
	Clean          = "clean"
	HTML           = "html"
	Scripts        = "scripts"
	Fonts          = "fonts"
	FontsStyle     = "fonts-style"
	Styles         = "styles"
	Images         = "images"
	Resources      = "resources"
	Sprites        = "sprites"
	CompressImages = "compress-images"
	Watch          = "watch"
)

// Mode selects development or production behavior.
type Mode string

// Build modes.
const (
	Development Mode = "development"
	Production  Mode = "production"
)

// Policy returns the failure policy of the mode: development keeps going
// after a failure, production stops at the first one.
func (m Mode) Policy() pipeline.Policy {
	if m == Production {
		return pipeline.FailFast
	}
	return pipeline.ContinueOnError
}

// SourceMaps reports whether outputs carry source maps.
func (m Mode) SourceMaps() bool {
	return m != Production
}

// Options configures the task set.
type Options struct {
	Config *config.Config
	Mode   Mode
	// Store backs the image compression cache. Optional.
	Store    state.Store
	Notifier *notifier.Notifier
	Logger   *slog.Logger
	// RunnerOptions are applied to the runner used for pipelines and
	// watch-triggered reruns.
	RunnerOptions []pipeline.Option
}

// Tasks holds the registered asset tasks.
type Tasks struct {
	cfg      *config.Config
	mode     Mode
	store    state.Store
	notifier *notifier.Notifier
	logger   *slog.Logger
	shell    *shell.Runner
	styles   *styles.Compiler

	registry *pipeline.Registry
	runner   *pipeline.Runner
}

// New registers every task for cfg.
func New(opts Options) (*Tasks, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Mode == "" {
		opts.Mode = Development
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Notifier == nil {
		opts.Notifier = notifier.New()
	}

	sh := shell.NewRunner(opts.Logger)
	cfg := opts.Config
	compiler, err := styles.NewCompiler(styles.Options{
		Command:  cfg.Styles.Command,
		LoadPath: cfg.Styles.LoadPath,
		Suffix:   cfg.Styles.Suffix,
		Engines:  cfg.Styles.Engines,
	}, sh, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("invalid styles config: %w", err)
	}

	t := &Tasks{
		cfg:      cfg,
		mode:     opts.Mode,
		store:    opts.Store,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		shell:    sh,
		styles:   compiler,
		registry: pipeline.NewRegistry(),
	}

	for _, task := range t.definitions() {
		if err := t.registry.Register(task); err != nil {
			return nil, err
		}
	}

	runnerOpts := append([]pipeline.Option{
		pipeline.WithPolicy(opts.Mode.Policy()),
		pipeline.WithLogger(opts.Logger),
	}, opts.RunnerOptions...)
	t.runner = pipeline.NewRunner(t.registry, runnerOpts...)
	return t, nil
}

// Registry returns the registered tasks.
func (t *Tasks) Registry() *pipeline.Registry {
	return t.registry
}

// Runner returns the runner configured for the mode.
func (t *Tasks) Runner() *pipeline.Runner {
	return t.runner
}

// Mode returns the build mode.
func (t *Tasks) Mode() Mode {
	return t.mode
}

func (t *Tasks) definitions() []*pipeline.Task {
	return []*pipeline.Task{
		{Name: Clean, Description: "Remove the build output", Run: t.clean},
		{Name: HTML, Description: "Render pages into layouts", Run: t.html},
		{Name: Scripts, Description: "Bundle and minify JavaScript", Run: t.scripts},
		{Name: Fonts, Description: "Convert TrueType fonts to WOFF2", Run: t.fonts},
		{Name: FontsStyle, Description: "Regenerate the font-face stylesheet", Run: t.fontsStyle},
		{Name: Styles, Description: "Compile, prefix and minify stylesheets", Run: t.compileStyles},
		{Name: Images, Description: "Copy images", Run: t.images},
		{Name: Resources, Description: "Copy static resources", Run: t.resources},
		{Name: Sprites, Description: "Build the SVG stack sprite", Run: t.sprites},
		{Name: CompressImages, Description: "Compress images with TinyPNG", Run: t.compressImages},
		{Name: Watch, Description: "Serve the build with live reload and rebuild on change", Run: t.watch},
	}
}

// assetGroup builds every independent asset in parallel.
func assetGroup() pipeline.Step {
	return pipeline.Parallel(
		pipeline.Ref(HTML),
		pipeline.Ref(Scripts),
		pipeline.Ref(Fonts),
		pipeline.Ref(Resources),
		pipeline.Ref(Images),
		pipeline.Ref(Sprites),
	)
}

// DefaultPipeline builds in development mode and keeps watching.
func DefaultPipeline() pipeline.Pipeline {
	return pipeline.Pipeline{
		Name:        "default",
		Description: "Development build, then serve and watch",
		Root: pipeline.Series(
			pipeline.Ref(Clean),
			assetGroup(),
			pipeline.Ref(FontsStyle),
			pipeline.Ref(Styles),
			pipeline.Ref(Watch),
		),
	}
}

// BuildPipeline is the production build.
func BuildPipeline() pipeline.Pipeline {
	return pipeline.Pipeline{
		Name:        "build",
		Description: "Production build with image compression",
		Root: pipeline.Series(
			pipeline.Ref(Clean),
			assetGroup(),
			pipeline.Ref(FontsStyle),
			pipeline.Ref(Styles),
			pipeline.Ref(CompressImages),
		),
	}
}

// Pipelines lists the externally invocable pipelines.
func Pipelines() []pipeline.Pipeline {
	return []pipeline.Pipeline{DefaultPipeline(), BuildPipeline()}
}

func (t *Tasks) glob(category string) ([]assets.Match, error) {
	return assets.Glob(t.cfg.ProjectRoot, t.cfg.Src.Get(category))
}

func (t *Tasks) clean(_ context.Context) error {
	return assets.Clean(t.cfg.ProjectRoot, t.cfg.Clean)
}

func (t *Tasks) html(ctx context.Context) error {
	matches, err := t.glob(config.CategoryHTML)
	if err != nil {
		return err
	}
	compiler := pages.NewCompiler(pages.Options{
		Layouts:  t.cfg.Pages.Layouts,
		Partials: t.cfg.Pages.Partials,
	}, t.logger)
	n, err := compiler.Compile(ctx, matches, t.cfg.Build.HTML)
	t.logger.Debug("pages rendered", slog.Int("count", n))
	return err
}

func (t *Tasks) scripts(_ context.Context) error {
	matches, err := t.glob(config.CategoryJS)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no script entry matches %s", t.cfg.Src.JS)
	}
	for _, m := range matches {
		output := t.cfg.Scripts.Output
		if len(matches) > 1 {
			output = m.Rel
		}
		res, err := scripts.Bundle(scripts.Options{
			Entry:     m.Path,
			OutDir:    t.cfg.Build.JS,
			Output:    output,
			Target:    t.cfg.Scripts.Target,
			SourceMap: t.mode.SourceMaps(),
		}, t.logger)
		if err != nil {
			return err
		}
		t.logger.Debug("scripts bundled", slog.Any("files", res.Files))
	}
	return nil
}

func (t *Tasks) fonts(ctx context.Context) error {
	matches, err := t.glob(config.CategoryFonts)
	if err != nil {
		return err
	}
	n, err := fonts.NewConverter(t.shell, t.cfg.Fonts.Command, t.logger).Convert(ctx, matches, t.cfg.Build.Fonts)
	t.logger.Debug("fonts converted", slog.Int("count", n))
	return err
}

func (t *Tasks) fontsStyle(_ context.Context) error {
	decls, err := fonts.WriteStylesheet(t.cfg.Build.Fonts, t.cfg.Fonts.Stylesheet)
	if err != nil {
		return err
	}
	t.logger.Debug("font stylesheet written",
		slog.String("path", t.cfg.Fonts.Stylesheet),
		slog.Int("declarations", len(decls)))
	return nil
}

func (t *Tasks) compileStyles(ctx context.Context) error {
	matches, err := t.glob(config.CategoryCSS)
	if err != nil {
		return err
	}
	n, err := t.styles.Compile(ctx, matches, t.cfg.Build.CSS, t.mode.SourceMaps())
	t.logger.Debug("stylesheets compiled", slog.Int("count", n))
	return err
}

func (t *Tasks) images(ctx context.Context) error {
	return t.copy(ctx, config.CategoryImages, t.cfg.Build.Images)
}

func (t *Tasks) resources(ctx context.Context) error {
	return t.copy(ctx, config.CategoryResources, t.cfg.Build.Resources)
}

func (t *Tasks) copy(ctx context.Context, category, dest string) error {
	matches, err := t.glob(category)
	if err != nil {
		return err
	}
	n, err := assets.CopyAll(ctx, matches, dest)
	t.logger.Debug("files copied", slog.String("category", category), slog.Int("count", n))
	return err
}

func (t *Tasks) sprites(_ context.Context) error {
	matches, err := t.glob(config.CategorySVG)
	if err != nil {
		return err
	}
	n, err := sprites.Write(matches, filepath.Join(t.cfg.Build.SVG, t.cfg.Sprites.Output))
	t.logger.Debug("sprite written", slog.Int("icons", n))
	return err
}

func (t *Tasks) compressImages(ctx context.Context) error {
	if t.cfg.Images.APIKey == "" {
		t.logger.Warn("images.api_key is not set; skipping image compression")
		return nil
	}
	matches, err := t.glob(config.CategoryImages)
	if err != nil {
		return err
	}

	opts := imagemin.Options{
		Shrinker: imagemin.NewClient(t.cfg.Images.APIKey, t.cfg.Images.Endpoint),
		Parallel: t.cfg.Images.Parallel,
	}
	if t.store != nil {
		opts.Cache = t.store
		opts.CacheDir = t.cfg.Images.CacheDir
	}

	stats, err := imagemin.NewCompressor(opts, t.logger).Compress(ctx, matches, t.cfg.Build.Images)
	t.logger.Info("images compressed",
		slog.Int("compressed", stats.Compressed),
		slog.Int("cached", stats.Cached),
		slog.Int64("saved_bytes", stats.Saved()))
	return err
}
