package tasks

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/assetpipe/internal/cli/config"
	"github.com/leapstack-labs/assetpipe/internal/devserver"
	"github.com/leapstack-labs/assetpipe/internal/notifier"
	"github.com/leapstack-labs/assetpipe/internal/pipeline"
)

// watchTarget is what a change in one asset category reruns.
type watchTarget struct {
	name  string
	step  pipeline.Step
	event notifier.Event
}

var watchTargets = map[string]watchTarget{
	config.CategoryCSS:       {Styles, pipeline.Ref(Styles), notifier.CSS},
	config.CategoryHTML:      {HTML, pipeline.Ref(HTML), notifier.Reload},
	config.CategoryJS:        {Scripts, pipeline.Ref(Scripts), notifier.Reload},
	config.CategoryImages:    {Images, pipeline.Ref(Images), notifier.Reload},
	config.CategorySVG:       {Sprites, pipeline.Ref(Sprites), notifier.Reload},
	config.CategoryResources: {Resources, pipeline.Ref(Resources), notifier.Reload},
	config.CategoryFonts:     {Fonts, pipeline.Series(pipeline.Ref(Fonts), pipeline.Ref(FontsStyle)), notifier.Reload},
}

// WatchRules maps every watch glob to the task it reruns.
func (t *Tasks) WatchRules() []devserver.Rule {
	rules := make([]devserver.Rule, 0, len(config.Categories))
	for _, category := range config.Categories {
		pattern := t.cfg.Watch.Get(category)
		target, ok := watchTargets[category]
		if pattern == "" || !ok {
			continue
		}
		rules = append(rules, devserver.Rule{
			Pattern: pattern,
			Task:    target.name,
			Event:   target.event,
			Run: func(ctx context.Context) error {
				_, err := t.runner.RunStep(ctx, target.name, target.step)
				return err
			},
		})
	}
	return rules
}

// watch serves the build output and reruns tasks until ctx is cancelled.
func (t *Tasks) watch(ctx context.Context) error {
	srv := devserver.NewServer(devserver.Config{
		Root:     t.cfg.Build.HTML,
		Host:     t.cfg.Server.Host,
		Port:     t.cfg.Server.Port,
		Notifier: t.notifier,
		Logger:   t.logger,
	})
	w := devserver.NewWatcher(devserver.WatchConfig{
		Root:     t.cfg.ProjectRoot,
		Rules:    t.WatchRules(),
		Notifier: t.notifier,
		Logger:   t.logger,
		// Failures already reach the runner's reporters.
		OnError: func(task string, err error) {
			t.logger.Debug("rerun failed", slog.String("task", task), slog.String("error", err.Error()))
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return w.Watch(gctx) })
	return g.Wait()
}
