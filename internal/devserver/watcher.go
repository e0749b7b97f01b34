package devserver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/assetpipe/internal/assets"
	"github.com/leapstack-labs/assetpipe/internal/notifier"
)

// DefaultDebounce is the quiet period before a changed task reruns.
const DefaultDebounce = 100 * time.Millisecond

// Rule reruns Task when a file matching Pattern changes. After a
// successful run the browsers receive Event.
type Rule struct {
	// Pattern is a glob relative to the project root.
	Pattern string
	// Task names the work; changes for the same task are debounced together.
	Task  string
	Run   func(ctx context.Context) error
	Event notifier.Event
}

// WatchConfig configures a Watcher.
type WatchConfig struct {
	Root     string
	Rules    []Rule
	Notifier *notifier.Notifier
	Debounce time.Duration
	Logger   *slog.Logger
	// OnError is called when a rerun fails. It defaults to logging.
	OnError func(task string, err error)
}

// Watcher reruns tasks for changed source files.
type Watcher struct {
	cfg WatchConfig

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running map[string]*sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher.
func NewWatcher(cfg WatchConfig) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.OnError == nil {
		logger := cfg.Logger
		cfg.OnError = func(task string, err error) {
			logger.Error("task failed", slog.String("task", task), slog.String("error", err.Error()))
		}
	}
	return &Watcher{
		cfg:     cfg,
		timers:  make(map[string]*time.Timer),
		running: make(map[string]*sync.Mutex),
	}
}

// Match returns the rules selecting path, at most one per task.
func (w *Watcher) Match(path string) []Rule {
	var matched []Rule
	seen := make(map[string]bool)
	for _, rule := range w.cfg.Rules {
		if seen[rule.Task] {
			continue
		}
		if assets.MatchPath(w.cfg.Root, rule.Pattern, path) {
			seen[rule.Task] = true
			matched = append(matched, rule)
		}
	}
	return matched
}

// Dirs returns the existing base directories of all rule patterns.
func (w *Watcher) Dirs() []string {
	var dirs []string
	seen := make(map[string]bool)
	for _, rule := range w.cfg.Rules {
		dir := assets.Base(rule.Pattern)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(w.cfg.Root, dir)
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// Watch blocks until ctx is cancelled, rerunning tasks as files change.
// Pending reruns are cancelled and running ones awaited before it returns.
func (w *Watcher) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	for _, dir := range w.Dirs() {
		if err := w.addRecursive(ctx, fsw, dir, false); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	w.cfg.Logger.Info("watching for changes", slog.Int("rules", len(w.cfg.Rules)))

	w.mu.Lock()
	w.stopped = false
	w.mu.Unlock()
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.cfg.Logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ctx, fsw, event.Name, true); err != nil {
				w.cfg.Logger.Warn("failed to watch new directory", slog.String("dir", event.Name), slog.String("error", err.Error()))
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.changed(ctx, event.Name)
}

// addRecursive watches dir and its subdirectories. For directories created
// after startup, files already inside count as changes since their own
// events may have fired before the directory was watched.
func (w *Watcher) addRecursive(ctx context.Context, fsw *fsnotify.Watcher, dir string, created bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		}
		if created {
			w.changed(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) changed(ctx context.Context, path string) {
	for _, rule := range w.Match(path) {
		w.cfg.Logger.Debug("file changed", slog.String("file", path), slog.String("task", rule.Task))
		w.schedule(ctx, rule)
	}
}

// schedule (re)starts the debounce timer of rule's task.
func (w *Watcher) schedule(ctx context.Context, rule Rule) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || ctx.Err() != nil {
		return
	}
	if t, ok := w.timers[rule.Task]; ok {
		t.Stop()
	}
	w.timers[rule.Task] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, rule.Task)
		if w.stopped || ctx.Err() != nil {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		lock, ok := w.running[rule.Task]
		if !ok {
			lock = &sync.Mutex{}
			w.running[rule.Task] = lock
		}
		w.mu.Unlock()

		defer w.wg.Done()
		w.rerun(ctx, rule, lock)
	})
}

// rerun runs rule's task, one run per task at a time.
func (w *Watcher) rerun(ctx context.Context, rule Rule, lock *sync.Mutex) {
	lock.Lock()
	defer lock.Unlock()

	if err := rule.Run(ctx); err != nil {
		if ctx.Err() == nil {
			w.cfg.OnError(rule.Task, err)
		}
		return
	}
	if w.cfg.Notifier != nil && rule.Event != "" {
		w.cfg.Notifier.Broadcast(rule.Event)
	}
}

// stop cancels pending reruns and waits for running ones. Timers that
// already fired see stopped and exit without starting a rerun.
func (w *Watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	for task, t := range w.timers {
		t.Stop()
		delete(w.timers, task)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
