package reconcile

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	Roots []string
	// Depth limits how many levels below a root are watched.
	Depth    int
	Debounce time.Duration
	Clock    clockwork.Clock
}

// Watch observes the library roots and calls trigger once the filesystem has
// been quiet for Debounce after a change. It returns when ctx is cancelled.
// Directories created at runtime are added to the watch list.
func Watch(ctx context.Context, opts WatchOptions, logger *slog.Logger, trigger func(context.Context)) error {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	levels := make(map[string]int)
	for _, root := range opts.Roots {
		if err := addDirs(w, root, opts.Depth+1, levels); err != nil {
			logger.Warn("watcher: root not watched", slog.String("root", root), slog.String("error", err.Error()))
			continue
		}
		logger.Info("watcher: started", slog.String("root", root))
	}

	var timer clockwork.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = opts.Clock.NewTimer(opts.Debounce)
			fire = timer.Chan()
			return
		}
		timer.Reset(opts.Debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			timer, fire = nil, nil
			logger.Debug("watcher: rescan")
			trigger(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Chmod != 0 && ev.Op&^fsnotify.Chmod == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if left, ok := remaining(levels, ev.Name); ok && left >= 0 {
						if err := addDirs(w, ev.Name, left, levels); err != nil {
							logger.Warn("watcher: add new dir failed",
								slog.String("path", ev.Name), slog.String("error", err.Error()))
						}
					}
				}
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// remaining reports how many more levels may be watched below dir, based on
// its parent's recorded budget.
func remaining(levels map[string]int, dir string) (int, bool) {
	left, ok := levels[filepath.Dir(dir)]
	return left - 1, ok
}

// addDirs watches root and its subdirectories, going at most budget levels
// deep. Hidden directories are skipped.
func addDirs(w *fsnotify.Watcher, root string, budget int, levels map[string]int) error {
	root = filepath.Clean(root)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(root, path)
		depth := 0
		if rel != "." {
			depth = strings.Count(rel, string(filepath.Separator)) + 1
		}
		left := budget - depth
		if left < 0 {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return err
		}
		levels[path] = left
		return nil
	})
}
