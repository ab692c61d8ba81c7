package host

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/danieljhkim/assetmirror/internal/engine"
)

// DefaultDebounce is the quiet period before a changed unit is re-mirrored.
const DefaultDebounce = 200 * time.Millisecond

// ErrWatchCompiled is returned when watching is requested in compiled mode,
// where the destination already tracks the source through its link.
var ErrWatchCompiled = errors.New("watch requires runtime mode")

// Watcher re-mirrors units whose source trees change.
type Watcher struct {
	runner   *Runner
	units    []engine.Mirrorable
	roots    map[string][]string // absolute source -> unit ids
	byID     map[string]engine.Mirrorable
	debounce time.Duration
	logger   *zap.Logger
	watcher  *fsnotify.Watcher

	// OnPass is called after every pass, including the initial sync.
	OnPass func(Outcome)
}

// NewWatcher creates a filesystem watcher for the given units.
func NewWatcher(runner *Runner, units []engine.Mirrorable, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	if runner.Mode() != engine.ModeRuntime {
		return nil, ErrWatchCompiled
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	roots := make(map[string][]string, len(units))
	byID := make(map[string]engine.Mirrorable, len(units))
	for _, u := range units {
		abs, err := filepath.Abs(u.AssetsDir())
		if err != nil {
			return nil, err
		}
		roots[abs] = append(roots[abs], u.UnitID())
		byID[u.UnitID()] = u
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		runner:   runner,
		units:    units,
		roots:    roots,
		byID:     byID,
		debounce: debounce,
		logger:   logger,
		watcher:  w,
	}, nil
}

// Run mirrors every unit once, then re-mirrors units as their sources
// change. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for root, ids := range w.roots {
		if err := w.addRecursive(root); err != nil {
			w.logger.Warn("source not watched", zap.Strings("units", ids), zap.String("path", root), zap.Error(err))
		}
	}

	outcomes, _ := w.runner.MirrorAll(ctx, w.units)
	for _, o := range outcomes {
		w.report(o)
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			ids := w.unitsFor(event.Name)
			if len(ids) == 0 {
				continue
			}
			for _, id := range ids {
				pending[id] = struct{}{}
			}
			timer.Reset(w.debounce)

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			for id := range pending {
				result, err := w.runner.MirrorOne(ctx, w.byID[id])
				w.report(Outcome{UnitID: id, Result: result, Err: err})
			}
			pending = make(map[string]struct{})
		}
	}
}

// unitsFor returns the ids of every unit whose source contains path.
// Nested and shared sources all see the change, since each unit's
// destination holds its own copy of the file.
func (w *Watcher) unitsFor(path string) []string {
	var ids []string
	for root, rootIDs := range w.roots {
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		ids = append(ids, rootIDs...)
	}
	sort.Strings(ids)
	return ids
}

// addRecursive adds a directory and all subdirectories to the watcher.
// Symlinked directories are not followed.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) report(o Outcome) {
	if w.OnPass != nil {
		w.OnPass(o)
	}
}
