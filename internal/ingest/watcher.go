package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/ignore"
	"github.com/fyrsmithlabs/policyrag/internal/logging"
)

// DefaultDebounce is the quiet period after the last change before a rebuild.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatcherFailed indicates the filesystem watcher could not be set up.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Watcher rebuilds the collection when matching documents change.
type Watcher struct {
	ingester *Ingester
	dir      string
	pattern  string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	reports  chan *Report
	logger   *logging.Logger
}

// NewWatcher watches dir and its subdirectories.
func NewWatcher(ingester *Ingester, dir, pattern string, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.Nop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	w := &Watcher{
		ingester: ingester,
		dir:      dir,
		pattern:  pattern,
		debounce: debounce,
		watcher:  fw,
		reports:  make(chan *Report, 1),
		logger:   logger.Named("watcher"),
	}
	if err := w.addTree(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, path, err)
		}
		return nil
	})
}

// Reports delivers the report of each rebuild. Reports are dropped when the
// previous one has not been received.
func (w *Watcher) Reports() <-chan *Report {
	return w.reports
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.Info(ctx, "watching for document changes",
		zap.String("dir", w.dir),
		zap.String("pattern", w.pattern),
		zap.Duration("debounce", w.debounce),
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn(ctx, "failed to watch new directory", zap.Error(err))
					}
					continue
				}
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug(ctx, "document changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.rebuild(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	rel, err := filepath.Rel(w.dir, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == ignore.FileName {
		return true
	}
	ok, err := doublestar.Match(w.pattern, rel)
	return err == nil && ok
}

func (w *Watcher) rebuild(ctx context.Context) {
	report, err := w.ingester.Reindex(ctx, w.dir, w.pattern)
	if err != nil {
		w.logger.Error(ctx, "rebuild failed", zap.Error(err))
		return
	}
	if ferr := report.Err(); ferr != nil {
		w.logger.Warn(ctx, "rebuild completed with failures", zap.Error(ferr))
	}
	select {
	case w.reports <- report:
	default:
	}
}
