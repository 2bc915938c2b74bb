package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher monitors a catalog directory tree with fsnotify and calls reload
// once the tree has been quiet for the debounce interval. Subdirectories are
// watched too, matching what Loader.LoadDir scans.
type Watcher struct {
	Dir      string
	Debounce time.Duration

	reload  func() error
	logger  *zap.Logger
	done    chan struct{}
	started atomic.Bool
	watcher *fsnotify.Watcher

	// dirs is owned by Start until the loop runs, then by the loop.
	dirs map[string]struct{}
}

// NewWatcher creates a watcher for dir. reload is called from the watcher's
// goroutine; its error is logged and the previous snapshot stays active.
func NewWatcher(dir string, reload func() error, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		Dir:      dir,
		Debounce: defaultDebounce,
		reload:   reload,
		logger:   logger,
		done:     make(chan struct{}),
		watcher:  fw,
		dirs:     make(map[string]struct{}),
	}, nil
}

// Start begins watching the directory and every directory below it.
func (w *Watcher) Start() error {
	if w.Debounce <= 0 {
		w.Debounce = defaultDebounce
	}
	if err := w.addTree(w.Dir); err != nil {
		return err
	}
	w.started.Store(true)
	go w.loop()
	return nil
}

// Stop closes the watcher and, if Start succeeded, waits for the loop to
// exit. It is safe to call after a failed Start or without Start.
func (w *Watcher) Stop() {
	w.watcher.Close()
	if w.started.Load() {
		<-w.done
	}
}

// addTree watches root and all directories below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.dirs[path] = struct{}{}
		return nil
	})
}

// relevant reports whether event may change the catalog. A directory created
// under the tree is watched from then on.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if _, ok := w.dirs[event.Name]; ok && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		delete(w.dirs, event.Name)
		return true
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("catalog watcher cannot watch directory",
					zap.String("dir", event.Name),
					zap.Error(err),
				)
			}
			return true
		}
	}
	if !isProductFile(event.Name) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func (w *Watcher) loop() {
	defer close(w.done)

	var (
		pending bool
		last    time.Time
	)
	ticker := time.NewTicker(w.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				pending = true
				last = time.Now()
			}

		case <-ticker.C:
			if pending && time.Since(last) >= w.Debounce {
				pending = false
				w.fire()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) fire() {
	if err := w.reload(); err != nil {
		w.logger.Error("catalog reload failed, keeping previous snapshot",
			zap.String("dir", w.Dir),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("catalog reloaded", zap.String("dir", w.Dir))
}

func isProductFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
