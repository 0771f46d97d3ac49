package sandbox

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/logging"
)

// reloadDebounce coalesces the burst of write events editors emit when
// saving a file.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads a policy file when it changes on disk, so an operator
// can tighten or loosen the sandbox without restarting long-lived runs.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onReload func(*Policy)
	logger   *logging.Logger
	stopCh   chan struct{}
}

// WatchPolicy starts watching the policy file at path. onReload is called
// with each successfully loaded policy; load failures are logged and the
// previous policy stays in effect.
func WatchPolicy(path string, onReload func(*Policy), logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a direct file watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		path:     path,
		onReload: onReload,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}

// loop debounces filesystem events and triggers reloads.
func (w *Watcher) loop() {
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("policy watcher error", "error", err)
		}
	}
}

// reload loads and publishes the policy, keeping the old one on failure.
func (w *Watcher) reload() {
	policy, err := Load(w.path)
	if err != nil {
		w.logger.Warn("policy reload failed, keeping previous policy",
			"path", w.path, "error", err)
		return
	}
	w.logger.Info("sandbox policy reloaded", "path", w.path)
	w.onReload(policy)
}
