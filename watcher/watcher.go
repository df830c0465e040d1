// Package watcher watches a workspace root for file changes and reports
// them as LSP-shaped FileChange batches, debounced so a save that touches
// several files (a formatter, a generated-code rewrite) produces one
// notification instead of a storm of them. It prefers the OS-native
// fsnotify backend and falls back to polling for filesystems where
// fsnotify doesn't deliver events (common on some container bind mounts).
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"catenary/logger"
)

type ChangeType int

const (
	Created ChangeType = iota + 1
	Changed
	Deleted
)

type FileChange struct {
	URI  string
	Type ChangeType
}

type Mode string

const (
	ModeOff      Mode = "off"
	ModeFsnotify Mode = "fsnotify"
	ModePolling  Mode = "polling"
	ModeAuto     Mode = "auto"
)

var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, ".hg": {}, ".svn": {},
}

const debounceWindow = 500 * time.Millisecond

// Watcher watches one workspace root.
type Watcher struct {
	root       string
	extensions []string
	mode       Mode
	log        *logger.Logger

	fsw    *fsnotify.Watcher
	poll   *PollingWatcher
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]ChangeType
	timer   *time.Timer
	notify  func([]FileChange)
}

func New(root string, extensions []string, mode Mode, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.NoOp()
	}
	if mode == "" {
		mode = ModeAuto
	}
	return &Watcher{root: root, extensions: extensions, mode: mode, log: log, pending: make(map[string]ChangeType)}
}

// Start begins watching and calls notify with each debounced batch of
// changes until ctx is canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context, notify func([]FileChange)) error {
	if w.mode == ModeOff {
		return nil
	}
	w.notify = notify
	ctx, w.cancel = context.WithCancel(ctx)

	if w.mode == ModeFsnotify || w.mode == ModeAuto {
		if err := w.startFsnotify(ctx); err == nil {
			return nil
		} else {
			w.log.Warn("fsnotify unavailable, falling back to polling", "error", err.Error())
		}
	}

	w.poll = NewPollingWatcher(w.root, w.extensions, pollingIntervalFromEnv(), pollingWorkersFromEnv(), w.queueChange)
	w.poll.Start(ctx)
	return nil
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	if w.poll != nil {
		w.poll.Stop()
	}
}

func (w *Watcher) startFsnotify(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	err = filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if shouldSkipDir(info.Name()) {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	go w.runFsnotify(ctx)
	return nil
}

func shouldSkipDir(name string) bool {
	if _, ok := skipDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func (w *Watcher) runFsnotify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.matchesExtension(event.Name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Create != 0:
				w.queueChange(event.Name, Created)
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
				}
			case event.Op&fsnotify.Write != 0:
				w.queueChange(event.Name, Changed)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				w.queueChange(event.Name, Deleted)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("fsnotify error", "error", err.Error())
		}
	}
}

func (w *Watcher) matchesExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, e := range w.extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (w *Watcher) queueChange(path string, t ChangeType) {
	uri := pathToURI(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[uri] = t
	if w.timer == nil {
		w.timer = time.AfterFunc(debounceWindow, w.flush)
	} else {
		w.timer.Reset(debounceWindow)
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	changes := make([]FileChange, 0, len(w.pending))
	for uri, t := range w.pending {
		changes = append(changes, FileChange{URI: uri, Type: t})
	}
	w.pending = make(map[string]ChangeType)
	w.timer = nil
	notify := w.notify
	w.mu.Unlock()

	if notify != nil && len(changes) > 0 {
		notify(changes)
	}
}

func pathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
