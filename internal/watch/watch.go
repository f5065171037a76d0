// Package watch re-imports a folder when image files below it change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"photomap/internal/fsutil"
)

// Event is a change to a supported image file.
type Event struct {
	Path      string    `json:"path"`
	Operation string    `json:"operation"` // created, modified, deleted, renamed
	Time      time.Time `json:"time"`
}

// TriggerFunc is called once per quiet period with the events collected in
// it. An error keeps the events pending for the next period.
type TriggerFunc func(ctx context.Context, root string, events []Event) error

// Watcher monitors a folder tree.
type Watcher struct {
	root     string
	debounce time.Duration
	trigger  TriggerFunc
	log      *slog.Logger
	watcher  *fsnotify.Watcher
	events   chan Event
}

// New creates a watcher for root and every non-hidden directory below it.
func New(root string, debounce time.Duration, trigger TriggerFunc, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		debounce: debounce,
		trigger:  trigger,
		log:      log,
		watcher:  fw,
		events:   make(chan Event, 100),
	}
	if err := w.addTree(w.root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && fsutil.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.log.Debug("watching directory", "dir", path)
		return nil
	})
}

// Run converts raw notifications and fires the trigger after each quiet
// period. It returns when ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	go w.translate(ctx)

	var pending []Event
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev := <-w.events:
			pending = append(pending, ev)
			timer.Reset(w.debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			if err := w.trigger(ctx, w.root, pending); err != nil {
				w.log.Warn("re-import deferred", "root", w.root, "changes", len(pending), "error", err)
				timer.Reset(w.debounce)
				continue
			}
			pending = nil
		}
	}
}

func (w *Watcher) translate(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !fsutil.IsHidden(event.Name) {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}
			op := operation(event.Op)
			if op == "" || !fsutil.IsSupported(filepath.Base(event.Name), "") {
				continue
			}
			select {
			case w.events <- Event{Path: event.Name, Operation: op, Time: time.Now()}:
			default:
				w.log.Warn("event buffer full, dropping event", "path", event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("filesystem watcher error", "error", err)
		}
	}
}

func operation(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return "created"
	case op&fsnotify.Write == fsnotify.Write:
		return "modified"
	case op&fsnotify.Remove == fsnotify.Remove:
		return "deleted"
	case op&fsnotify.Rename == fsnotify.Rename:
		return "renamed"
	default:
		return ""
	}
}
