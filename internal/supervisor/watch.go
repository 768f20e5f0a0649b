package supervisor

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher is a best-effort diagnostic observer over the service
// directory: it logs when flag.down, flag.once, or rc.log changes
// while the supervisor is running, but never mutates supervisor
// state — flag files and rc.log's presence are only consulted at boot
// (setupService), exactly as in the original. This
// repurposes tools/supervisor's fsnotify-driven directory watch for a
// logging-only role.
type dirWatcher struct {
	sv      *Supervisor
	watcher *fsnotify.Watcher
}

func newDirWatcher(sv *Supervisor) *dirWatcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logWarning("diagnostic directory watch disabled: %v", err)
		return nil
	}
	if err := w.Add(sv.svdir); err != nil {
		logWarning("diagnostic directory watch disabled: %v", err)
		w.Close()
		return nil
	}
	return &dirWatcher{sv: sv, watcher: w}
}

func (w *dirWatcher) run() {
	if w == nil {
		return
	}
	defer w.watcher.Close()

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logWarning("directory watch error: %v", err)
		}
	}
}

func (w *dirWatcher) handle(ev fsnotify.Event) {
	switch filepath.Base(ev.Name) {
	case "flag.down", "flag.once", "rc.log":
		logDebug("noticed %s on %s (takes effect on next boot)", ev.Op, ev.Name)
	}
}
