package workspace

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadSettle coalesces the write bursts editors produce for one save.
const reloadSettle = 200 * time.Millisecond

// Watcher reloads the settings manager when its file changes on disk, so
// edits made outside the server take effect without a restart.
type Watcher struct {
	manager *SettingsManager
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching the settings file's directory. Watching the
// directory rather than the file survives the atomic rename most editors
// (and our own saver) use.
func NewWatcher(manager *SettingsManager) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(manager.Path())); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		manager: manager,
		fsw:     fsw,
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	target := filepath.Clean(w.manager.Path())
	var settle *time.Timer

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(reloadSettle, func() {
				if err := w.manager.Reload(); err != nil {
					log.Warn().Err(err).Msg("failed to reload settings after file change")
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("settings watcher error")
		}
	}
}
