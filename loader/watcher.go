package loader

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/lcx/pluginhost/dylib"
	"github.com/lcx/pluginhost/log"
)

// Watcher observes a directory for plugin libraries appearing at runtime.
// In lazy mode a new library is bound to the owning MultiLoader immediately
// (binding a lazy loader does not open the module); in eager mode the
// library is only announced in the log, since auto-opening code the
// operator did not ask for would be a surprise.
type Watcher struct {
	ml   *MultiLoader
	fw   *fsnotify.Watcher
	done chan struct{}
}

// WatchDirectory starts watching dir for files with the platform library
// suffix. Stop the returned Watcher when done.
func (ml *MultiLoader) WatchDirectory(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{ml: ml, fw: fw, done: make(chan struct{})}
	go w.run()
	log.Debug().Str("dir", dir).Msg("watching directory for plugin libraries")
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			// A rename into the directory arrives as a Create for the new
			// name; the Rename event carries the old, now-gone name and
			// must not be bound.
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			w.announce(event.Name)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("plugin directory watcher error")
		}
	}
}

func (w *Watcher) announce(path string) {
	if !strings.HasSuffix(filepath.Base(path), dylib.Suffix()) {
		return
	}
	if !w.ml.IsLazyLoadUnload() {
		log.Info().Str("library", path).Msg("new plugin library discovered; load it explicitly with LoadLibrary")
		return
	}
	if err := w.ml.LoadLibrary(path); err != nil {
		log.Warn().Str("library", path).Err(err).Msg("failed to bind discovered plugin library")
		return
	}
	log.Info().Str("library", path).Msg("discovered plugin library bound")
}

// Stop shuts the watcher down and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	_ = w.fw.Close()
	<-w.done
}
