package configuration

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reloads the mock servers whose pact file changed. Events are debounced, so an
// editor writing a file in several steps triggers a single reload.
type Watcher struct {
	files    map[string]bool
	debounce time.Duration
	reload   func(path string)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
}

// WatchPactFiles watches the given pact files and reloads the servers serving a file after
// it changed.
func WatchPactFiles(files []string) (*Watcher, error) {
	return NewWatcher(files, defaultDebounce, func(path string) {
		for _, name := range ServersForPact(path) {
			if err := ReloadServer(name); err != nil {
				log.WithError(err).Errorf("unable to reload mock server %q", name)
			}
		}
	})
}

// NewWatcher calls reload with the path of every changed file. Directories are watched
// instead of the files so files replaced by a rename are still seen.
func NewWatcher(files []string, debounce time.Duration, reload func(path string)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create file watcher")
	}

	w := &Watcher{
		files:    map[string]bool{},
		debounce: debounce,
		reload:   reload,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}
	dirs := map[string]bool{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fsWatcher.Close()
			return nil, errors.Wrapf(err, "unable to watch %s", f)
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fsWatcher.Add(dir); err != nil {
			fsWatcher.Close()
			return nil, errors.Wrapf(err, "unable to watch %s", dir)
		}
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) Close() {
	close(w.done)
	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := map[string]bool{}

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			path, err := filepath.Abs(event.Name)
			if err != nil || !w.files[path] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.WithFields(log.Fields{"file": path, "op": event.Op.String()}).Debug("pact file changed")
			pending[path] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Error("pact file watcher failed")

		case <-timerC:
			for path := range pending {
				log.Infof("reloading %s", path)
				w.reload(path)
			}
			pending = map[string]bool{}
			timerC = nil
		}
	}
}
