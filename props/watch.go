// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package props

import (
	"path/filepath"
	"sync"

	"github.com/devblok/kframe/core"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher unloads props whose files change on disk and reports them.
type Watcher struct {
	store    *Store
	onChange func(name string)
	log      logrus.FieldLogger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewWatcher watches the directories of every prop registered in store.
// onChange is called from the watcher goroutine.
func NewWatcher(store *Store, onChange func(name string), log logrus.FieldLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		store:    store,
		onChange: onChange,
		log:      core.Logger(log).WithField("component", "props.watch"),
		watcher:  fw,
	}

	dirs := make(map[string]struct{})
	for _, name := range store.Names() {
		filename, _ := store.Filename(name)
		dirs[filepath.Dir(store.Path(filename))] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			w.log.WithError(err).WithField("dir", dir).Warn("cannot watch prop directory")
		}
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.changed(filepath.Clean(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) changed(path string) {
	for _, name := range w.store.Names() {
		filename, ok := w.store.Filename(name)
		if !ok || filepath.Clean(w.store.Path(filename)) != path {
			continue
		}
		w.store.Unload(name)
		w.log.WithField("prop", name).Debug("prop changed")
		if w.onChange != nil {
			w.onChange(name)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
