// DEADEND - No-response TCP server
//
// Copyright (c) 2014-2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//
package main

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/papercutsoftware/deadend/service/config"
)

// reloadWatcher fires when the reload file appears. The file is deleted
// before the reload so one touch means one reload.
type reloadWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func watchForReload(ctx *runContext) (*reloadWatcher, error) {
	f := ctx.conf.ServiceConfig.ReloadFile
	if f == "" || f == config.Disabled {
		return nil, nil
	}
	return newReloadWatcher(f, ctx.logger.Printf, func() {
		ctx.logger.Printf("Reload requested")
		restart(ctx)
	})
}

func newReloadWatcher(file string, logf func(string, ...interface{}), onReload func()) (*reloadWatcher, error) {
	path, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	// A stale request from before we started is not a request.
	os.Remove(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the folder; the file itself does not exist yet.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	rw := &reloadWatcher{path: path, watcher: w, done: make(chan struct{})}
	go rw.run(logf, onReload)
	return rw, nil
}

func (rw *reloadWatcher) run(logf func(string, ...interface{}), onReload func()) {
	defer close(rw.done)
	for {
		select {
		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rw.path {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if err := os.Remove(rw.path); err == nil {
				onReload()
			}
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			logf("WARNING: Reload watcher: %v", err)
		}
	}
}

func (rw *reloadWatcher) stop() {
	rw.watcher.Close()
	<-rw.done
}
