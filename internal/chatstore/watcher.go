// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher republishes a fresh snapshot when another process rewrites the
// slot file. It watches the containing directory, since atomic writes
// replace the file by rename, and debounces bursts of events. The
// watcher never participates in the mutation path.
type Watcher struct {
	svc      *Service
	fw       *fsnotify.Watcher
	base     string
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer

	done     chan struct{}
	stopOnce sync.Once
}

// WatchSlotFile starts watching the slot file at path, calling
// svc.Refresh when it changes. Close stops the watcher.
func WatchSlotFile(svc *Service, path string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		svc:      svc,
		fw:       fw,
		base:     filepath.Base(path),
		debounce: debounce,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.arm()

		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// Watch errors are not actionable here; the next successful
			// event still triggers a refresh.

		case <-w.done:
			return
		}
	}
}

// arm (re)starts the debounce timer; only the last event of a burst
// fires a refresh.
func (w *Watcher) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.svc.Refresh("watcher")
	})
}

// Close stops the watcher and any pending refresh.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.fw.Close()
	})
	return err
}
