// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import "sync"

// watcherSet is the shared Watch bookkeeping for store implementations.
type watcherSet struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]WatchFunc
}

func newWatcherSet() *watcherSet {
	return &watcherSet{fns: make(map[int]WatchFunc)}
}

func (w *watcherSet) add(fn WatchFunc) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.fns[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.fns, id)
	}
}

// notify fires every registered watcher for key. Runs synchronously so
// observers see the mutation ordering the writer produced.
func (w *watcherSet) notify(key string) {
	w.mu.Lock()
	fns := make([]WatchFunc, 0, len(w.fns))
	for _, fn := range w.fns {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}
