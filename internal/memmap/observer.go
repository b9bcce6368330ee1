// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package memmap

import "sync"

// GroupEvent describes one memory-group mutation. Fields lists the
// attribute names that changed; an empty list means a full reload.
type GroupEvent struct {
	Group  *MemoryGroup
	Fields []string
}

// GroupObserver mirrors dependent state when a memory group mutates.
// The poller registers one to keep its decode context current.
type GroupObserver interface {
	OnMemoryGroupChanged(ev GroupEvent)
}

// Registry fans group events out to observers. Mutators call Notify
// at the point of mutation; there is no reflective hook.
type Registry struct {
	mu        sync.RWMutex
	observers []GroupObserver
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(o GroupObserver) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

func (r *Registry) Notify(ev GroupEvent) {
	r.mu.RLock()
	observers := make([]GroupObserver, len(r.observers))
	copy(observers, r.observers)
	r.mu.RUnlock()

	for _, o := range observers {
		o.OnMemoryGroupChanged(ev)
	}
}
