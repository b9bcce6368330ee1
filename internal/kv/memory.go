// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package kv

import (
	"context"
	"path"
	"sync"
	"time"
)

// MemoryStore is the default in-process backend: a mutex-guarded map
// with glob scanning.
type MemoryStore struct {
	mu      sync.RWMutex
	samples map[string]Sample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{samples: make(map[string]Sample)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (Sample, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.samples[key]
	return s, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value any, tag TypeTag) error {
	m.mu.Lock()
	m.samples[key] = Sample{Value: value, Type: tag, UpdatedAt: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Scan(ctx context.Context, pattern string) (map[string]Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Sample)
	for key, s := range m.samples {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = s
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
