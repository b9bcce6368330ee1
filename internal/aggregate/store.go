// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package aggregate

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists aggregate rows. (Timestamp, VarID) is the unique key
// within one resolution; Upsert replaces an existing row completely.
type Store interface {
	Upsert(ctx context.Context, res Resolution, rows []Row) error
	// Range returns the rows of res with Timestamp in [from, to),
	// ordered by (Timestamp, VarID).
	Range(ctx context.Context, res Resolution, from, to time.Time) ([]Row, error)
	Close() error
}

type rowKey struct {
	ts    int64
	varID int
}

// MemoryStore keeps the four bucket tables in process memory. It is
// the default backend and the fixture for aggregation tests.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[Resolution]map[rowKey]Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[Resolution]map[rowKey]Row)}
}

func (m *MemoryStore) Upsert(ctx context.Context, res Resolution, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.tables[res]
	if !ok {
		table = make(map[rowKey]Row)
		m.tables[res] = table
	}
	for _, r := range rows {
		table[rowKey{ts: r.Timestamp.Unix(), varID: r.VarID}] = r
	}
	return nil
}

func (m *MemoryStore) Range(ctx context.Context, res Resolution, from, to time.Time) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Row
	for _, r := range m.tables[res] {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].VarID < out[j].VarID
	})
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
