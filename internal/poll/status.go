// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package poll

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wontakkang/jais-backend-sub000/xgt"
)

// ClientStatus is the latest decoded system status of one client.
type ClientStatus struct {
	Status    *xgt.DetailedStatus
	UpdatedAt time.Time
}

// LogEntry is one append-only status transition record.
type LogEntry struct {
	Time     time.Time
	ClientID int
	Message  string
	Status   *xgt.DetailedStatus
}

// StatusLog tracks the last detailed status per client and appends a
// transition entry whenever it changes. Change detection compares the
// status as sorted-key JSON plus the error code, so key ordering can
// never produce a spurious entry. The update and the log append
// happen under one lock.
type StatusLog struct {
	mu      sync.Mutex
	last    map[int]trackedStatus
	entries []LogEntry
}

type trackedStatus struct {
	norm      string
	errorCode int
	status    ClientStatus
}

func NewStatusLog() *StatusLog {
	return &StatusLog{last: make(map[int]trackedStatus)}
}

// Observe records the status and reports whether it differs from the
// previous observation. The first observation of a client sets the
// baseline without a log entry.
func (l *StatusLog) Observe(clientID int, ds *xgt.DetailedStatus) (changed bool, err error) {
	norm, err := normalizeStatus(ds)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	prev, seen := l.last[clientID]
	l.last[clientID] = trackedStatus{
		norm:      norm,
		errorCode: ds.ErrorCode,
		status:    ClientStatus{Status: ds, UpdatedAt: now},
	}

	if !seen {
		return false, nil
	}
	if prev.norm == norm && prev.errorCode == ds.ErrorCode {
		return false, nil
	}

	l.entries = append(l.entries, LogEntry{
		Time:     now,
		ClientID: clientID,
		Message:  fmt.Sprintf("%s -> %s", prev.status.Status.SystemStatus, ds.SystemStatus),
		Status:   ds,
	})
	return true, nil
}

// Last returns the most recent status observed for the client.
func (l *StatusLog) Last(clientID int) (ClientStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.last[clientID]
	return t.status, ok
}

// Entries returns a copy of the transition log.
func (l *StatusLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// normalizeStatus renders the status as JSON with sorted keys by
// round-tripping it through a map.
func normalizeStatus(ds *xgt.DetailedStatus) (string, error) {
	raw, err := json.Marshal(ds)
	if err != nil {
		return "", fmt.Errorf("poll: marshal status: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", fmt.Errorf("poll: normalize status: %w", err)
	}
	norm, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("poll: normalize status: %w", err)
	}
	return string(norm), nil
}
