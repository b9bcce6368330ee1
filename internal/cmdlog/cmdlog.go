// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package cmdlog records device commands and their outcomes. Every
// control value walks pending -> sent -> acknowledged ->
// completed|failed, and every state mutation appends a history row.
package cmdlog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Status of a control value.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusAcknowledged Status = "acknowledged"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// transitions lists the states reachable from each state. Failed is
// reachable from any non-terminal state.
var transitions = map[Status][]Status{
	StatusPending:      {StatusSent, StatusFailed},
	StatusSent:         {StatusAcknowledged, StatusFailed},
	StatusAcknowledged: {StatusCompleted, StatusFailed},
}

// TransitionError reports a lifecycle move the log refuses.
type TransitionError struct {
	ID   int
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cmdlog: control %d: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// ControlValue is one user-initiated command record.
type ControlValue struct {
	ID        int
	CreatedAt time.Time
	UpdatedAt time.Time
	User      string
	Command   string
	// Target is the device identity: host:port for a PLC, the node
	// serial for an MCU.
	Target   string
	Payload  []byte
	Response []byte
	Status   Status
	Message  string
	// Environment is a free-form snapshot taken when the command was
	// issued (decoded device status, staged values).
	Environment map[string]any
}

// PayloadHex renders the request bytes for operator display.
func (c *ControlValue) PayloadHex() string { return hex.EncodeToString(c.Payload) }

// ResponseHex renders the response bytes, empty when none arrived.
func (c *ControlValue) ResponseHex() string { return hex.EncodeToString(c.Response) }

// History is one append-only state mutation record.
type History struct {
	Time      time.Time
	ControlID int
	From      Status
	To        Status
	Message   string
}

// Log is the in-process command history. It owns the lifecycle: all
// mutations go through Begin and Transition.
type Log struct {
	mu      sync.Mutex
	next    int
	values  map[int]*ControlValue
	history []History
}

func NewLog() *Log {
	return &Log{next: 1, values: make(map[int]*ControlValue)}
}

// Begin opens a pending control value and appends its first history
// row.
func (l *Log) Begin(user, command, target string, payload []byte) *ControlValue {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cv := &ControlValue{
		ID:        l.next,
		CreatedAt: now,
		UpdatedAt: now,
		User:      user,
		Command:   command,
		Target:    target,
		Payload:   append([]byte(nil), payload...),
		Status:    StatusPending,
	}
	l.next++
	l.values[cv.ID] = cv
	l.history = append(l.history, History{Time: now, ControlID: cv.ID, To: StatusPending})
	return l.snapshot(cv)
}

// Transition moves the control value to a new state, recording the
// response bytes and message. Illegal moves are refused.
func (l *Log) Transition(id int, to Status, response []byte, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cv, ok := l.values[id]
	if !ok {
		return fmt.Errorf("cmdlog: unknown control %d", id)
	}

	if !allowed(cv.Status, to) {
		return &TransitionError{ID: id, From: cv.Status, To: to}
	}

	now := time.Now()
	from := cv.Status
	cv.Status = to
	cv.UpdatedAt = now
	if response != nil {
		cv.Response = append([]byte(nil), response...)
	}
	if message != "" {
		cv.Message = message
	}
	l.history = append(l.history, History{Time: now, ControlID: id, From: from, To: to, Message: message})
	return nil
}

// SetEnvironment attaches the environmental snapshot to the record.
func (l *Log) SetEnvironment(id int, env map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cv, ok := l.values[id]
	if !ok {
		return fmt.Errorf("cmdlog: unknown control %d", id)
	}
	cv.Environment = env
	return nil
}

// Get returns a copy of the control value.
func (l *Log) Get(id int) (*ControlValue, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cv, ok := l.values[id]
	if !ok {
		return nil, false
	}
	return l.snapshot(cv), true
}

// HistoryOf returns the mutation rows of one control value in order.
func (l *Log) HistoryOf(id int) []History {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []History
	for _, h := range l.history {
		if h.ControlID == id {
			out = append(out, h)
		}
	}
	return out
}

func (l *Log) snapshot(cv *ControlValue) *ControlValue {
	cp := *cv
	cp.Payload = append([]byte(nil), cv.Payload...)
	cp.Response = append([]byte(nil), cv.Response...)
	return &cp
}

func allowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NormalizeJSON renders v as JSON with sorted keys so two encodings
// of the same document compare equal regardless of field order.
func NormalizeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cmdlog: marshal: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("cmdlog: normalize: %w", err)
	}
	norm, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("cmdlog: normalize: %w", err)
	}
	return string(norm), nil
}
