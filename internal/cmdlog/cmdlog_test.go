// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmdlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleHappyPath(t *testing.T) {
	l := NewLog()
	cv := l.Begin("operator", "DO_WRITE", "node 00 11 22 33 44 55 66 77", []byte{0x03, 0x01})
	assert.Equal(t, StatusPending, cv.Status)
	assert.Equal(t, "0301", cv.PayloadHex())

	require.NoError(t, l.Transition(cv.ID, StatusSent, nil, ""))
	require.NoError(t, l.Transition(cv.ID, StatusAcknowledged, []byte{0x24}, ""))
	require.NoError(t, l.Transition(cv.ID, StatusCompleted, nil, "DO3 set"))

	got, ok := l.Get(cv.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "24", got.ResponseHex())
	assert.Equal(t, "DO3 set", got.Message)

	hist := l.HistoryOf(cv.ID)
	require.Len(t, hist, 4, "every mutation appends one history row")
	assert.Equal(t, StatusPending, hist[0].To)
	assert.Equal(t, StatusSent, hist[1].To)
	assert.Equal(t, StatusAcknowledged, hist[2].To)
	assert.Equal(t, StatusCompleted, hist[3].To)
}

func TestIllegalTransitionsRefused(t *testing.T) {
	l := NewLog()
	cv := l.Begin("", "RUN", "192.168.0.10:2004", nil)

	err := l.Transition(cv.ID, StatusCompleted, nil, "")
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusPending, terr.From)

	require.NoError(t, l.Transition(cv.ID, StatusSent, nil, ""))
	require.NoError(t, l.Transition(cv.ID, StatusFailed, nil, "timeout"))

	// Terminal states accept nothing further.
	assert.Error(t, l.Transition(cv.ID, StatusSent, nil, ""))
	assert.Error(t, l.Transition(cv.ID, StatusCompleted, nil, ""))
}

func TestFailedReachableFromAnyNonTerminalState(t *testing.T) {
	l := NewLog()
	for _, prep := range [][]Status{
		{},
		{StatusSent},
		{StatusSent, StatusAcknowledged},
	} {
		cv := l.Begin("", "STOP", "192.168.0.10:2004", nil)
		for _, s := range prep {
			require.NoError(t, l.Transition(cv.ID, s, nil, ""))
		}
		assert.NoError(t, l.Transition(cv.ID, StatusFailed, nil, "boom"))
	}
}

func TestNormalizeJSONIgnoresKeyOrder(t *testing.T) {
	a, err := NormalizeJSON(map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	b, err := NormalizeJSON(map[string]any{"a": "x", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NormalizeJSON(map[string]any{"a": "x", "b": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestUnknownControl(t *testing.T) {
	l := NewLog()
	assert.Error(t, l.Transition(99, StatusSent, nil, ""))
	_, ok := l.Get(99)
	assert.False(t, ok)
}
