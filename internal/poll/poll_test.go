// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package poll

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wontakkang/jais-backend-sub000/internal/kv"
	"github.com/wontakkang/jais-backend-sub000/internal/memmap"
	"github.com/wontakkang/jais-backend-sub000/xgt"
)

// fakeExecutor serves canned block payloads and a status word, and
// records the order of read requests.
type fakeExecutor struct {
	payloads map[string][]byte // "%MB0" -> block bytes
	plcInfo  uint16
	reads    []string
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, req xgt.Request) (*xgt.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	switch r := req.(type) {
	case *xgt.ContinuousReadRequest:
		name := fmt.Sprintf("%s%d", r.Memory, r.Address)
		f.reads = append(f.reads, name)
		payload, ok := f.payloads[name]
		if !ok {
			return nil, fmt.Errorf("no payload for %s", name)
		}
		return &xgt.Response{Command: xgt.CmdContinuousReadRes, Payload: payload}, nil
	case *xgt.StatusRequest:
		return &xgt.Response{
			Command: xgt.CmdSystemStatus,
			Status:  xgt.DecodeStatus(f.plcInfo, 0xA0),
		}, nil
	default:
		return nil, fmt.Errorf("unexpected request %T", req)
	}
}

func tempClient() *Client {
	return &Client{
		ID:       1,
		Endpoint: "192.168.0.10:2004",
		Blocks: []Block{
			{Memory: "%MB", Address: 0, Count: 8, FuncName: "continuous_read_bytes", GroupID: 5},
		},
		Groups: []*memmap.MemoryGroup{{
			ID:       5,
			ClientID: 1,
			Name:     "env",
			SizeByte: 8,
			Variables: []memmap.Variable{
				{ID: 10, Name: "temp", Device: "%MB", Address: 0, DataType: memmap.TypeInt, Unit: memmap.UnitWord, Scale: 0.1},
				{ID: 11, Name: "valve", Device: "%MB", Address: 2.0, DataType: memmap.TypeBool, Unit: memmap.UnitByte,
					Attributes: []string{memmap.AttrControl}},
			},
		}},
	}
}

func TestRunStagesDecodedValues(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryStore()

	// u16 LE 123 at offset 0; scale 0.1 yields 12.3.
	exec := &fakeExecutor{
		payloads: map[string][]byte{"%MB0": {0x7B, 0x00, 0x01, 0, 0, 0, 0, 0}},
		plcInfo:  0x01 | (0x01 << 7), // RUN
	}
	p := NewPoller(tempClient(), exec, cache)
	p.Status = NewStatusLog()

	require.NoError(t, p.Run(ctx))

	got, ok, err := cache.Get(ctx, kv.Key(1, 10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 12.3, got.Value.(float64), 1e-9)
	assert.Equal(t, kv.TagFloat, got.Type)

	st, ok := p.Status.Last(1)
	require.True(t, ok)
	assert.Equal(t, "RUN", st.Status.SystemStatus)
}

func TestRunReadsBlocksInDeclaredOrder(t *testing.T) {
	client := tempClient()
	client.Blocks = []Block{
		{Memory: "%MB", Address: 100, Count: 4, GroupID: 5},
		{Memory: "%MB", Address: 0, Count: 8, GroupID: 5},
		{Memory: "%DB", Address: 20, Count: 2, GroupID: 5},
	}
	exec := &fakeExecutor{payloads: map[string][]byte{
		"%MB100": make([]byte, 8),
		"%MB0":   make([]byte, 8),
		"%DB20":  make([]byte, 8),
	}}
	p := NewPoller(client, exec, kv.NewMemoryStore())

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"%MB100", "%MB0", "%DB20"}, exec.reads)
}

func TestRunSetupStagesOnlyControlVariables(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryStore()
	exec := &fakeExecutor{payloads: map[string][]byte{"%MB0": {0x7B, 0x00, 0x01, 0, 0, 0, 0, 0}}}
	p := NewPoller(tempClient(), exec, cache)

	require.NoError(t, p.RunSetup(ctx))

	_, ok, err := cache.Get(ctx, kv.Key(1, 10))
	require.NoError(t, err)
	assert.False(t, ok, "monitor-only variable must not stage on the setup cadence")

	got, ok, err := cache.Get(ctx, kv.Key(1, 11))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kv.TagBool, got.Type)
	assert.Equal(t, 1.0, got.Value)
}

func TestRunFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryStore()
	exec := &fakeExecutor{err: errors.New("transaction: response timeout")}
	p := NewPoller(tempClient(), exec, cache)

	require.Error(t, p.Run(ctx))
	all, err := cache.Scan(ctx, "*:*")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestObserverSwapsDecodeContext(t *testing.T) {
	ctx := context.Background()
	cache := kv.NewMemoryStore()
	exec := &fakeExecutor{payloads: map[string][]byte{"%MB0": {0x7B, 0x00, 0x01, 0, 0, 0, 0, 0}}}
	p := NewPoller(tempClient(), exec, cache)

	reg := memmap.NewRegistry()
	reg.Register(p)
	reg.Notify(memmap.GroupEvent{Group: &memmap.MemoryGroup{
		ID:       5,
		ClientID: 1,
		Name:     "env",
		SizeByte: 8,
		Variables: []memmap.Variable{
			// Same wire bytes, new scale.
			{ID: 10, Name: "temp", Device: "%MB", Address: 0, DataType: memmap.TypeInt, Unit: memmap.UnitWord, Scale: 0.01},
		},
	}, Fields: []string{"variables"}})

	require.NoError(t, p.Run(ctx))
	got, ok, err := cache.Get(ctx, kv.Key(1, 10))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1.23, got.Value.(float64), 1e-9)
}

func TestStatusTransitionAppendsOneEntry(t *testing.T) {
	l := NewStatusLog()

	stop := xgt.DecodeStatus(0x01|(0x02<<7), 0xA0) // STOP
	run := xgt.DecodeStatus(0x01|(0x01<<7), 0xA0)  // RUN

	changed, err := l.Observe(1, stop)
	require.NoError(t, err)
	assert.False(t, changed, "first observation sets the baseline")

	changed, err = l.Observe(1, stop)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, l.Entries())

	changed, err = l.Observe(1, run)
	require.NoError(t, err)
	assert.True(t, changed)

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "STOP -> RUN", entries[0].Message)
	assert.Equal(t, 1, entries[0].ClientID)
}
