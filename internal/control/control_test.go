// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package control

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wontakkang/jais-backend-sub000/internal/cmdlog"
	"github.com/wontakkang/jais-backend-sub000/internal/memmap"
	"github.com/wontakkang/jais-backend-sub000/mcu"
	"github.com/wontakkang/jais-backend-sub000/xgt"
)

// fakePLC records dialed executors so tests can verify the
// fresh-connection-per-command policy.
type fakePLC struct {
	dials     int
	closes    int
	requests  []xgt.Request
	plcInfo   uint16
	execErr   error
	statusErr error
}

type fakePLCConn struct{ p *fakePLC }

func (p *fakePLC) dialer(endpoint string) PLCExecutor {
	p.dials++
	return &fakePLCConn{p: p}
}

func (c *fakePLCConn) Execute(ctx context.Context, req xgt.Request) (*xgt.Response, error) {
	c.p.requests = append(c.p.requests, req)
	if _, ok := req.(*xgt.StatusRequest); ok {
		if c.p.statusErr != nil {
			return nil, c.p.statusErr
		}
		return &xgt.Response{Command: xgt.CmdSystemStatus, Status: xgt.DecodeStatus(c.p.plcInfo, 0xA0)}, nil
	}
	if c.p.execErr != nil {
		return nil, c.p.execErr
	}
	return &xgt.Response{Command: xgt.CmdContinuousWriteRes}, nil
}

func (c *fakePLCConn) Close() error {
	c.p.closes++
	return nil
}

func TestPLCCommandsDialFreshConnections(t *testing.T) {
	plc := &fakePLC{plcInfo: 0x01 | (0x01 << 7)}
	c := &PLCCommander{Endpoint: "192.168.0.10:2004", Log: cmdlog.NewLog(), Dial: plc.dialer}

	assert.Equal(t, StatusSuccess, c.Stop(context.Background(), "op").Status)
	assert.Equal(t, StatusSuccess, c.Run(context.Background(), "op").Status)

	assert.Equal(t, 2, plc.dials, "every command must open its own connection")
	assert.Equal(t, 2, plc.closes)
}

func TestPLCStopRecordsLifecycle(t *testing.T) {
	plc := &fakePLC{plcInfo: 0x01 | (0x02 << 7)}
	log := cmdlog.NewLog()
	c := &PLCCommander{Endpoint: "192.168.0.10:2004", Log: log, Dial: plc.dialer}

	res := c.Stop(context.Background(), "op")
	require.Equal(t, StatusSuccess, res.Status)

	cv, ok := log.Get(1)
	require.True(t, ok)
	assert.Equal(t, cmdlog.StatusCompleted, cv.Status)
	assert.Equal(t, "STOP", cv.Command)
	require.NotNil(t, cv.Environment)
	after := cv.Environment["after"].(*xgt.DetailedStatus)
	assert.Equal(t, "STOP", after.SystemStatus)

	hist := log.HistoryOf(1)
	require.Len(t, hist, 4)
	assert.Equal(t, cmdlog.StatusCompleted, hist[3].To)
}

func TestPLCFailureMarksRecordFailed(t *testing.T) {
	plc := &fakePLC{execErr: errors.New("transaction: response timeout")}
	log := cmdlog.NewLog()
	c := &PLCCommander{Endpoint: "192.168.0.10:2004", Log: log, Dial: plc.dialer}

	res := c.Run(context.Background(), "op")
	assert.Equal(t, StatusFailure, res.Status)
	assert.Contains(t, res.Message, "timeout")

	cv, _ := log.Get(1)
	assert.Equal(t, cmdlog.StatusFailed, cv.Status)
}

func TestPLCWriteVariableEncodesThroughDecoder(t *testing.T) {
	plc := &fakePLC{plcInfo: 0x01 | (0x01 << 7)}
	c := &PLCCommander{Endpoint: "192.168.0.10:2004", Log: cmdlog.NewLog(), Dial: plc.dialer}

	g := &memmap.MemoryGroup{ID: 1, Name: "env", SizeByte: 8}
	v := &memmap.Variable{ID: 10, Name: "setpoint", Device: "%MW", Address: 2, DataType: memmap.TypeInt, Unit: memmap.UnitWord, Scale: 0.1}

	res := c.WriteVariable(context.Background(), "op", g, v, 12.3)
	require.Equal(t, StatusSuccess, res.Status)

	require.NotEmpty(t, plc.requests)
	wr, ok := plc.requests[0].(*xgt.SingleWriteRequest)
	require.True(t, ok)
	require.Len(t, wr.Blocks, 1)
	assert.Equal(t, "%MW4", wr.Blocks[0].Name)
	assert.Equal(t, []byte{123, 0}, wr.Blocks[0].Data)
	assert.Equal(t, uint16(xgt.DataTypeWord), wr.DataType)
}

func TestPLCWriteVariableZeroScaleRefused(t *testing.T) {
	c := &PLCCommander{Endpoint: "x", Dial: (&fakePLC{}).dialer}
	v := &memmap.Variable{Name: "bad", Device: "%MW", DataType: memmap.TypeInt, Unit: memmap.UnitWord, Scale: 0}

	res := c.WriteVariable(context.Background(), "op", nil, v, 1)
	assert.Equal(t, StatusFailure, res.Status)
}

// fakeMCU answers every command with an ACK and records frames.
type fakeMCU struct {
	frames   []*mcu.Frame
	batches  int
	firmware [][]byte
	err      error
}

func (m *fakeMCU) Batch(ctx context.Context, serial mcu.SerialNumber, fn func(ctx context.Context) error) error {
	m.batches++
	if m.err != nil {
		return m.err
	}
	return fn(ctx)
}

func (m *fakeMCU) Command(ctx context.Context, f *mcu.Frame) (*mcu.Frame, error) {
	m.frames = append(m.frames, f)
	return &mcu.Frame{Command: mcu.CmdAck}, nil
}

func (m *fakeMCU) PushFirmware(ctx context.Context, serial mcu.SerialNumber, chunks [][]byte) error {
	if m.err != nil {
		return m.err
	}
	m.firmware = chunks
	return nil
}

func testSerial() mcu.SerialNumber {
	return mcu.SerialNumber{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}
}

func TestMCUDOWrite(t *testing.T) {
	sess := &fakeMCU{}
	log := cmdlog.NewLog()
	c := &MCUCommander{Session: sess, Serial: testSerial(), Log: log}

	res, view := c.DOWrite(context.Background(), "op", 3, 1)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, sess.batches, "command must run inside a node-select batch")

	require.Len(t, sess.frames, 1)
	assert.Equal(t, byte(mcu.CmdDOWrite), sess.frames[0].Command)
	assert.Equal(t, []byte{0x03, 0x01}, sess.frames[0].Data)

	do3 := view["SETUP"].(map[string]any)["Digital_Output"].(map[string]any)["DO3"].(map[string]any)
	assert.Equal(t, 3, do3["Id"])
	assert.Equal(t, 1, do3["Value"])

	cv, _ := log.Get(1)
	assert.Equal(t, cmdlog.StatusCompleted, cv.Status)
	assert.NotEmpty(t, res.Response)
}

func TestMCUDOWriteValidation(t *testing.T) {
	c := &MCUCommander{Session: &fakeMCU{}, Serial: testSerial()}

	res, view := c.DOWrite(context.Background(), "op", 9, 1)
	assert.Equal(t, StatusFailure, res.Status)
	assert.Nil(t, view)
}

func TestMCUNodeSelectFailureFailsBatch(t *testing.T) {
	sess := &fakeMCU{err: errors.New("serial: node select not acknowledged")}
	log := cmdlog.NewLog()
	c := &MCUCommander{Session: sess, Serial: testSerial(), Log: log}

	res := c.DIThreshold(context.Background(), "op", 1)
	assert.Equal(t, StatusFailure, res.Status)

	cv, _ := log.Get(1)
	assert.Equal(t, cmdlog.StatusFailed, cv.Status)
}

func TestFirmwareUpdatePushesTypedChunks(t *testing.T) {
	sess := &fakeMCU{}
	c := &MCUCommander{Session: sess, Serial: testSerial(), Log: cmdlog.NewLog()}

	img := FirmwareImage{Chunks: [][]byte{{0x01, 0x02}, {0x03}}}
	res := c.FirmwareUpdate(context.Background(), "op", img)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, img.Chunks, sess.firmware)
}

func TestFirmwareImageValidation(t *testing.T) {
	assert.Error(t, FirmwareImage{}.Validate())
	assert.Error(t, FirmwareImage{Chunks: [][]byte{{}}}.Validate())
	assert.Error(t, FirmwareImage{Chunks: [][]byte{make([]byte, 256)}}.Validate())
	assert.NoError(t, FirmwareImage{Chunks: [][]byte{{1}}}.Validate())
}

func TestParseLegacyColonPayload(t *testing.T) {
	img := ParseLegacyColonPayload("abc:def::gh")
	require.Len(t, img.Chunks, 3)
	assert.Equal(t, []byte("abc"), img.Chunks[0])
	assert.Equal(t, []byte("def"), img.Chunks[1])
	assert.Equal(t, []byte("gh"), img.Chunks[2])
}
