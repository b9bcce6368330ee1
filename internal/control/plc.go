// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wontakkang/jais-backend-sub000/internal/cmdlog"
	"github.com/wontakkang/jais-backend-sub000/internal/memmap"
	"github.com/wontakkang/jais-backend-sub000/internal/transaction"
	"github.com/wontakkang/jais-backend-sub000/transport/tcp"
	"github.com/wontakkang/jais-backend-sub000/xgt"
)

// Mode word values written by the lifecycle commands. The PLC ladder
// watches the configured mode address and acts on the written value.
const (
	ModeStop  uint16 = 0
	ModeRun   uint16 = 1
	ModeReset uint16 = 2
)

// PLCExecutor is one dialed command connection. The transaction
// manager implements it.
type PLCExecutor interface {
	Execute(ctx context.Context, req xgt.Request) (*xgt.Response, error)
	Close() error
}

// PLCCommander issues commands to one PLC endpoint. Every command
// dials its own connection and closes it when done; the polling
// socket is never shared.
type PLCCommander struct {
	Endpoint string
	Log      *cmdlog.Log
	// ModeAddress is the direct variable the lifecycle commands
	// write, e.g. "%MW0".
	ModeAddress string

	// Dial is swapped by tests; nil means a real TCP connection.
	Dial func(endpoint string) PLCExecutor
}

func (c *PLCCommander) dial() PLCExecutor {
	if c.Dial != nil {
		return c.Dial(c.Endpoint)
	}
	return transaction.NewManager(c.Endpoint, tcp.NewClient(c.Endpoint), transaction.Options{})
}

// Stop commands the PLC into STOP.
func (c *PLCCommander) Stop(ctx context.Context, user string) Result {
	return c.writeMode(ctx, user, "STOP", ModeStop)
}

// Run commands the PLC into RUN.
func (c *PLCCommander) Run(ctx context.Context, user string) Result {
	return c.writeMode(ctx, user, "RUN", ModeRun)
}

// InitAndReset performs the first-communication status query, stops
// the PLC, then writes the reset command.
func (c *PLCCommander) InitAndReset(ctx context.Context, user string) Result {
	cv := c.begin(user, "INIT_AND_RESET", nil)
	exec := c.dial()
	defer exec.Close()

	status, err := exec.Execute(ctx, &xgt.StatusRequest{})
	if err != nil {
		return c.fail(cv, fmt.Errorf("first communication: %w", err))
	}
	c.recordEnvironment(cv, "before", status)
	c.transition(cv, cmdlog.StatusSent, nil, "")

	for _, mode := range []uint16{ModeStop, ModeReset} {
		if _, err := exec.Execute(ctx, c.modeRequest(mode)); err != nil {
			return c.fail(cv, err)
		}
	}
	c.transition(cv, cmdlog.StatusAcknowledged, nil, "")

	after, err := exec.Execute(ctx, &xgt.StatusRequest{})
	if err != nil {
		return c.fail(cv, fmt.Errorf("status after reset: %w", err))
	}
	c.recordEnvironment(cv, "after", after)
	c.transition(cv, cmdlog.StatusCompleted, nil, "reset complete")
	return success("", "reset complete")
}

// WriteVariable encodes value for the variable and issues a single
// write. The decoder owns scaling and bit addressing.
func (c *PLCCommander) WriteVariable(ctx context.Context, user string, g *memmap.MemoryGroup, v *memmap.Variable, value float64) Result {
	wp, err := memmap.EncodeWrite(g, v, value)
	if err != nil {
		return failure(err.Error())
	}
	req := &xgt.SingleWriteRequest{
		DataType: writeDataType(v, wp),
		Blocks:   []xgt.WriteBlock{{Name: wp.Address, Data: wp.Data}},
	}
	return c.issue(ctx, user, "WRITE_"+v.Name, req, wp.Data)
}

func (c *PLCCommander) writeMode(ctx context.Context, user, name string, mode uint16) Result {
	return c.issue(ctx, user, name, c.modeRequest(mode), []byte{byte(mode), byte(mode >> 8)})
}

func (c *PLCCommander) modeRequest(mode uint16) xgt.Request {
	addr := c.ModeAddress
	if addr == "" {
		addr = "%MW0"
	}
	return &xgt.SingleWriteRequest{
		DataType: xgt.DataTypeWord,
		Blocks:   []xgt.WriteBlock{{Name: addr, Data: []byte{byte(mode), byte(mode >> 8)}}},
	}
}

// issue runs one request on a fresh connection with full lifecycle
// bookkeeping: the status is queried after execution and stored with
// the record.
func (c *PLCCommander) issue(ctx context.Context, user, name string, req xgt.Request, payload []byte) Result {
	cv := c.begin(user, name, payload)
	exec := c.dial()
	defer exec.Close()

	c.transition(cv, cmdlog.StatusSent, nil, "")
	if _, err := exec.Execute(ctx, req); err != nil {
		return c.fail(cv, err)
	}
	c.transition(cv, cmdlog.StatusAcknowledged, nil, "")

	if status, err := exec.Execute(ctx, &xgt.StatusRequest{}); err == nil {
		c.recordEnvironment(cv, "after", status)
	}
	c.transition(cv, cmdlog.StatusCompleted, nil, name+" complete")
	return success("", name+" complete")
}

func (c *PLCCommander) begin(user, name string, payload []byte) *cmdlog.ControlValue {
	if c.Log == nil {
		return nil
	}
	return c.Log.Begin(user, name, c.Endpoint, payload)
}

func (c *PLCCommander) transition(cv *cmdlog.ControlValue, to cmdlog.Status, response []byte, message string) {
	if cv == nil {
		return
	}
	if err := c.Log.Transition(cv.ID, to, response, message); err != nil {
		slog.Warn("command log transition failed", "control", cv.ID, "err", err)
	}
}

func (c *PLCCommander) recordEnvironment(cv *cmdlog.ControlValue, key string, resp *xgt.Response) {
	if cv == nil || resp == nil || resp.Status == nil {
		return
	}
	cur, _ := c.Log.Get(cv.ID)
	env := map[string]any{}
	if cur != nil && cur.Environment != nil {
		env = cur.Environment
	}
	env[key] = resp.Status
	_ = c.Log.SetEnvironment(cv.ID, env)
}

func (c *PLCCommander) fail(cv *cmdlog.ControlValue, err error) Result {
	c.transition(cv, cmdlog.StatusFailed, nil, err.Error())
	slog.Error("plc command failed", "endpoint", c.Endpoint, "err", err)
	return failure(err.Error())
}

// writeDataType maps a write payload onto the XGT instruction data
// type code.
func writeDataType(v *memmap.Variable, wp memmap.WritePayload) uint16 {
	if v.DataType == memmap.TypeBool {
		return xgt.DataTypeBit
	}
	switch len(wp.Data) {
	case 1:
		return xgt.DataTypeByte
	case 2:
		return xgt.DataTypeWord
	case 4:
		return xgt.DataTypeDword
	default:
		return xgt.DataTypeContinuous
	}
}
