// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wontakkang/jais-backend-sub000/internal/cmdlog"
	"github.com/wontakkang/jais-backend-sub000/mcu"
)

// MCUSession is the serial command session. transport/serial.Session
// implements it; tests supply fakes.
type MCUSession interface {
	Batch(ctx context.Context, serial mcu.SerialNumber, fn func(ctx context.Context) error) error
	Command(ctx context.Context, f *mcu.Frame) (*mcu.Frame, error)
	PushFirmware(ctx context.Context, serial mcu.SerialNumber, chunks [][]byte) error
}

// MCUCommander issues operator commands to one MCU node over the
// shared serial bus. Every command batch starts with the node-select
// handshake the session performs.
type MCUCommander struct {
	Session MCUSession
	Serial  mcu.SerialNumber
	Log     *cmdlog.Log
}

// DOWrite sets one digital output and returns the decoded setup view
// of the change.
func (c *MCUCommander) DOWrite(ctx context.Context, user string, channel, value byte) (Result, map[string]any) {
	f, err := mcu.DOWrite(channel, value)
	if err != nil {
		return failure(err.Error()), nil
	}
	res := c.issue(ctx, user, f)
	if res.Status != StatusSuccess {
		return res, nil
	}
	return res, DOSetupView(channel, value)
}

// DOWriteAll sets all eight digital outputs at once.
func (c *MCUCommander) DOWriteAll(ctx context.Context, user string, values [8]byte) Result {
	return c.issue(ctx, user, mcu.DOWriteAll(values))
}

// DIThreshold sets the digital input voltage threshold
// (0 = 18V, 1 = 24V, 2 = 39V).
func (c *MCUCommander) DIThreshold(ctx context.Context, user string, level byte) Result {
	f, err := mcu.DIThreshold(level)
	if err != nil {
		return failure(err.Error())
	}
	return c.issue(ctx, user, f)
}

// SerialSetup configures a UART sub-channel of the node.
func (c *MCUCommander) SerialSetup(ctx context.Context, user string, setup *mcu.SerialSetup) Result {
	return c.issue(ctx, user, setup.Frame())
}

// FirmwareUpdate pushes the image chunk by chunk, re-selecting the
// node before every chunk.
func (c *MCUCommander) FirmwareUpdate(ctx context.Context, user string, image FirmwareImage) Result {
	cv := c.begin(user, "FIRMWARE_VERSION_UPDATE", nil)
	if err := image.Validate(); err != nil {
		return c.fail(cv, err)
	}

	c.transition(cv, cmdlog.StatusSent, nil, "")
	if err := c.Session.PushFirmware(ctx, c.Serial, image.Chunks); err != nil {
		return c.fail(cv, err)
	}
	c.transition(cv, cmdlog.StatusAcknowledged, nil, "")

	msg := fmt.Sprintf("pushed %d chunks", len(image.Chunks))
	c.transition(cv, cmdlog.StatusCompleted, nil, msg)
	return success("", msg)
}

// issue runs one framed command inside a node-select batch with full
// lifecycle bookkeeping.
func (c *MCUCommander) issue(ctx context.Context, user string, f *mcu.Frame) Result {
	cv := c.begin(user, mcu.CommandName(f.Command), f.Data)

	var resp *mcu.Frame
	err := c.Session.Batch(ctx, c.Serial, func(ctx context.Context) error {
		c.transition(cv, cmdlog.StatusSent, nil, "")
		var err error
		resp, err = c.Session.Command(ctx, f)
		return err
	})
	if err != nil {
		return c.fail(cv, err)
	}

	var raw []byte
	if resp != nil {
		raw, _ = resp.Encode(mcu.ChecksumXOR)
	}
	c.transition(cv, cmdlog.StatusAcknowledged, raw, "")
	c.transition(cv, cmdlog.StatusCompleted, nil, "")

	res := success("", mcu.CommandName(f.Command)+" complete")
	if cvNow, ok := c.get(cv); ok {
		res.Response = cvNow.ResponseHex()
	}
	return res
}

// DOSetupView is the decoded representation of a DO write, matching
// the setup document the operator surface renders.
func DOSetupView(channel, value byte) map[string]any {
	return map[string]any{
		"SETUP": map[string]any{
			"Digital_Output": map[string]any{
				fmt.Sprintf("DO%d", channel): map[string]any{
					"Id":    int(channel),
					"Value": int(value),
				},
			},
		},
	}
}

func (c *MCUCommander) begin(user, name string, payload []byte) *cmdlog.ControlValue {
	if c.Log == nil {
		return nil
	}
	return c.Log.Begin(user, name, "node "+c.Serial.String(), payload)
}

func (c *MCUCommander) get(cv *cmdlog.ControlValue) (*cmdlog.ControlValue, bool) {
	if cv == nil || c.Log == nil {
		return nil, false
	}
	return c.Log.Get(cv.ID)
}

func (c *MCUCommander) transition(cv *cmdlog.ControlValue, to cmdlog.Status, response []byte, message string) {
	if cv == nil {
		return
	}
	if err := c.Log.Transition(cv.ID, to, response, message); err != nil {
		slog.Warn("command log transition failed", "control", cv.ID, "err", err)
	}
}

func (c *MCUCommander) fail(cv *cmdlog.ControlValue, err error) Result {
	c.transition(cv, cmdlog.StatusFailed, nil, err.Error())
	slog.Error("mcu command failed", "node", c.Serial, "err", err)
	return failure(err.Error())
}
