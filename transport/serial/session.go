// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial drives MCU devices over a shared serial bus. Every
// command batch starts with a node-select handshake that attaches the
// bus to one device by serial number; the port is closed when the
// batch ends.
package serial

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/wontakkang/jais-backend-sub000/mcu"
)

const (
	defaultResponseTimeout = 3 * time.Second
	defaultFirmwareTimeout = 100 * time.Millisecond
	readPollInterval       = 20 * time.Millisecond
)

// openPort is swapped out by tests that fake the wire.
var openPort = func(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(c)
}

// ErrNodeSelect means the addressed device did not answer the
// node-select handshake; the session is unusable for this batch.
var ErrNodeSelect = errors.New("serial: node select not acknowledged")

// ErrNoResponse means a command got no frame back within the deadline.
var ErrNoResponse = errors.New("serial: no response within deadline")

// Config describes the port and session parameters.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string

	Checksum        mcu.ChecksumAlgorithm
	ResponseTimeout time.Duration
	// FirmwareResponseTimeout bounds the wait between firmware
	// chunk writes.
	FirmwareResponseTimeout time.Duration
	MaxPacketSize           int
}

// Session owns one open serial port.
type Session struct {
	cfg Config

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewSession prepares a session; the port opens lazily on first use.
func NewSession(cfg Config) *Session {
	if cfg.Checksum == "" {
		cfg.Checksum = mcu.ChecksumXOR
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	if cfg.FirmwareResponseTimeout <= 0 {
		cfg.FirmwareResponseTimeout = defaultFirmwareTimeout
	}
	if cfg.MaxPacketSize <= 0 {
		cfg.MaxPacketSize = mcu.DefaultMaxPacketSize
	}
	return &Session{cfg: cfg}
}

// Open opens the serial port if it is not open.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(ctx)
}

// open opens the port. Caller must hold the mutex.
func (s *Session) open(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if s.port != nil {
		return nil
	}

	port, err := openPort(&serial.Config{
		Address:  s.cfg.Device,
		BaudRate: s.cfg.BaudRate,
		DataBits: s.cfg.DataBits,
		StopBits: s.cfg.StopBits,
		Parity:   s.cfg.Parity,
		Timeout:  readPollInterval,
	})
	if err != nil {
		return fmt.Errorf("could not open %s: %w", s.cfg.Device, err)
	}
	s.port = port
	return nil
}

// Close closes the serial port if it is open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// SelectNode performs the bus handshake for the addressed device.
// Without a NODE_SELECT_RES within the response timeout the batch
// fails.
func (s *Session) SelectNode(ctx context.Context, serialNo mcu.SerialNumber) error {
	resp, err := s.Execute(ctx, mcu.NodeSelect(serialNo), s.cfg.ResponseTimeout)
	if err != nil {
		return err
	}
	if resp == nil || resp.Command != mcu.CmdNodeSelectRes {
		return fmt.Errorf("%w: device %s", ErrNodeSelect, serialNo)
	}
	return nil
}

// Execute writes one frame and scans the wire for the reply until the
// timeout. A nil frame with nil error means the wire stayed idle.
func (s *Session) Execute(ctx context.Context, f *mcu.Frame, timeout time.Duration) (*mcu.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.open(ctx); err != nil {
		return nil, err
	}

	raw, err := f.Encode(s.cfg.Checksum)
	if err != nil {
		return nil, err
	}

	slog.Debug("send to mcu", "device", s.cfg.Device, "command", mcu.CommandName(f.Command), "request", hex.EncodeToString(raw))
	if _, err := s.port.Write(raw); err != nil {
		return nil, fmt.Errorf("serial: write to %s: %w", s.cfg.Device, err)
	}

	resp, err := mcu.ReadFrame(s.port, s.cfg.Checksum, time.Now().Add(timeout), s.cfg.MaxPacketSize)
	if err != nil {
		return nil, fmt.Errorf("serial: read from %s: %w", s.cfg.Device, err)
	}
	if resp != nil {
		slog.Debug("recv from mcu", "device", s.cfg.Device, "command", mcu.CommandName(resp.Command))
		if err := resp.Err(); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Batch opens the port, selects the node and runs fn; the port always
// closes when the batch ends.
func (s *Session) Batch(ctx context.Context, serialNo mcu.SerialNumber, fn func(ctx context.Context) error) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer s.Close()

	if err := s.SelectNode(ctx, serialNo); err != nil {
		return err
	}
	return fn(ctx)
}

// Command runs one command inside the batch and requires a reply.
func (s *Session) Command(ctx context.Context, f *mcu.Frame) (*mcu.Frame, error) {
	resp, err := s.Execute(ctx, f, s.cfg.ResponseTimeout)
	if err != nil {
		return resp, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: command %s", ErrNoResponse, mcu.CommandName(f.Command))
	}
	return resp, nil
}

// PushFirmware iterates firmware chunks, re-selecting the node before
// each chunk and waiting the short firmware timeout between writes.
func (s *Session) PushFirmware(ctx context.Context, serialNo mcu.SerialNumber, chunks [][]byte) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer s.Close()

	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.SelectNode(ctx, serialNo); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		f, err := mcu.FirmwareChunk(chunk)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if _, err := s.Execute(ctx, f, s.cfg.FirmwareResponseTimeout); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return nil
}
