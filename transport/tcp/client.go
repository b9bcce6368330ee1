// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wontakkang/jais-backend-sub000/transport"
	"github.com/wontakkang/jais-backend-sub000/xgt"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultReconnectDelay    = 1 * time.Second
	defaultReconnectDelayMax = 60 * time.Second
)

// Client is the framed TCP connector for an XGT PLC endpoint. A frame
// is the 20-byte application header followed by the instruction byte
// count the header announces.
type Client struct {
	Address     string
	DialTimeout time.Duration

	// RetryForever enables exponential reconnect backoff from
	// ReconnectDelay up to ReconnectDelayMax after the first
	// synchronous dial attempt fails.
	RetryForever      bool
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewClient allocates a connector for host:port with default timings.
func NewClient(address string) *Client {
	return &Client{
		Address:           address,
		DialTimeout:       defaultDialTimeout,
		ReconnectDelay:    defaultReconnectDelay,
		ReconnectDelayMax: defaultReconnectDelayMax,
	}
}

// Connect dials the endpoint. The first attempt is synchronous with
// the dial deadline; with RetryForever set, failures back off
// exponentially until the context is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	delay := c.ReconnectDelay
	for {
		conn, err := (&net.Dialer{Timeout: c.DialTimeout}).DialContext(ctx, "tcp", c.Address)
		if err == nil {
			c.conn = conn
			slog.Info("connected to plc", "address", c.Address)
			return nil
		}
		if !c.RetryForever {
			return fmt.Errorf("xgt: failed to connect to %s: %w", c.Address, err)
		}

		slog.Warn("connect failed, backing off", "address", c.Address, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.ReconnectDelayMax {
			delay = c.ReconnectDelayMax
		}
	}
}

// WriteFrame sends one complete frame.
func (c *Client) WriteFrame(b []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrClosed
	}

	slog.Debug("send to plc", "address", c.Address, "request", hex.EncodeToString(b))
	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("xgt: write to %s: %w", c.Address, err)
	}
	return nil
}

// ReadFrame reads exactly one frame: the 20 header bytes first, then
// the instruction byte count the header carries at its canonical
// offset.
func (c *Client) ReadFrame() ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, transport.ErrClosed
	}

	header := make([]byte, xgt.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, fmt.Errorf("xgt: read header from %s: %w", c.Address, err)
	}

	total, err := xgt.FrameLength(header)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, total)
	copy(frame, header)
	if _, err := io.ReadFull(conn, frame[xgt.HeaderSize:]); err != nil {
		return nil, fmt.Errorf("xgt: read instruction from %s: %w", c.Address, err)
	}

	slog.Debug("recv from plc", "address", c.Address, "response", hex.EncodeToString(frame))
	return frame, nil
}

// Flush drains bytes already buffered by the peer or kernel so the
// first transaction never pairs with a stale frame. The deadline it
// sets would wake any concurrently blocked ReadFrame, so only the
// goroutine that owns reads may call it.
func (c *Client) Flush() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return transport.ErrClosed
	}

	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return err
	}
	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			slog.Debug("flushed stale bytes", "address", c.Address, "count", n)
		}
		if err != nil {
			break
		}
	}
	return conn.SetReadDeadline(time.Time{})
}

// Close tears the connection down; blocked reads return immediately.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
