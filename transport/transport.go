// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by frame operations on a closed connector.
var ErrClosed = errors.New("transport: connection closed")

// FrameConn is a connected byte-frame pipe. The XGT TCP connector and
// test doubles implement it; the transaction manager is its only
// consumer and serializes writes itself (the wire is half-duplex).
type FrameConn interface {
	// Connect establishes the link. Implementations retry with
	// exponential backoff when configured to.
	Connect(ctx context.Context) error
	// WriteFrame sends one complete frame.
	WriteFrame(b []byte) error
	// ReadFrame blocks until one complete frame arrives or the
	// connection fails. Closing the connector unblocks it.
	ReadFrame() ([]byte, error)
	// Flush discards stale buffered receive bytes. It reads the
	// connection itself and must not run while a ReadFrame is
	// blocked on it.
	Flush() error
	Close() error
}
