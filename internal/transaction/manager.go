// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transaction pairs XGT requests with their responses by
// invoke id over a half-duplex frame connection.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wontakkang/jais-backend-sub000/transport"
	"github.com/wontakkang/jais-backend-sub000/xgt"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffMax  = 8 * time.Second
)

var (
	// ErrTimeout means the response did not arrive within the
	// deadline; after the final attempt the connection is closed.
	ErrTimeout = errors.New("transaction: response timeout")

	// ErrConnectionLost fails every transaction pending when the
	// underlying transport dies.
	ErrConnectionLost = errors.New("transaction: connection lost")
)

// Options tune per-transaction behavior.
type Options struct {
	Timeout time.Duration
	// RetryOnEmpty re-sends a timed-out request, with a fresh
	// invoke id, up to Retries times with exponential backoff.
	RetryOnEmpty bool
	Retries      int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

type result struct {
	raw []byte
	err error
}

// Manager owns one frame connection and serializes transactions on
// it. Invoke ids increase monotonically modulo 65536; an id is reused
// only after wrap-around.
type Manager struct {
	endpoint string
	conn     transport.FrameConn
	opts     Options

	// writeMu enforces one outbound request at a time; the XGT TCP
	// session is half-duplex and pipelining is deliberately absent.
	writeMu sync.Mutex

	mu      sync.Mutex
	invoke  uint16
	pending map[uint16]chan result
	running bool
	closed  bool
}

// NewManager wraps conn. endpoint names the peer in errors and logs.
func NewManager(endpoint string, conn transport.FrameConn, opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	return &Manager{
		endpoint: endpoint,
		conn:     conn,
		opts:     opts,
		pending:  make(map[uint16]chan result),
	}
}

// Execute sends req and blocks until the matching response arrives,
// the deadline expires, or ctx is cancelled.
func (m *Manager) Execute(ctx context.Context, req xgt.Request) (*xgt.Response, error) {
	attempts := 1
	if m.opts.RetryOnEmpty {
		attempts += m.opts.Retries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := m.opts.BackoffBase << (attempt - 2)
			if backoff > m.opts.BackoffMax {
				backoff = m.opts.BackoffMax
			}
			slog.Warn("retrying transaction", "endpoint", m.endpoint, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := m.execute(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
	}

	// Out of attempts: the link is suspect, drop it.
	m.teardown(fmt.Errorf("%w: %s", ErrConnectionLost, m.endpoint))
	return nil, fmt.Errorf("%s: %w", m.endpoint, lastErr)
}

func (m *Manager) execute(ctx context.Context, req xgt.Request) (*xgt.Response, error) {
	if err := m.ensureRunning(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", m.endpoint, err)
	}

	id, ch, err := m.register()
	if err != nil {
		return nil, err
	}
	defer m.unregister(id)

	raw, err := req.Encode(id)
	if err != nil {
		return nil, err
	}

	m.writeMu.Lock()
	err = m.conn.WriteFrame(raw)
	m.writeMu.Unlock()
	if err != nil {
		m.teardown(err)
		return nil, fmt.Errorf("%s: %w", m.endpoint, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.opts.Timeout):
		return nil, ErrTimeout
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w", m.endpoint, res.err)
		}
		resp, err := xgt.DecodeResponse(res.raw)
		if err != nil {
			// Device-reported errors leave the connection open.
			return nil, fmt.Errorf("%s: %w", m.endpoint, err)
		}
		return resp, nil
	}
}

// ensureRunning connects the transport and starts the read loop if
// needed.
func (m *Manager) ensureRunning(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return transport.ErrClosed
	}
	if m.running {
		return nil
	}
	if err := m.conn.Connect(ctx); err != nil {
		return err
	}
	// Drain stale bytes now, while nothing reads the connection. Once
	// the read loop starts it is the sole reader; stale frames that
	// arrive later are dropped there by invoke id.
	if err := m.conn.Flush(); err != nil && !errors.Is(err, transport.ErrClosed) {
		m.conn.Close()
		return fmt.Errorf("flush: %w", err)
	}
	m.running = true
	go m.readLoop()
	return nil
}

func (m *Manager) register() (uint16, chan result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, nil, transport.ErrClosed
	}
	id := m.invoke
	m.invoke++ // wraps at 65536 by type
	ch := make(chan result, 1)
	m.pending[id] = ch
	return id, ch, nil
}

func (m *Manager) unregister(id uint16) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Manager) readLoop() {
	for {
		raw, err := m.conn.ReadFrame()
		if err != nil {
			m.teardown(err)
			return
		}

		id, err := xgt.PeekInvokeID(raw)
		if err != nil {
			slog.Warn("dropping unparseable frame", "endpoint", m.endpoint, "err", err)
			continue
		}

		m.mu.Lock()
		ch, ok := m.pending[id]
		m.mu.Unlock()
		if !ok {
			slog.Warn("dropping frame with unknown invoke id", "endpoint", m.endpoint, "invoke_id", id)
			continue
		}
		ch <- result{raw: raw}
	}
}

// teardown closes the transport and fails every pending transaction.
func (m *Manager) teardown(cause error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	pending := m.pending
	m.pending = make(map[uint16]chan result)
	m.mu.Unlock()

	m.conn.Close()
	for _, ch := range pending {
		select {
		case ch <- result{err: fmt.Errorf("%w: %v", ErrConnectionLost, cause)}:
		default:
		}
	}
	slog.Warn("transport closed", "endpoint", m.endpoint, "cause", cause)
}

// Close shuts the manager down permanently.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.teardown(transport.ErrClosed)
	return nil
}
