// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/wontakkang/jais-backend-sub000/xgt"
)

// echoStatusServer accepts one connection and answers every request
// frame with a canned read response carrying the request's invoke id.
func echoStatusServer(t *testing.T, payload []byte) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			header := make([]byte, xgt.HeaderSize)
			if _, err := io.ReadFull(conn, header); err != nil {
				return
			}
			total, err := xgt.FrameLength(header)
			if err != nil {
				return
			}
			rest := make([]byte, total-xgt.HeaderSize)
			if _, err := io.ReadFull(conn, rest); err != nil {
				return
			}
			id, err := xgt.PeekInvokeID(header)
			if err != nil {
				return
			}
			if _, err := conn.Write(xgt.BuildReadResponse(id, payload)); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestClientFramedRoundTrip(t *testing.T) {
	payload := []byte{0x7B, 0x00}
	addr := echoStatusServer(t, payload)

	c := NewClient(addr)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	req := &xgt.ContinuousReadRequest{Memory: "%MB", Address: 0, Count: 8}
	raw, err := req.Encode(42)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.WriteFrame(raw); err != nil {
		t.Fatal(err)
	}

	frame, err := c.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	resp, err := xgt.DecodeResponse(frame)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Header.InvokeID != 42 {
		t.Fatalf("invoke id expected 42, actual %d", resp.Header.InvokeID)
	}
	if !bytes.Equal(resp.Payload, payload) {
		t.Fatalf("payload mismatch: % X", resp.Payload)
	}
}

func TestConnectFailsFastWithoutRetry(t *testing.T) {
	c := NewClient("127.0.0.1:1") // nothing listens here
	c.DialTimeout = 200 * time.Millisecond

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestConnectRetryStopsOnCancel(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	c.DialTimeout = 50 * time.Millisecond
	c.RetryForever = true
	c.ReconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if err := c.Connect(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestReadFrameAfterCloseFails(t *testing.T) {
	addr := echoStatusServer(t, nil)
	c := NewClient(addr)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Close()
	if _, err := c.ReadFrame(); err == nil {
		t.Fatal("expected error on closed connector")
	}
}
