// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package mcu implements the start-byte framed MCU serial protocol:
// 0x7E | command | data_length | data | checksum. The codec consumes
// and produces byte buffers only; transports live elsewhere.
package mcu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// StartByte opens every frame.
	StartByte = 0x7E

	// headerSize covers start byte, command and data length.
	headerSize = 3

	// MaxDataLength is the largest payload a single frame carries.
	MaxDataLength = 255

	// DefaultMaxPacketSize bounds a whole frame on the receive path.
	DefaultMaxPacketSize = 1024
)

var (
	ErrChecksum    = errors.New("mcu: checksum mismatch")
	ErrNoStartByte = errors.New("mcu: no start byte in buffer")
	ErrShortFrame  = errors.New("mcu: truncated frame")
)

// OversizeError reports a payload the protocol cannot frame.
type OversizeError struct {
	Length int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("mcu: payload of %d bytes exceeds frame capacity", e.Length)
}

// NakError is a device failure acknowledgement (command 0x23).
type NakError struct {
	Code byte
}

func (e *NakError) Error() string {
	return fmt.Sprintf("mcu: device NAK code 0x%02X", e.Code)
}

// Frame is one protocol data unit.
type Frame struct {
	Command byte
	Data    []byte
}

// Encode serializes the frame and appends the session checksum. The
// data length is derived from the payload; anything over 255 bytes is
// a validation error.
func (f *Frame) Encode(alg ChecksumAlgorithm) ([]byte, error) {
	if len(f.Data) > MaxDataLength {
		return nil, &OversizeError{Length: len(f.Data)}
	}
	width, err := alg.Width()
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, headerSize+len(f.Data)+width)
	raw = append(raw, StartByte, f.Command, byte(len(f.Data)))
	raw = append(raw, f.Data...)

	chk, err := alg.Compute(raw)
	if err != nil {
		return nil, err
	}
	return append(raw, chk...), nil
}

// Err surfaces a device NAK as an error; any other frame passes.
func (f *Frame) Err() error {
	if f.Command != CmdNak {
		return nil
	}
	var code byte
	if len(f.Data) > 0 {
		code = f.Data[0]
	}
	return &NakError{Code: code}
}

// Decode parses exactly one frame from raw and verifies its checksum.
func Decode(raw []byte, alg ChecksumAlgorithm) (*Frame, error) {
	width, err := alg.Width()
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize+width {
		return nil, ErrShortFrame
	}
	if raw[0] != StartByte {
		return nil, ErrNoStartByte
	}
	dataLen := int(raw[2])
	total := headerSize + dataLen + width
	if len(raw) < total {
		return nil, ErrShortFrame
	}

	want, err := alg.Compute(raw[:headerSize+dataLen])
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(raw[headerSize+dataLen:total], want) {
		return nil, ErrChecksum
	}
	return &Frame{Command: raw[1], Data: raw[3 : 3+dataLen]}, nil
}

// DecodeStream scans buf greedily: noise before a start byte is
// skipped, complete valid frames are returned in order, and a frame
// failing its checksum is discarded with scanning resuming at the byte
// after its start byte. rest holds the trailing bytes of an incomplete
// frame, if any. An unknown checksum algorithm leaves buf untouched
// and surfaces the error.
func DecodeStream(buf []byte, alg ChecksumAlgorithm) (frames []*Frame, rest []byte, err error) {
	width, err := alg.Width()
	if err != nil {
		return nil, buf, err
	}

	for {
		i := bytes.IndexByte(buf, StartByte)
		if i < 0 {
			return frames, nil, nil
		}
		buf = buf[i:]
		if len(buf) < headerSize {
			return frames, buf, nil
		}
		total := headerSize + int(buf[2]) + width
		if len(buf) < total {
			return frames, buf, nil
		}

		f, err := Decode(buf[:total], alg)
		if err != nil {
			// Corrupt frame: resume right after its start byte.
			buf = buf[1:]
			continue
		}
		frames = append(frames, f)
		buf = buf[total:]
	}
}

// ReadFrame reads one frame from r, scanning past noise, until the
// deadline passes. A frame larger than maxPacketSize is dropped and
// scanning continues. An idle deadline returns (nil, nil): no frame,
// no error, matching the empty-buffer semantics of the receive loop.
func ReadFrame(r io.Reader, alg ChecksumAlgorithm, deadline time.Time, maxPacketSize int) (*Frame, error) {
	width, err := alg.Width()
	if err != nil {
		return nil, err
	}
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}

	buf := make([]byte, 1)
	pending := make([]byte, 0, headerSize+MaxDataLength+width)

	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, nil
		}

		n, err := r.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}
		if n == 0 {
			continue
		}

		if len(pending) == 0 && buf[0] != StartByte {
			continue
		}
		pending = append(pending, buf[0])
		if len(pending) < headerSize {
			continue
		}

		total := headerSize + int(pending[2]) + width
		if total > maxPacketSize {
			pending = pending[:0]
			continue
		}
		if len(pending) < total {
			continue
		}

		f, err := Decode(pending, alg)
		if err != nil {
			// Drop the corrupt frame, rescan its tail for the
			// next start byte.
			if i := bytes.IndexByte(pending[1:], StartByte); i >= 0 {
				pending = append(pending[:0], pending[1+i:]...)
			} else {
				pending = pending[:0]
			}
			continue
		}
		return f, nil
	}
}
