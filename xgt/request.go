// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xgt

import (
	"encoding/binary"
	"fmt"
)

// DecodedRequest is the server-side view of a request frame. The
// polling core never consumes it; it exists for loopback servers and
// round-trip verification.
type DecodedRequest struct {
	Header     *Header
	Command    uint16
	DataType   uint16
	BlockCount uint16

	// Continuous read / write.
	Name   string
	Count  int
	Values []uint16

	// Single write.
	Blocks []WriteBlock
}

// DecodeRequest unpacks a request frame built by one of the Request
// encoders.
func DecodeRequest(raw []byte) (*DecodedRequest, error) {
	h, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	if len(raw) != HeaderSize+int(h.Length) {
		return nil, fmt.Errorf("xgt: frame size %d does not match header length %d", len(raw), h.Length)
	}
	ins := raw[HeaderSize:]
	if len(ins) < 8 {
		return nil, fmt.Errorf("xgt: request instruction too short: %d bytes", len(ins))
	}

	req := &DecodedRequest{
		Header:     h,
		Command:    binary.LittleEndian.Uint16(ins[0:2]),
		DataType:   binary.LittleEndian.Uint16(ins[2:4]),
		BlockCount: binary.LittleEndian.Uint16(ins[6:8]),
	}
	rest := ins[8:]

	switch {
	case req.Command == CmdSystemStatus:
		return req, nil

	case req.Command == CmdContinuousReadReq:
		name, n, err := readName(rest)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]
		if len(rest) < 2 {
			return nil, fmt.Errorf("xgt: read request missing element count")
		}
		req.Name = name
		req.Count = int(binary.LittleEndian.Uint16(rest[0:2]))
		return req, nil

	case req.Command == CmdContinuousWriteReq && req.DataType == DataTypeContinuous:
		name, n, err := readName(rest)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]
		if len(rest) < 2 {
			return nil, fmt.Errorf("xgt: write request missing data count")
		}
		byteCount := int(binary.LittleEndian.Uint16(rest[0:2]))
		rest = rest[2:]
		if byteCount%2 != 0 || len(rest) < byteCount {
			return nil, fmt.Errorf("xgt: write request data truncated: want %d bytes, have %d", byteCount, len(rest))
		}
		req.Name = name
		req.Values = make([]uint16, byteCount/2)
		for i := range req.Values {
			req.Values[i] = binary.LittleEndian.Uint16(rest[i*2 : i*2+2])
		}
		return req, nil

	case req.Command == CmdContinuousWriteReq:
		names := make([]string, 0, req.BlockCount)
		for i := 0; i < int(req.BlockCount); i++ {
			name, n, err := readName(rest)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
			rest = rest[n:]
		}
		for i := 0; i < int(req.BlockCount); i++ {
			if len(rest) < 2 {
				return nil, fmt.Errorf("xgt: single-write request missing data length")
			}
			dataLen := int(binary.LittleEndian.Uint16(rest[0:2]))
			rest = rest[2:]
			if len(rest) < dataLen {
				return nil, fmt.Errorf("xgt: single-write data truncated")
			}
			req.Blocks = append(req.Blocks, WriteBlock{Name: names[i], Data: rest[:dataLen]})
			rest = rest[dataLen:]
		}
		return req, nil

	default:
		return nil, fmt.Errorf("xgt: unknown request command 0x%04X", req.Command)
	}
}

func readName(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, fmt.Errorf("xgt: missing variable name length")
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	if n == 0 || n > maxVariableName || len(b) < 2+n {
		return "", 0, fmt.Errorf("xgt: bad variable name length %d", n)
	}
	return string(b[2 : 2+n]), 2 + n, nil
}
