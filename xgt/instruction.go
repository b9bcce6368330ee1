// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xgt

import (
	"encoding/binary"
	"fmt"
)

// Request is a client-built PDU ready to be stamped with an invoke id.
type Request interface {
	Encode(invokeID uint16) ([]byte, error)
}

// maxVariableName bounds the direct-variable name length accepted by
// XGT CPUs.
const maxVariableName = 16

func encodeFrame(invokeID uint16, instruction []byte) []byte {
	h := Header{
		Source:   SourceRequest,
		InvokeID: invokeID,
		Length:   uint16(len(instruction)),
	}
	raw := h.Encode()
	return append(raw, instruction...)
}

func variableName(memory string, address int) string {
	return fmt.Sprintf("%s%d", memory, address)
}

// ContinuousReadRequest reads Count elements starting at Address in the
// named memory device (e.g. "%MB").
type ContinuousReadRequest struct {
	Memory  string
	Address int
	Count   int
}

func (r *ContinuousReadRequest) Encode(invokeID uint16) ([]byte, error) {
	name := variableName(r.Memory, r.Address)
	if len(name) > maxVariableName {
		return nil, &InvalidRequestError{Reason: "variable name too long: " + name}
	}
	if r.Count <= 0 || r.Count > 0x3FF {
		return nil, &InvalidRequestError{Reason: fmt.Sprintf("element count %d out of range", r.Count)}
	}

	ins := make([]byte, 0, 12+len(name))
	ins = appendUint16(ins, CmdContinuousReadReq)
	ins = appendUint16(ins, DataTypeContinuous)
	ins = appendUint16(ins, 0) // reserved
	ins = appendUint16(ins, 1) // block count
	ins = appendUint16(ins, uint16(len(name)))
	ins = append(ins, name...)
	ins = appendUint16(ins, uint16(r.Count))
	return encodeFrame(invokeID, ins), nil
}

// ContinuousWriteRequest writes a run of word values starting at
// Address in the named memory device.
type ContinuousWriteRequest struct {
	Memory  string
	Address int
	Values  []uint16
}

func (r *ContinuousWriteRequest) Encode(invokeID uint16) ([]byte, error) {
	name := variableName(r.Memory, r.Address)
	if len(name) > maxVariableName {
		return nil, &InvalidRequestError{Reason: "variable name too long: " + name}
	}
	if len(r.Values) == 0 {
		return nil, &InvalidRequestError{Reason: "no values to write"}
	}

	ins := make([]byte, 0, 12+len(name)+len(r.Values)*2)
	ins = appendUint16(ins, CmdContinuousWriteReq)
	ins = appendUint16(ins, DataTypeContinuous)
	ins = appendUint16(ins, 0) // reserved
	ins = appendUint16(ins, 1) // block count
	ins = appendUint16(ins, uint16(len(name)))
	ins = append(ins, name...)
	ins = appendUint16(ins, uint16(len(r.Values)*2)) // data count in bytes
	for _, v := range r.Values {
		ins = appendUint16(ins, v)
	}
	return encodeFrame(invokeID, ins), nil
}

// WriteBlock is one named target of a single-write request.
type WriteBlock struct {
	Name string
	Data []byte
}

// SingleWriteRequest writes individual variables by name. The encoding
// supports multiple blocks; current callers always supply exactly one.
type SingleWriteRequest struct {
	DataType uint16
	Blocks   []WriteBlock
}

func (r *SingleWriteRequest) Encode(invokeID uint16) ([]byte, error) {
	if len(r.Blocks) == 0 || len(r.Blocks) > 16 {
		return nil, &InvalidRequestError{Reason: fmt.Sprintf("block count %d out of range", len(r.Blocks))}
	}

	ins := make([]byte, 0, 32)
	ins = appendUint16(ins, CmdContinuousWriteReq)
	ins = appendUint16(ins, r.DataType)
	ins = appendUint16(ins, 0) // reserved
	ins = appendUint16(ins, uint16(len(r.Blocks)))
	for _, b := range r.Blocks {
		if len(b.Name) > maxVariableName {
			return nil, &InvalidRequestError{Reason: "variable name too long: " + b.Name}
		}
		ins = appendUint16(ins, uint16(len(b.Name)))
		ins = append(ins, b.Name...)
	}
	for _, b := range r.Blocks {
		if len(b.Data) == 0 {
			return nil, &InvalidRequestError{Reason: "empty data block for " + b.Name}
		}
		ins = appendUint16(ins, uint16(len(b.Data)))
		ins = append(ins, b.Data...)
	}
	return encodeFrame(invokeID, ins), nil
}

// StatusRequest queries the PLC system status (command 0xEF). The
// response populates DetailedStatus from the header info fields.
type StatusRequest struct{}

func (r *StatusRequest) Encode(invokeID uint16) ([]byte, error) {
	ins := make([]byte, 0, 6)
	ins = appendUint16(ins, CmdSystemStatus)
	ins = appendUint16(ins, 0)
	ins = appendUint16(ins, 0)
	return encodeFrame(invokeID, ins), nil
}

// Response is a decoded PLC reply.
type Response struct {
	Header     *Header
	Command    uint16
	DataType   uint16
	BlockCount uint16
	// Payload carries the raw data bytes of a continuous-read
	// response. Decoding into variable values belongs to the
	// memory-map layer.
	Payload []byte
	// Status is populated for system status responses.
	Status *DetailedStatus
}

// DecodeResponse validates the company id and header, then dispatches
// on the command code of the instruction block.
func DecodeResponse(raw []byte) (*Response, error) {
	h, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	if len(raw) != HeaderSize+int(h.Length) {
		return nil, fmt.Errorf("xgt: frame size %d does not match header length %d", len(raw), h.Length)
	}
	ins := raw[HeaderSize:]
	if len(ins) < 6 {
		return nil, fmt.Errorf("xgt: instruction block too short: %d bytes", len(ins))
	}

	resp := &Response{
		Header:   h,
		Command:  binary.LittleEndian.Uint16(ins[0:2]),
		DataType: binary.LittleEndian.Uint16(ins[2:4]),
	}

	errState := binary.LittleEndian.Uint16(ins[4:6])
	if errState == errorFlag {
		if len(ins) < 8 {
			return nil, fmt.Errorf("xgt: error frame truncated")
		}
		return nil, &ProtocolError{Code: binary.LittleEndian.Uint16(ins[6:8])}
	}
	if errState != 0 {
		return nil, &ProtocolError{Code: errState}
	}

	switch resp.Command {
	case CmdContinuousReadRes:
		if len(ins) < 12 {
			return nil, fmt.Errorf("xgt: read response truncated: %d bytes", len(ins))
		}
		resp.BlockCount = binary.LittleEndian.Uint16(ins[8:10])
		dataCount := int(binary.LittleEndian.Uint16(ins[10:12]))
		if len(ins) < 12+dataCount {
			return nil, fmt.Errorf("xgt: read payload truncated: want %d bytes, have %d", dataCount, len(ins)-12)
		}
		resp.Payload = ins[12 : 12+dataCount]
	case CmdContinuousWriteRes:
		if len(ins) >= 10 {
			resp.BlockCount = binary.LittleEndian.Uint16(ins[8:10])
		}
	case CmdSystemStatus:
		resp.Status = DecodeStatus(h.PLCInfo, h.CPUInfo)
	default:
		return nil, fmt.Errorf("xgt: unknown response command 0x%04X", resp.Command)
	}
	return resp, nil
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}
