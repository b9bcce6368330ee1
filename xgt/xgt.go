// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package xgt implements the LSIS XGT FEnet application protocol:
// a 20-byte little-endian header followed by a command-specific
// instruction block. The package is a pure codec; it never touches
// a socket.
package xgt

import (
	"errors"
	"fmt"
)

// CompanyID is the fixed 8-byte tag that opens every XGT frame.
const CompanyID = "LSIS-XGT"

// HeaderSize is the size of the application header in bytes.
const HeaderSize = 20

// Source-of-frame markers.
const (
	SourceRequest  = 0x33
	SourceResponse = 0x11
	SourceSystem   = 0x22
)

// Command codes.
const (
	CmdContinuousReadReq  = 0x0054
	CmdContinuousReadRes  = 0x0055
	CmdContinuousWriteReq = 0x0058
	CmdContinuousWriteRes = 0x0059
	CmdSystemStatus       = 0x00EF
)

// Data type codes used in the instruction block.
const (
	DataTypeBit        = 0x0000
	DataTypeByte       = 0x0001
	DataTypeWord       = 0x0002
	DataTypeDword      = 0x0003
	DataTypeLword      = 0x0004
	DataTypeContinuous = 0x0014
)

// errorFlag marks the error-state word of a response instruction block.
// When present the following word carries the device error code.
const errorFlag = 0xFFFF

var (
	ErrBadCompanyID   = errors.New("xgt: frame does not start with LSIS-XGT company id")
	ErrShortFrame     = errors.New("xgt: frame shorter than header")
	ErrLengthMismatch = errors.New("xgt: header length does not match its mirror field")
)

// ProtocolError is a non-zero error status returned by the PLC.
type ProtocolError struct {
	Code uint16
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("xgt: device error status 0x%04X", e.Code)
}

// InvalidRequestError reports a request the codec refuses to encode.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "xgt: invalid request: " + e.Reason
}
