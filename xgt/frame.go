// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package xgt

import (
	"encoding/binary"
	"fmt"
)

// Header is the 20-byte XGT application header.
//
//	0..7   company_id "LSIS-XGT"
//	8..9   plc_info (u16 LE)
//	10     cpu_info
//	11     source_of_frame
//	12..13 invoke_id (u16 LE)
//	14..15 length (u16 LE, instruction byte count)
//	16     fenet_position
//	17..18 length mirror (u16 LE, per wire captures)
//	19     bcc (byte sum of header)
type Header struct {
	PLCInfo       uint16
	CPUInfo       byte
	Source        byte
	InvokeID      uint16
	Length        uint16
	FEnetPosition byte
	BCC           byte
}

// Encode packs the header. The length mirror at 17..18 is filled with
// the same value as the canonical length field; BCC is the byte sum of
// the first 19 bytes.
func (h *Header) Encode() []byte {
	raw := make([]byte, HeaderSize)
	copy(raw[0:8], CompanyID)
	binary.LittleEndian.PutUint16(raw[8:10], h.PLCInfo)
	raw[10] = h.CPUInfo
	raw[11] = h.Source
	binary.LittleEndian.PutUint16(raw[12:14], h.InvokeID)
	binary.LittleEndian.PutUint16(raw[14:16], h.Length)
	raw[16] = h.FEnetPosition
	binary.LittleEndian.PutUint16(raw[17:19], h.Length)

	var sum byte
	for _, b := range raw[:19] {
		sum += b
	}
	raw[19] = sum
	h.BCC = sum
	return raw
}

// DecodeHeader unpacks and validates the 20-byte header. The length
// field at 14..15 is canonical; a disagreeing mirror at 17..18 is a
// framing error.
func DecodeHeader(raw []byte) (*Header, error) {
	if len(raw) < HeaderSize {
		return nil, ErrShortFrame
	}
	if string(raw[0:8]) != CompanyID {
		return nil, ErrBadCompanyID
	}

	h := &Header{
		PLCInfo:       binary.LittleEndian.Uint16(raw[8:10]),
		CPUInfo:       raw[10],
		Source:        raw[11],
		InvokeID:      binary.LittleEndian.Uint16(raw[12:14]),
		Length:        binary.LittleEndian.Uint16(raw[14:16]),
		FEnetPosition: raw[16],
		BCC:           raw[19],
	}

	if mirror := binary.LittleEndian.Uint16(raw[17:19]); mirror != 0 && mirror != h.Length {
		return nil, fmt.Errorf("%w: length=%d mirror=%d", ErrLengthMismatch, h.Length, mirror)
	}
	return h, nil
}

// PeekInvokeID extracts the invoke id without fully decoding the frame.
// The transaction manager uses it to pair responses before handing the
// raw bytes to DecodeResponse.
func PeekInvokeID(raw []byte) (uint16, error) {
	if len(raw) < HeaderSize {
		return 0, ErrShortFrame
	}
	if string(raw[0:8]) != CompanyID {
		return 0, ErrBadCompanyID
	}
	return binary.LittleEndian.Uint16(raw[12:14]), nil
}

// FrameLength reports the total frame size implied by a complete
// header: HeaderSize plus the instruction byte count at offset 14..15.
func FrameLength(header []byte) (int, error) {
	if len(header) < HeaderSize {
		return 0, ErrShortFrame
	}
	return HeaderSize + int(binary.LittleEndian.Uint16(header[14:16])), nil
}
