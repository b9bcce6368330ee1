// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package mcu

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"hash/crc32"
)

// ChecksumAlgorithm selects how a session authenticates frames. The
// checksum always covers start byte, command, data length and data, in
// that order. Multi-byte checksums are appended little-endian.
type ChecksumAlgorithm string

const (
	// ChecksumXOR is the session default: XOR of all covered bytes,
	// masked to 8 bits.
	ChecksumXOR         ChecksumAlgorithm = "xor"
	ChecksumSum         ChecksumAlgorithm = "sum"
	ChecksumLRC         ChecksumAlgorithm = "lrc"
	ChecksumCRC16Modbus ChecksumAlgorithm = "crc16-modbus"
	ChecksumCRC16CCITT  ChecksumAlgorithm = "crc16-ccitt"
	ChecksumCRC32       ChecksumAlgorithm = "crc32"
	ChecksumAdler32     ChecksumAlgorithm = "adler32"
)

// UnknownChecksumError reports a checksum name outside the supported set.
type UnknownChecksumError struct {
	Algorithm ChecksumAlgorithm
}

func (e *UnknownChecksumError) Error() string {
	return fmt.Sprintf("mcu: unknown checksum algorithm %q", string(e.Algorithm))
}

// Width returns the checksum trailer size in bytes.
func (a ChecksumAlgorithm) Width() (int, error) {
	switch a {
	case ChecksumXOR, ChecksumSum, ChecksumLRC:
		return 1, nil
	case ChecksumCRC16Modbus, ChecksumCRC16CCITT:
		return 2, nil
	case ChecksumCRC32, ChecksumAdler32:
		return 4, nil
	default:
		return 0, &UnknownChecksumError{Algorithm: a}
	}
}

// Compute returns the checksum trailer for the covered prefix.
func (a ChecksumAlgorithm) Compute(prefix []byte) ([]byte, error) {
	switch a {
	case ChecksumXOR:
		var x byte
		for _, b := range prefix {
			x ^= b
		}
		return []byte{x}, nil
	case ChecksumSum:
		var s byte
		for _, b := range prefix {
			s += b
		}
		return []byte{s}, nil
	case ChecksumLRC:
		var s byte
		for _, b := range prefix {
			s += b
		}
		return []byte{byte(-int8(s))}, nil
	case ChecksumCRC16Modbus:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, crc16(prefix, 0xFFFF, 0xA001, false))
		return out, nil
	case ChecksumCRC16CCITT:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, crc16(prefix, 0xFFFF, 0x1021, true))
		return out, nil
	case ChecksumCRC32:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, crc32.ChecksumIEEE(prefix))
		return out, nil
	case ChecksumAdler32:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, adler32.Checksum(prefix))
		return out, nil
	default:
		return nil, &UnknownChecksumError{Algorithm: a}
	}
}

// crc16 runs the generic 16-bit CRC. msbFirst selects CCITT-style
// shifting; otherwise the reflected Modbus form is used.
func crc16(data []byte, init, poly uint16, msbFirst bool) uint16 {
	crc := init
	for _, b := range data {
		if msbFirst {
			crc ^= uint16(b) << 8
			for i := 0; i < 8; i++ {
				if crc&0x8000 != 0 {
					crc = crc<<1 ^ poly
				} else {
					crc <<= 1
				}
			}
		} else {
			crc ^= uint16(b)
			for i := 0; i < 8; i++ {
				if crc&1 != 0 {
					crc = crc>>1 ^ poly
				} else {
					crc >>= 1
				}
			}
		}
	}
	return crc
}
